package devstub

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/services/email"
	"github.com/uniteams/uniteams/services/hostedauth"
	"github.com/uniteams/uniteams/storage/inmem"
)

const (
	testAnonKey    = "anon-key"
	testServiceKey = "service-key"
)

type stubFixture struct {
	srv      *httptest.Server
	client   *hostedauth.Client
	emails   *email.ConsoleService
	profiles profile.Repository
}

func newFixture(t *testing.T, autoConfirm bool) *stubFixture {
	emails := email.NewConsoleService("Uniteams", "noreply@uniteams.test")
	profiles := inmem.NewProfileRepository()

	stub := NewServer(&Options{
		SecretKey:      []byte("test-secret"),
		AnonKey:        testAnonKey,
		ServiceKey:     testServiceKey,
		AccessTokenTTL: time.Hour,
		AutoConfirm:    autoConfirm,
		DisableReqLogs: true,
		BaseURL:        "http://stub.localhost",
		EmailSvc:       emails,
		Profiles:       profiles,
	})
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	return &stubFixture{
		srv:      srv,
		client:   hostedauth.NewClient(&hostedauth.Options{BaseURL: srv.URL, AnonKey: testAnonKey}),
		emails:   emails,
		profiles: profiles,
	}
}

func TestStub_signUpAndSignIn_autoConfirm(t *testing.T) {
	fix := newFixture(t, true)
	ctx := context.Background()

	ident, sess, err := fix.client.SignUp(ctx, auth.NewAccount{
		Email: "Ana.Gomez@uni.test", Password: "s3cur3-Pass!", FirstName: "Ana", LastName: "Gomez",
	})
	require.NoError(t, err)
	require.NotNil(t, sess, "auto-confirm signup returns a live session")
	assert.True(t, ident.EmailConfirmed)
	assert.Equal(t, "ana.gomez@uni.test", ident.Email)
	assert.Equal(t, "Ana", ident.Metadata.FirstName)
	assert.False(t, sess.Expired())

	// duplicate signup is rejected
	_, _, err = fix.client.SignUp(ctx, auth.NewAccount{Email: "ana.gomez@uni.test", Password: "other-Pass-9"})
	assert.ErrorIs(t, err, auth.ErrEmailExists)

	// wrong password
	_, err = fix.client.SignInWithPassword(ctx, "ana.gomez@uni.test", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	sess2, err := fix.client.SignInWithPassword(ctx, "ana.gomez@uni.test", "s3cur3-Pass!")
	require.NoError(t, err)
	assert.Equal(t, ident.ID, sess2.Identity.ID)
}

var confirmLinkRe = regexp.MustCompile(`https?://\S+/auth/v1/verify\?\S+`)

func TestStub_emailConfirmationFlow(t *testing.T) {
	fix := newFixture(t, false)
	ctx := context.Background()

	ident, sess, err := fix.client.SignUp(ctx, auth.NewAccount{
		Email: "luis@uni.test", Password: "s3cur3-Pass!", FirstName: "Luis",
	})
	require.NoError(t, err)
	assert.Nil(t, sess, "no session until the email is confirmed")
	assert.False(t, ident.EmailConfirmed)

	// signing in before confirming fails with the dedicated error
	_, err = fix.client.SignInWithPassword(ctx, "luis@uni.test", "s3cur3-Pass!")
	assert.ErrorIs(t, err, auth.ErrEmailNotConfirmed)

	// the confirmation mail carries a verify link
	sent := fix.emails.SentMessages()
	require.Len(t, sent, 1)
	link := confirmLinkRe.FindString(sent[0].TextContent)
	require.NotEmpty(t, link, "confirmation link in %q", sent[0].TextContent)

	// the stub's BaseURL differs from the httptest address; keep the query
	u, err := url.Parse(link)
	require.NoError(t, err)
	resp, err := http.Get(fix.srv.URL + "/auth/v1/verify?" + u.RawQuery + "&apikey=ignored")
	require.NoError(t, err)
	resp.Body.Close()
	// apikey rides in a header, not the query
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, fix.srv.URL+"/auth/v1/verify?"+u.RawQuery, nil)
	req.Header.Set("apikey", testAnonKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sess, err = fix.client.SignInWithPassword(ctx, "luis@uni.test", "s3cur3-Pass!")
	require.NoError(t, err)
	assert.True(t, sess.Identity.EmailConfirmed)
}

func TestStub_refreshTokenGrant(t *testing.T) {
	fix := newFixture(t, true)
	ctx := context.Background()

	_, sess, err := fix.client.SignUp(ctx, auth.NewAccount{Email: "eva@uni.test", Password: "s3cur3-Pass!"})
	require.NoError(t, err)
	require.NotNil(t, sess)

	// exchange the refresh token directly
	resp := rawRefresh(t, fix, sess.RefreshToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refreshed))
	resp.Body.Close()
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, sess.RefreshToken, refreshed.RefreshToken, "refresh tokens are single use")

	// the old refresh token is spent
	resp = rawRefresh(t, fix, sess.RefreshToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func rawRefresh(t *testing.T, fix *stubFixture, refreshToken string) *http.Response {
	t.Helper()
	data, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, _ := http.NewRequest(http.MethodPost, fix.srv.URL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", testAnonKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestStub_updateUser(t *testing.T) {
	fix := newFixture(t, true)
	ctx := context.Background()

	_, _, err := fix.client.SignUp(ctx, auth.NewAccount{
		Email: "ana@uni.test", Password: "s3cur3-Pass!", FirstName: "Ana",
	})
	require.NoError(t, err)

	ident, err := fix.client.UpdateUser(ctx, auth.UserUpdate{
		Metadata: &auth.Metadata{FirstName: "Anita", LastName: "Gomez"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Anita", ident.Metadata.FirstName)
	assert.Equal(t, "Gomez", ident.Metadata.LastName)
}

func TestStub_signOutRevokesRefreshTokens(t *testing.T) {
	fix := newFixture(t, true)
	ctx := context.Background()

	_, sess, err := fix.client.SignUp(ctx, auth.NewAccount{Email: "ana@uni.test", Password: "s3cur3-Pass!"})
	require.NoError(t, err)
	require.NotNil(t, sess)

	require.NoError(t, fix.client.SignOut(ctx))

	resp := rawRefresh(t, fix, sess.RefreshToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStub_profileEndpoints(t *testing.T) {
	fix := newFixture(t, true)
	ctx := context.Background()

	_, sess, err := fix.client.SignUp(ctx, auth.NewAccount{
		Email: "ana@uni.test", Password: "s3cur3-Pass!", FirstName: "Ana", LastName: "Gomez",
	})
	require.NoError(t, err)
	require.NotNil(t, sess)
	uid := sess.Identity.ID

	// no row yet
	rows := fetchProfiles(t, fix, uid, sess.AccessToken)
	assert.Empty(t, rows)

	// the owner can upsert their own row
	row := map[string]interface{}{
		"id": uid, "email": "ana@uni.test", "first_name": "Ana", "last_name": "Gomez", "role": "member",
	}
	st := postJSON(t, fix, "/rest/v1/profiles", row, sess.AccessToken)
	assert.Equal(t, http.StatusCreated, st)

	// another user's row is off limits without the service key
	st = postJSON(t, fix, "/rest/v1/profiles", map[string]interface{}{
		"id": "someone-else", "email": "x@y.z", "role": "member",
	}, sess.AccessToken)
	assert.Equal(t, http.StatusForbidden, st)

	// rpc updates the caller's row
	st = postJSON(t, fix, "/rest/v1/rpc/update_current_profile", map[string]interface{}{"bio": "Math tutor"}, sess.AccessToken)
	assert.Equal(t, http.StatusNoContent, st)

	prof, err := fix.profiles.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "Ana", prof.FirstName)
	assert.Equal(t, "Math tutor", prof.Bio)

	rows = fetchProfiles(t, fix, uid, sess.AccessToken)
	require.Len(t, rows, 1)
	assert.Equal(t, "ana@uni.test", rows[0]["email"])
}

// helpers

func fetchProfiles(t *testing.T, fix *stubFixture, id, token string) []map[string]interface{} {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, fix.srv.URL+"/rest/v1/profiles?id=eq."+id, nil)
	req.Header.Set("apikey", testAnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	return rows
}

func postJSON(t *testing.T, fix *stubFixture, path string, body interface{}, token string) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, fix.srv.URL+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", testAnonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}
