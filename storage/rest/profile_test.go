package rest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/services/devstub"
	"github.com/uniteams/uniteams/services/hostedauth"
	"github.com/uniteams/uniteams/storage/inmem"
)

const (
	anonKey    = "anon-key"
	serviceKey = "service-key"
)

// the repository is exercised against the dev stub, which speaks the same
// table endpoints the hosted service does.
func setup(t *testing.T) (string, *hostedauth.Client) {
	stub := devstub.NewServer(&devstub.Options{
		SecretKey:      []byte("test-secret"),
		AnonKey:        anonKey,
		ServiceKey:     serviceKey,
		AccessTokenTTL: time.Hour,
		AutoConfirm:    true,
		DisableReqLogs: true,
		Profiles:       inmem.NewProfileRepository(),
	})
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return srv.URL, hostedauth.NewClient(&hostedauth.Options{BaseURL: srv.URL, AnonKey: anonKey})
}

func signUp(t *testing.T, client *hostedauth.Client, email string) *auth.Session {
	t.Helper()
	_, sess, err := client.SignUp(context.Background(), auth.NewAccount{
		Email: email, Password: "s3cur3-Pass!", FirstName: "Ana", LastName: "Gomez",
	})
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestProfileRepository_roundTrip(t *testing.T) {
	baseURL, client := setup(t)
	ctx := context.Background()
	sess := signUp(t, client, "ana@uni.test")

	repo := NewProfileRepository(&Options{
		BaseURL: baseURL,
		AnonKey: anonKey,
		Tokens:  func() (string, bool) { return sess.AccessToken, true },
	})

	_, err := repo.GetProfile(ctx, sess.Identity.ID)
	assert.ErrorIs(t, err, profile.ErrNotFound)

	saved, err := repo.UpsertProfile(ctx, profile.Profile{
		ID:        sess.Identity.ID,
		Email:     "ana@uni.test",
		FirstName: "Ana",
		LastName:  "Gomez",
		Role:      profile.RoleMember,
	})
	require.NoError(t, err)
	assert.Equal(t, sess.Identity.ID, saved.ID)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := repo.GetProfile(ctx, sess.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FirstName)
	assert.Empty(t, got.Bio, "null columns map to empty strings")

	bio := "Math tutor"
	require.NoError(t, repo.UpdateOwnProfile(ctx, sess.Identity.ID, profile.Update{Bio: &bio}))

	got, err = repo.GetProfile(ctx, sess.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Math tutor", got.Bio)
}

func TestProfileRepository_updateRequiresToken(t *testing.T) {
	baseURL, _ := setup(t)
	repo := NewProfileRepository(&Options{BaseURL: baseURL, AnonKey: anonKey})

	bio := "x"
	err := repo.UpdateOwnProfile(context.Background(), "u1", profile.Update{Bio: &bio})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestProfileRepository_serviceKeyWritesForeignRows(t *testing.T) {
	baseURL, client := setup(t)
	ctx := context.Background()
	sess := signUp(t, client, "ana@uni.test")

	// a user-scoped repository cannot write another user's row
	userRepo := NewProfileRepository(&Options{
		BaseURL: baseURL,
		AnonKey: anonKey,
		Tokens:  func() (string, bool) { return sess.AccessToken, true },
	})
	_, err := userRepo.UpsertProfile(ctx, profile.Profile{ID: "someone-else", Email: "x@y.z", Role: profile.RoleMember})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	// the service-role repository can
	adminRepo := NewProfileRepository(&Options{BaseURL: baseURL, AnonKey: anonKey, ServiceKey: serviceKey})
	saved, err := adminRepo.UpsertProfile(ctx, profile.Profile{
		ID: sess.Identity.ID, Email: "ana@uni.test", Role: profile.RoleCoordinator,
	})
	require.NoError(t, err)
	assert.Equal(t, profile.RoleCoordinator, saved.Role)
}
