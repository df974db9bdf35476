// Package hostedauth implements the auth.Service contract against the hosted
// auth provider's REST surface. The client caches the current session, emits
// session-change notifications for every transition it observes and keeps the
// access token fresh with a background refresh scheduled just before expiry.
package hostedauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
)

const defaultRefreshSkew = 30 * time.Second

type (
	Options struct {
		BaseURL string
		AnonKey string

		HTTPClient *http.Client
		Logger     core.Logger

		// AutoRefresh schedules a token refresh shortly before expiry.
		AutoRefresh bool
		RefreshSkew time.Duration
	}

	Client struct {
		baseURL string
		anonKey string
		http    *http.Client
		log     core.Logger

		autoRefresh bool
		refreshSkew time.Duration

		mu           sync.Mutex
		session      *auth.Session
		cbs          map[int]auth.Callback
		nextCBID     int
		refreshTimer *time.Timer
	}
)

var _ auth.Service = (*Client)(nil)

func NewClient(opts *Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = core.NewStdLogger(nil)
	}
	skew := opts.RefreshSkew
	if skew <= 0 {
		skew = defaultRefreshSkew
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		anonKey:     opts.AnonKey,
		http:        httpClient,
		log:         log,
		autoRefresh: opts.AutoRefresh,
		refreshSkew: skew,
		cbs:         make(map[int]auth.Callback),
	}
}

// Close cancels any scheduled token refresh.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRefreshLocked()
}

// GetSession returns the cached session, refreshing it first when expired.
// (nil, nil) means anonymous.
func (c *Client) GetSession(ctx context.Context) (*auth.Session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return nil, nil
	}
	if !sess.Expired() {
		cp := *sess
		return &cp, nil
	}
	if sess.RefreshToken == "" {
		return nil, nil
	}
	return c.refresh(ctx, sess.RefreshToken)
}

func (c *Client) SignUp(ctx context.Context, na auth.NewAccount) (*auth.Identity, *auth.Session, error) {
	body := map[string]interface{}{
		"email":    na.Email,
		"password": na.Password,
		"data":     na.Meta(),
	}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", body, "")
	if err != nil {
		return nil, nil, err
	}

	// with email verification on, the response is a bare user; otherwise a session
	var sp sessionPayload
	if err := json.Unmarshal(raw, &sp); err != nil {
		return nil, nil, errors.Wrap(err, "decoding signup response")
	}
	if sp.AccessToken != "" {
		sess := sp.session()
		ident := sess.Identity
		c.adopt(&sess, auth.EventSignedIn)
		return &ident, &sess, nil
	}

	var up userPayload
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, nil, errors.Wrap(err, "decoding signup user")
	}
	ident := up.identity()
	return &ident, nil, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	body := map[string]string{"email": email, "password": password}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", body, "")
	if err != nil {
		return nil, err
	}
	var sp sessionPayload
	if err := json.Unmarshal(raw, &sp); err != nil {
		return nil, errors.Wrap(err, "decoding session")
	}
	sess := sp.session()
	c.adopt(&sess, auth.EventSignedIn)
	cp := sess
	return &cp, nil
}

// SignOut revokes the session remotely and always drops the cached session and
// notifies subscribers, even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	var token string
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.session = nil
	c.stopRefreshLocked()
	c.mu.Unlock()

	var err error
	if token != "" {
		_, err = c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, token)
	}
	c.emit(auth.EventSignedOut, nil)
	return err
}

func (c *Client) UpdateUser(ctx context.Context, uu auth.UserUpdate) (*auth.Identity, error) {
	c.mu.Lock()
	var token string
	if c.session != nil && !c.session.Expired() {
		token = c.session.AccessToken
	}
	c.mu.Unlock()
	if token == "" {
		return nil, auth.ErrNotAuthenticated
	}

	body := map[string]interface{}{}
	if uu.Email != "" {
		body["email"] = uu.Email
	}
	if uu.Password != "" {
		body["password"] = uu.Password
	}
	if uu.Metadata != nil {
		body["data"] = uu.Metadata
	}
	raw, err := c.do(ctx, http.MethodPut, "/auth/v1/user", body, token)
	if err != nil {
		return nil, err
	}
	var up userPayload
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, errors.Wrap(err, "decoding user")
	}
	ident := up.identity()

	c.mu.Lock()
	var updated *auth.Session
	if c.session != nil {
		c.session.Identity = ident
		cp := *c.session
		updated = &cp
	}
	c.mu.Unlock()
	if updated != nil {
		c.emit(auth.EventUserUpdated, updated)
	}
	return &ident, nil
}

func (c *Client) Subscribe(cb auth.Callback) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCBID++
	id := c.nextCBID
	c.cbs[id] = cb
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.cbs, id)
	}
}

// refresh exchanges the refresh token for a new session.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*auth.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", body, "")
	if err != nil {
		return nil, err
	}
	var sp sessionPayload
	if err := json.Unmarshal(raw, &sp); err != nil {
		return nil, errors.Wrap(err, "decoding refreshed session")
	}
	sess := sp.session()
	c.adopt(&sess, auth.EventTokenRefreshed)
	cp := sess
	return &cp, nil
}

// adopt caches sess, reschedules the background refresh and notifies
// subscribers with event.
func (c *Client) adopt(sess *auth.Session, event auth.Event) {
	c.mu.Lock()
	cp := *sess
	c.session = &cp
	c.stopRefreshLocked()
	if c.autoRefresh && sess.RefreshToken != "" && !sess.ExpiresAt.IsZero() {
		delay := time.Until(sess.ExpiresAt) - c.refreshSkew
		if delay < time.Second {
			delay = time.Second
		}
		refreshToken := sess.RefreshToken
		c.refreshTimer = time.AfterFunc(delay, func() {
			if _, err := c.refresh(context.Background(), refreshToken); err != nil {
				c.log.Warn("background token refresh failed", err)
			}
		})
	}
	c.mu.Unlock()
	c.emit(event, sess)
}

func (c *Client) stopRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

func (c *Client) emit(event auth.Event, sess *auth.Session) {
	c.mu.Lock()
	cbs := make([]auth.Callback, 0, len(c.cbs))
	for _, cb := range c.cbs {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()
	for _, cb := range cbs {
		var cp *auth.Session
		if sess != nil {
			s := *sess
			cp = &s
		}
		cb(event, cp)
	}
}

// do performs a JSON request against the auth surface. The anon key rides on
// every request; bearerToken, when set, authenticates as the user.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, bearerToken string) (json.RawMessage, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "auth service unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// wire payloads

type userPayload struct {
	ID               string        `json:"id"`
	Email            string        `json:"email"`
	EmailConfirmedAt *time.Time    `json:"email_confirmed_at"`
	UserMetadata     auth.Metadata `json:"user_metadata"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (up userPayload) identity() auth.Identity {
	return auth.Identity{
		ID:             up.ID,
		Email:          up.Email,
		EmailConfirmed: up.EmailConfirmedAt != nil,
		Metadata:       up.UserMetadata,
		CreatedAt:      up.CreatedAt,
	}
}

type sessionPayload struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         userPayload `json:"user"`
}

func (sp sessionPayload) session() auth.Session {
	return auth.Session{
		AccessToken:  sp.AccessToken,
		TokenType:    sp.TokenType,
		RefreshToken: sp.RefreshToken,
		ExpiresAt:    tokenExpiry(sp.AccessToken, sp.ExpiresIn),
		Identity:     sp.User.identity(),
	}
}

// tokenExpiry prefers the advertised expires_in, falling back to the access
// token's own exp claim. The token is not verified here; only the provider's
// signature matters and that is checked server-side.
func tokenExpiry(accessToken string, expiresIn int64) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	claims := jwt.StandardClaims{}
	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(accessToken, &claims); err == nil && claims.ExpiresAt > 0 {
		return time.Unix(claims.ExpiresAt, 0)
	}
	return time.Time{}
}

// apiError is the provider's error body; shapes vary across endpoints.
type apiError struct {
	Status int

	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e *apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return http.StatusText(e.Status)
}

func (e *apiError) Error() string {
	return fmt.Sprintf("auth service: %s (status %d)", e.text(), e.Status)
}

// parseAPIError maps the provider's duck-typed error bodies onto the closed
// error set; unrecognized failures come back verbatim for display.
func parseAPIError(status int, data []byte) error {
	apiErr := &apiError{Status: status}
	_ = json.Unmarshal(data, apiErr)

	// the description must be consulted before the error code: an unconfirmed
	// email comes back as invalid_grant too, with only the text telling the
	// two apart
	text := strings.ToLower(apiErr.text())
	switch {
	case strings.Contains(text, "not confirmed"):
		return auth.ErrEmailNotConfirmed
	case strings.Contains(text, "already been registered") ||
		strings.Contains(text, "already registered") || strings.Contains(text, "already exists"):
		return auth.ErrEmailExists
	case apiErr.ErrorCode == "invalid_grant" || strings.Contains(text, "invalid login credentials"):
		return auth.ErrInvalidCredentials
	}
	return apiErr
}
