// Package rest implements the profile repository against the hosted data
// API's table endpoints. Row filters ride in the query string (id=eq.<uuid>)
// and upserts use the merge-duplicates resolution header.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
)

type (
	Options struct {
		BaseURL string
		AnonKey string

		// ServiceKey, when set, authorizes writes that row-level security
		// would deny to the signed-in user. Used by provisioning tools only.
		ServiceKey string

		// Tokens supplies the signed-in user's access token. Optional; the
		// anon key is used when absent.
		Tokens auth.TokenSource

		HTTPClient *http.Client
		Logger     core.Logger
	}

	profileRepository struct {
		baseURL    string
		anonKey    string
		serviceKey string
		tokens     auth.TokenSource
		http       *http.Client
		log        core.Logger
	}
)

var _ profile.Repository = (*profileRepository)(nil)

func NewProfileRepository(opts *Options) *profileRepository {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = core.NewStdLogger(nil)
	}
	return &profileRepository{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		anonKey:    opts.AnonKey,
		serviceKey: opts.ServiceKey,
		tokens:     opts.Tokens,
		http:       httpClient,
		log:        log,
	}
}

// profileRow mirrors the profiles table; nullable columns come back as JSON
// null rather than empty strings.
type profileRow struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	AvatarURL null.String `json:"avatar_url"`
	Bio       null.String `json:"bio"`
	Role      string      `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newProfileRow(prof profile.Profile) profileRow {
	return profileRow{
		ID:        prof.ID,
		Email:     prof.Email,
		FirstName: prof.FirstName,
		LastName:  prof.LastName,
		AvatarURL: null.NewString(prof.AvatarURL, prof.AvatarURL != ""),
		Bio:       null.NewString(prof.Bio, prof.Bio != ""),
		Role:      prof.Role,
		CreatedAt: prof.CreatedAt,
		UpdatedAt: prof.UpdatedAt,
	}
}

func (row profileRow) profile() profile.Profile {
	return profile.Profile{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		AvatarURL: row.AvatarURL.String,
		Bio:       row.Bio.String,
		Role:      row.Role,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (repo *profileRepository) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	path := "/rest/v1/profiles?select=*&id=eq." + url.QueryEscape(id)
	data, err := repo.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return profile.Profile{}, err
	}

	var rows []profileRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return profile.Profile{}, errors.Wrap(err, "decoding profile rows")
	}
	if len(rows) == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	return rows[0].profile(), nil
}

func (repo *profileRepository) UpsertProfile(ctx context.Context, prof profile.Profile) (profile.Profile, error) {
	headers := map[string]string{
		"Prefer": "resolution=merge-duplicates,return=representation",
	}
	data, err := repo.do(ctx, http.MethodPost, "/rest/v1/profiles", newProfileRow(prof), headers)
	if err != nil {
		return profile.Profile{}, err
	}

	var rows []profileRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return profile.Profile{}, errors.Wrap(err, "decoding upserted profile")
	}
	if len(rows) == 0 {
		return profile.Profile{}, errors.New("upsert returned no representation")
	}
	return rows[0].profile(), nil
}

// UpdateOwnProfile goes through the update_current_profile function, which
// derives the target row from the caller's token; the id parameter is unused.
func (repo *profileRepository) UpdateOwnProfile(ctx context.Context, _ string, upd profile.Update) error {
	if _, ok := repo.bearer(); !ok {
		return auth.ErrNotAuthenticated
	}
	_, err := repo.do(ctx, http.MethodPost, "/rest/v1/rpc/update_current_profile", upd, nil)
	return err
}

// bearer picks the strongest credential available for the Authorization
// header: service key, then user token, then the anon key.
func (repo *profileRepository) bearer() (string, bool) {
	if repo.serviceKey != "" {
		return repo.serviceKey, true
	}
	if repo.tokens != nil {
		if token, ok := repo.tokens(); ok {
			return token, true
		}
	}
	return repo.anonKey, false
}

func (repo *profileRepository) do(ctx context.Context, method, path string, body interface{}, headers map[string]string) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, repo.baseURL+path, rdr)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", repo.anonKey)
	token, _ := repo.bearer()
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := repo.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "profile service unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, profile.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, auth.ErrNotAuthenticated
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("profile service: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
