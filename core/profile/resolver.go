package profile

import (
	"context"
	"errors"
	"time"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
)

var (
	// errors
	ErrNotFound = errors.New("profile not found")
)

type (
	Repository interface {
		// GetProfile returns the row keyed by id, or ErrNotFound.
		GetProfile(ctx context.Context, id string) (Profile, error)
		// UpsertProfile creates or merges the row keyed by p.ID.
		UpsertProfile(ctx context.Context, p Profile) (Profile, error)
		// UpdateOwnProfile applies a partial update to the authenticated
		// user's own row.
		UpdateOwnProfile(ctx context.Context, id string, up Update) error
	}

	// Resolver produces a best-effort Profile for an identity: the stored row
	// when one exists, reconciled with identity metadata, or a synthesized
	// transient record when the row is missing or unreachable.
	Resolver struct {
		repo Repository
		log  core.Logger

		fetchTimeout time.Duration
		retryDelay   time.Duration

		sleepFunc func(context.Context, time.Duration) // mockable
		nowFunc   func() time.Time                     // mockable
	}
)

func NewResolver(repo Repository, log core.Logger, fetchTimeout, retryDelay time.Duration) *Resolver {
	if log == nil {
		log = core.NewStdLogger(nil)
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 3 * time.Second
	}
	return &Resolver{
		repo:         repo,
		log:          log,
		fetchTimeout: fetchTimeout,
		retryDelay:   retryDelay,
		sleepFunc:    sleepCtx,
		nowFunc:      time.Now,
	}
}

// Resolve fetches or synthesizes the profile for ident. It never fails for
// transient reasons: a missing or unreachable row yields a synthesized record
// so a signed-in user always sees their own name. The returned error is
// reserved for a missing row with no usable metadata to fall back on.
func (r *Resolver) Resolve(ctx context.Context, ident auth.Identity) (Profile, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	row, err := r.repo.GetProfile(fetchCtx, ident.ID)
	if errors.Is(err, ErrNotFound) && r.retryDelay > 0 {
		// a brand-new account's row may not be provisioned yet
		r.sleepFunc(ctx, r.retryDelay)
		retryCtx, cancelRetry := context.WithTimeout(ctx, r.fetchTimeout)
		row, err = r.repo.GetProfile(retryCtx, ident.ID)
		cancelRetry()
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Warn("profile fetch failed, synthesizing from identity metadata", err)
		}
		return r.synthesize(ident)
	}

	return r.reconcile(ctx, row, ident), nil
}

// reconcile fills empty stored name fields from identity metadata. Stored
// non-empty values always win; metadata never overwrites them. When metadata
// contributed anything, the merged row is written back best-effort: a failed
// write must not block showing the user their own name.
func (r *Resolver) reconcile(ctx context.Context, row Profile, ident auth.Identity) Profile {
	merged, changed := mergeNames(row, ident.Metadata)
	if merged.Email == "" {
		merged.Email = ident.Email
	}
	if merged.Role == "" {
		merged.Role = RoleMember
	}
	if !changed {
		return merged
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	if _, err := r.repo.UpsertProfile(writeCtx, merged); err != nil {
		r.log.Warn("profile name reconciliation write failed", err)
	}
	return merged
}

// synthesize builds a transient profile from identity metadata.
func (r *Resolver) synthesize(ident auth.Identity) (Profile, error) {
	if ident.Metadata.IsEmpty() && ident.Email == "" {
		return Profile{}, ErrNotFound
	}
	now := r.nowFunc().UTC()
	return Profile{
		ID:          ident.ID,
		Email:       ident.Email,
		FirstName:   ident.Metadata.FirstName,
		LastName:    ident.Metadata.LastName,
		Role:        RoleMember,
		CreatedAt:   now,
		UpdatedAt:   now,
		Synthesized: true,
	}, nil
}

// mergeNames applies the tie-break rule: identity metadata wins over an empty
// stored field but never overwrites a non-empty one.
func mergeNames(row Profile, meta auth.Metadata) (Profile, bool) {
	var changed bool
	if row.FirstName == "" && meta.FirstName != "" {
		row.FirstName = meta.FirstName
		changed = true
	}
	if row.LastName == "" && meta.LastName != "" {
		row.LastName = meta.LastName
		changed = true
	}
	return row, changed
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
