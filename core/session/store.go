// Package session owns the client-side authentication state: the current
// session, the identity it proves and the display profile derived from it.
// A single Store instance is shared by the whole UI tree; it subscribes to
// the auth service's session-change notifications and republishes combined
// state to its own subscribers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
)

type (
	// State is the aggregate exposed to UI consumers. Profile is non-nil only
	// when Identity is non-nil. Err is a non-fatal, human-readable message;
	// pipeline failures never surface as panics or unhandled errors.
	State struct {
		Session  *auth.Session
		Identity *auth.Identity
		Profile  *profile.Profile

		// Loading is true while a profile resolution is in flight.
		Loading bool
		// InitialLoading flips to false exactly once, when the first session
		// lookup (and its profile resolution, if any) has settled.
		InitialLoading bool
		Err            string
	}

	// Result is returned by every action method so callers can render inline
	// errors without try/catch-style recovery. Fields is populated for
	// validation failures.
	Result struct {
		Err    error
		Fields []core.FieldError
	}

	Options struct {
		Logger                 core.Logger
		ProfileFetchTimeout    time.Duration
		ProvisioningRetryDelay time.Duration
	}

	subscriber struct {
		id int
		cb func(State)
	}

	// Store is the single source of truth for "am I logged in, as whom, with
	// what session". All mutations are last-write-wins: an epoch counter and
	// a liveness flag gate every asynchronous continuation, so results of
	// superseded or torn-down work are dropped rather than applied.
	Store struct {
		authSvc  auth.Service
		repo     profile.Repository
		resolver *profile.Resolver
		log      core.Logger

		mu          sync.Mutex
		state       State
		alive       bool
		initialized bool
		epoch       uint64
		unsubscribe func()
		subs        []subscriber
		nextSubID   int
	}
)

func (r Result) OK() bool { return r.Err == nil }

func resultFromErr(err error) Result {
	if err == nil {
		return Result{}
	}
	return Result{Err: err, Fields: core.FieldErrors(err)}
}

func NewStore(authSvc auth.Service, repo profile.Repository, opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = core.NewStdLogger(nil)
	}
	return &Store{
		authSvc:  authSvc,
		repo:     repo,
		resolver: profile.NewResolver(repo, log, opts.ProfileFetchTimeout, opts.ProvisioningRetryDelay),
		log:      log,
		state:    State{InitialLoading: true},
		alive:    true,
	}
}

// State returns a copy of the current aggregate. The pointed-to values are
// copied too, so callers cannot mutate the store through them.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AccessToken exposes the current session's bearer token for downstream API
// calls. ok is false when anonymous or when the token has expired.
func (s *Store) AccessToken() (token string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Session == nil || s.state.Session.Expired() {
		return "", false
	}
	return s.state.Session.AccessToken, true
}

// OnChange registers cb to be invoked with a state snapshot after every
// publication. Returns an unsubscribe function.
func (s *Store) OnChange(cb func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, cb: cb})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Initialize bootstraps the store: it registers the session-change listener
// synchronously first, so an event firing while the initial lookup is in
// flight cannot be lost, then treats the GetSession result as just the first
// observation. InitialLoading clears on every path, including errors.
// Subsequent calls are no-ops.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized || !s.alive {
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.mu.Unlock()

	unsub := s.authSvc.Subscribe(s.handleAuthEvent)
	s.mu.Lock()
	if !s.alive { // torn down while registering
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubscribe = unsub
	startEpoch := s.epoch
	s.mu.Unlock()

	sess, err := s.authSvc.GetSession(ctx)
	if err != nil {
		s.publish(func() {
			// an event that arrived meanwhile outranks the failed first fetch
			if s.epoch == startEpoch {
				s.state = State{Err: errors.Wrap(err, "fetching initial session").Error()}
			}
			s.state.InitialLoading = false
		})
		return
	}
	if sess == nil {
		s.publish(func() {
			if s.epoch == startEpoch {
				s.state = State{}
			}
			s.state.InitialLoading = false
		})
		return
	}

	ident := sess.Identity
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.epoch++
	myEpoch := s.epoch
	s.state.Session = sess
	s.state.Identity = &ident
	s.state.Loading = true
	subs, snap := s.publicationLocked()
	s.mu.Unlock()
	notify(subs, snap)

	prof, rerr := s.resolver.Resolve(ctx, ident)
	s.publish(func() {
		// InitialLoading clears exactly once regardless of epoch; the rest is
		// applied only if no newer transition superseded this one.
		s.state.InitialLoading = false
		if s.epoch != myEpoch {
			return
		}
		s.state.Loading = false
		if rerr != nil {
			s.state.Err = rerr.Error()
			return
		}
		s.applyProfileLocked(ident.ID, prof)
	})
}

// Close tears the store down: the subscription is released and any in-flight
// continuation is discarded instead of applied. Safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// handleAuthEvent is invoked by the auth service at unspecified times:
// sign-in from elsewhere, token refresh, explicit sign-out, metadata update.
func (s *Store) handleAuthEvent(event auth.Event, sess *auth.Session) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.epoch++
	myEpoch := s.epoch

	if sess == nil {
		s.state.Session = nil
		s.state.Identity = nil
		s.state.Profile = nil
		s.state.Loading = false
		s.state.Err = ""
		subs, snap := s.publicationLocked()
		s.mu.Unlock()
		notify(subs, snap)
		return
	}

	ident := sess.Identity
	s.state.Session = sess
	s.state.Identity = &ident
	if s.state.Profile != nil && s.state.Profile.ID != ident.ID {
		// never show one user's profile against another's identity
		s.state.Profile = nil
	}
	s.state.Loading = true
	s.state.Err = ""
	subs, snap := s.publicationLocked()
	s.mu.Unlock()
	notify(subs, snap)

	go s.resolveProfile(myEpoch, ident)
}

// resolveProfile runs a resolution for the transition identified by epoch and
// applies the outcome unless it has been superseded or the store torn down.
func (s *Store) resolveProfile(epoch uint64, ident auth.Identity) {
	prof, err := s.resolver.Resolve(context.Background(), ident)
	s.publish(func() {
		if s.epoch != epoch {
			return // superseded; drop
		}
		s.state.Loading = false
		if err != nil {
			s.state.Err = err.Error()
			return
		}
		s.applyProfileLocked(ident.ID, prof)
	})
}

// SignUp registers a new account. A session is not assumed to come back
// synchronously: with email verification enabled it stays nil until the
// address is confirmed. If an identity is returned, profile resolution is
// attempted but tolerated to fail — the row may not be provisioned yet.
func (s *Store) SignUp(ctx context.Context, na auth.NewAccount) Result {
	if err := na.Validate(); err != nil {
		return resultFromErr(err)
	}

	ident, sess, err := s.authSvc.SignUp(ctx, na)
	if err != nil {
		if errors.Cause(err) == auth.ErrEmailExists {
			return resultFromErr(core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()}))
		}
		return Result{Err: err}
	}
	if ident == nil {
		return Result{}
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return Result{}
	}
	s.epoch++
	myEpoch := s.epoch
	identCopy := *ident
	s.state.Session = sess // may legitimately be nil pending confirmation
	s.state.Identity = &identCopy
	s.state.Profile = nil
	s.state.Loading = true
	s.state.Err = ""
	subs, snap := s.publicationLocked()
	s.mu.Unlock()
	notify(subs, snap)

	prof, rerr := s.resolver.Resolve(ctx, identCopy)
	s.publish(func() {
		if s.epoch != myEpoch {
			return
		}
		s.state.Loading = false
		if rerr != nil {
			s.log.Warn("post-signup profile resolution failed", rerr)
			return
		}
		s.applyProfileLocked(identCopy.ID, prof)
	})
	return Result{}
}

// SignIn authenticates with email and password. The session-change
// subscription is expected to fire as well; the profile is also resolved
// directly here so the UI never flashes an anonymous state while waiting for
// the event. Both paths converge; whichever completes last wins.
func (s *Store) SignIn(ctx context.Context, email, password string) Result {
	creds := auth.Credentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return resultFromErr(err)
	}

	sess, err := s.authSvc.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		return Result{Err: err}
	}

	ident := sess.Identity
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return Result{}
	}
	s.epoch++
	myEpoch := s.epoch
	s.state.Session = sess
	s.state.Identity = &ident
	if s.state.Profile != nil && s.state.Profile.ID != ident.ID {
		s.state.Profile = nil
	}
	s.state.Loading = true
	s.state.Err = ""
	subs, snap := s.publicationLocked()
	s.mu.Unlock()
	notify(subs, snap)

	prof, rerr := s.resolver.Resolve(ctx, ident)
	s.publish(func() {
		if s.epoch != myEpoch {
			return
		}
		s.state.Loading = false
		if rerr != nil {
			s.state.Err = rerr.Error()
			return
		}
		s.applyProfileLocked(ident.ID, prof)
	})
	return Result{}
}

// SignOut clears local state immediately, before the remote call resolves, so
// the UI reflects "logged out" without waiting on network latency. A remote
// failure is recorded but local state is never rolled back: a user that
// believes they logged out must not be re-authenticated silently.
func (s *Store) SignOut(ctx context.Context) Result {
	s.publish(func() {
		s.epoch++
		initialLoading := s.state.InitialLoading
		s.state = State{InitialLoading: initialLoading}
	})

	if err := s.authSvc.SignOut(ctx); err != nil {
		s.publish(func() {
			s.state.Err = errors.Wrap(err, "remote sign-out failed").Error()
		})
		return Result{Err: err}
	}
	return Result{}
}

// UpdateProfile sends only the changed fields to the remote update call and,
// on success, merges them into the cached profile without a refetch, giving
// immediate feedback without a round trip.
func (s *Store) UpdateProfile(ctx context.Context, up profile.Update) Result {
	s.mu.Lock()
	if s.state.Identity == nil {
		s.mu.Unlock()
		return Result{Err: auth.ErrNotAuthenticated}
	}
	userID := s.state.Identity.ID
	s.mu.Unlock()

	if err := up.Validate(); err != nil {
		return resultFromErr(err)
	}
	if up.IsEmpty() {
		return Result{}
	}

	if err := s.repo.UpdateOwnProfile(ctx, userID, up); err != nil {
		return Result{Err: err}
	}

	s.publish(func() {
		if s.state.Identity == nil || s.state.Identity.ID != userID || s.state.Profile == nil {
			return
		}
		merged := up.ApplyTo(*s.state.Profile)
		s.state.Profile = &merged
	})
	return Result{}
}

// applyProfileLocked installs a resolved profile, guarding against torn
// writes: the profile is dropped unless it belongs to the current identity.
func (s *Store) applyProfileLocked(userID string, prof profile.Profile) {
	if s.state.Identity == nil || s.state.Identity.ID != userID || prof.ID != userID {
		return
	}
	s.state.Profile = &prof
	s.state.Err = ""
}

// publish runs mutate under the lock (unless the store has been torn down)
// and then notifies subscribers with the resulting snapshot.
func (s *Store) publish(mutate func()) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	mutate()
	subs, snap := s.publicationLocked()
	s.mu.Unlock()
	notify(subs, snap)
}

func (s *Store) publicationLocked() ([]subscriber, State) {
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	return subs, s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	if st.Session != nil {
		cp := *st.Session
		st.Session = &cp
	}
	if st.Identity != nil {
		cp := *st.Identity
		st.Identity = &cp
	}
	if st.Profile != nil {
		cp := *st.Profile
		st.Profile = &cp
	}
	return st
}

func notify(subs []subscriber, snap State) {
	for _, sub := range subs {
		sub.cb(snap)
	}
}
