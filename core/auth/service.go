package auth

import (
	"context"
	"errors"
)

var (
	// errors
	ErrNotAuthenticated   = errors.New("user not authenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotConfirmed  = errors.New("email address not confirmed")
	ErrEmailExists        = errors.New("a user with this email already exists")
)

type (
	// Callback receives session-change notifications. sess is nil on sign-out.
	Callback func(event Event, sess *Session)

	// Service is the hosted auth provider contract. Implementations cache the
	// current session and notify subscribers of every session change
	// (sign-in, sign-out, token refresh, user update), including changes they
	// did not initiate themselves.
	Service interface {
		// GetSession returns the current session, or (nil, nil) when anonymous.
		GetSession(ctx context.Context) (*Session, error)
		// SignUp registers a new account. The returned session is nil until the
		// email address has been confirmed.
		SignUp(ctx context.Context, na NewAccount) (*Identity, *Session, error)
		SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
		SignOut(ctx context.Context) error
		// UpdateUser changes attributes of the authenticated identity.
		UpdateUser(ctx context.Context, uu UserUpdate) (*Identity, error)
		// Subscribe registers cb for session-change notifications and returns
		// an unsubscribe function. Registration is synchronous: no event
		// emitted after Subscribe returns may be missed.
		Subscribe(cb Callback) (unsubscribe func())
	}

	// TokenSource yields the current access token for bearer-authenticated
	// calls. ok is false when no live session exists.
	TokenSource func() (token string, ok bool)
)
