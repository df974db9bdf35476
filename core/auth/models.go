package auth

import (
	"time"

	"github.com/uniteams/uniteams/core"
)

// Event identifies a session-change notification emitted by the auth service.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventUserUpdated    Event = "USER_UPDATED"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Metadata carries the optional identity attributes supplied at registration.
type Metadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (m Metadata) IsEmpty() bool {
	return m.FirstName == "" && m.LastName == ""
}

// Identity is the stable user record issued by the auth service.
// Immutable once created except via explicit user-update operations.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	Metadata       Metadata  `json:"user_metadata"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is the credential bundle proving an authenticated identity.
// It is owned by the auth service; holders keep a cached copy.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"user"`
}

// Expired reports whether the access token's lifetime has elapsed.
// A zero ExpiresAt means the expiry is unknown and the token is assumed live.
func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// NewAccount contains information needed to register a new account.
type NewAccount struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

func (na *NewAccount) Validate() error {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
	return core.Validate.Struct(na)
}

func (na *NewAccount) Meta() Metadata {
	return Metadata{FirstName: na.FirstName, LastName: na.LastName}
}

// Credentials is an email + password sign-in request.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate() error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	return core.Validate.Struct(c)
}

// UserUpdate defines what may be changed on an Identity.
// Nil fields are left untouched.
type UserUpdate struct {
	Email    string    `json:"email,omitempty" validate:"omitempty,email"`
	Password string    `json:"password,omitempty"`
	Metadata *Metadata `json:"user_metadata,omitempty"`
}
