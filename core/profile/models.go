package profile

import (
	"strings"
	"time"

	"github.com/uniteams/uniteams/core"
)

// Roles
const (
	RoleMember      = "member"
	RoleTutor       = "tutor"
	RoleCoordinator = "coordinator"
	RoleAdmin       = "admin"
)

var (
	AllRoles = []string{RoleMember, RoleTutor, RoleCoordinator, RoleAdmin}

	rolePriorities = map[string]int{
		RoleAdmin:       30,
		RoleCoordinator: 20,
		RoleTutor:       10,
		RoleMember:      1,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func ValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

// Profile is the display-oriented projection of a user: either a row stored by
// the profile service or a transient record synthesized from identity metadata
// when no row exists yet.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Synthesized is true when this record was built from identity metadata
	// rather than fetched from the profile store. Never persisted.
	Synthesized bool `json:"-"`
}

func (p Profile) FullName() string {
	return core.CleanString(p.FirstName + " " + p.LastName)
}

// DisplayName is the full name, falling back to the email's local part.
func (p Profile) DisplayName() string {
	if name := p.FullName(); name != "" {
		return name
	}
	if at := strings.IndexByte(p.Email, '@'); at > 0 {
		return p.Email[:at]
	}
	return p.Email
}

func (p Profile) IsTutor() bool       { return p.Role == RoleTutor }
func (p Profile) IsCoordinator() bool { return p.Role == RoleCoordinator }
func (p Profile) IsAdmin() bool       { return p.Role == RoleAdmin }

// CanReviewTutorRequests reports whether this profile may act on tutor
// applications.
func (p Profile) CanReviewTutorRequests() bool {
	return RolePriority(p.Role) >= RolePriority(RoleCoordinator)
}

// Update defines what information a user may change on their own profile.
// Nil fields are left untouched; empty strings clear the stored value.
type Update struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Bio       *string `json:"bio,omitempty" validate:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

func (up *Update) Validate() error {
	if up.FirstName != nil {
		*up.FirstName = core.CleanString(*up.FirstName)
	}
	if up.LastName != nil {
		*up.LastName = core.CleanString(*up.LastName)
	}
	if up.Bio != nil {
		*up.Bio = core.CleanString(*up.Bio)
	}
	return core.Validate.Struct(up)
}

func (up Update) IsEmpty() bool {
	return up.FirstName == nil && up.LastName == nil && up.Bio == nil && up.AvatarURL == nil
}

// ApplyTo merges the changed fields into p without touching anything else.
// Used for the optimistic local merge after a successful remote update.
func (up Update) ApplyTo(p Profile) Profile {
	if up.FirstName != nil {
		p.FirstName = *up.FirstName
	}
	if up.LastName != nil {
		p.LastName = *up.LastName
	}
	if up.Bio != nil {
		p.Bio = *up.Bio
	}
	if up.AvatarURL != nil {
		p.AvatarURL = *up.AvatarURL
	}
	p.UpdatedAt = time.Now().UTC()
	return p
}
