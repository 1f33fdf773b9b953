package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is one of the seeded roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Password      string    `json:"-"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	RememberToken *string   `json:"-"`
	Roles         []Role    `json:"roles"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasRole reports whether role is among the user's assigned roles.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleNames returns a copy of the assigned role names.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, string(r))
	}
	return names
}

// Principal is the caller identity taken from a verified access token.
// Roles is the snapshot embedded at issuance, not a live view of the directory.
type Principal struct {
	UserID  int64
	Email   string
	Roles   []Role
	TokenID string
}

// HasRole reports whether the token carried role.
func (p *Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
