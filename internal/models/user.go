package models

import "time"

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCallmaker Role = "callmaker"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCallmaker, RoleUser:
		return true
	}
	return false
}

// ParseRole converts a raw string into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// User represents a user account in the system.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"fullname,omitempty"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Identity returns the principal view of the user.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}
