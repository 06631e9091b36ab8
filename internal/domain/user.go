package domain

import "github.com/google/uuid"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the authenticated actor of a request. A nil *User means unauthenticated.
type User struct {
	ID   uuid.UUID
	Role string
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
