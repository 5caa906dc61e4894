package models

// Role is the authenticated role of a connected user
type Role string

const (
	RoleStudent Role = "student"
	RoleDriver  Role = "driver"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// CanBroadcast reports whether the role may send messages to passengers
func (r Role) CanBroadcast() bool {
	return r == RoleDriver || r == RoleAdmin
}

// Identity is the opaque authenticated identity attached to a request or socket
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
