package domain

// Role of an authenticated identity.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Actor is the verified identity behind a request or a socket connection.
type Actor struct {
	ID   string
	Role Role
}

// Privileged actors may bypass the edit/delete window and delete other users' messages.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleModerator
}
