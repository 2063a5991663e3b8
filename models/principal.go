package models

type Role string

const (
	RoleUser     Role = "user"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background sweeps. It is never issued in a token.
	RoleSystem Role = "system"
)

// Principal is the authenticated caller attached to every request.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func (p Principal) IsSystem() bool { return p.Role == RoleSystem }

var SystemPrincipal = Principal{ID: "system", Role: RoleSystem}
