package domain

import "time"

// Privilege labels carried in the access token.
const (
	PrivilegeUser  = "user"
	PrivilegeAdmin = "admin"
)

type User struct {
	ID           string
	Login        string
	Name         string
	Email        string
	PasswordHash string // argon2id PHC string, or bcrypt for imported accounts
	Privilege    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
