package user

import (
	"time"
)

type User struct {
	ID           uint      `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token    string `json:"token"`
	User     *User  `json:"user"`
	HomePath string `json:"home_path"`
}
