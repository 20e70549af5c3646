package user

import (
	"storefront-be/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HomePathForRole is where a client lands after signing in.
func HomePathForRole(role string) string {
	if role == utils.RoleAdmin {
		return "/admin"
	}
	return "/account"
}
