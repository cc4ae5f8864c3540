package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claim set the API accepts. The subject identifies the
// editor; every write is attributed to it.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *Claims) GetUserID() string {
	return c.Subject
}
