package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// UserID is the chat user's numeric id; room membership is checked server-side.
type Claims struct {
	jwt.RegisteredClaims

	UserID    int64     `json:"user_id"`
	TokenType TokenType `json:"token_type"`
}
