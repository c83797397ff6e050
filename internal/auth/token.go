package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	BearerAuthPrefix = "Bearer "
)

// TokenAuthEngine accepts requests carrying a static bearer token.
type TokenAuthEngine struct {
	Token string
}

// NewTokenAuthEngine creates a new TokenAuthEngine for token.
func NewTokenAuthEngine(token string) *TokenAuthEngine {
	return &TokenAuthEngine{Token: token}
}

// AuthenticateRequest checks the Authorization header for the bearer token.
func (e *TokenAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (bool, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, BearerAuthPrefix) {
		return false, nil
	}

	token := strings.TrimSpace(auth[len(BearerAuthPrefix):])
	if token == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(e.Token)) == 1, nil
}
