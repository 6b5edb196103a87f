// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session tokens are ed25519-signed JWTs carrying the user id in "sub".
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// sessionTTL is how long issued tokens stay valid; zero means no expiry.
	sessionTTL time.Duration
)

// Init generates a fresh signing key pair and reads SESSION_TTL (a duration
// string; empty or "never" disables expiry). Call once at startup; tokens do
// not survive a restart.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate session key pair: %w", err)
	}
	return parseSessionTTL()
}

func parseSessionTTL() error {
	raw := os.Getenv("SESSION_TTL")
	if raw == "" || raw == "never" || raw == "0" {
		sessionTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("failed to parse SESSION_TTL: %w", err)
	}
	sessionTTL = d
	return nil
}

// CreateSession issues a signed token for userID.
func CreateSession(userID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
	}
	if sessionTTL > 0 {
		claims["exp"] = time.Now().Add(sessionTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifySession validates a token and returns the user id it was issued for.
func VerifySession(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return userID, nil
}
