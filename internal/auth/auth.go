package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken    = errors.New("missing authorization header")
	ErrInvalidToken    = errors.New("invalid operator token")
	ErrAuthUnavailable = errors.New("operator lookup unavailable")
)

// TokenPrefix starts every generated operator token.
const TokenPrefix = "hmo_"

// lookupPrefixLen is how many leading characters of a token are stored in
// the clear to find the operator row ("hmo_" plus 4 hex chars).
const lookupPrefixLen = 8

// Identity is the authenticated operator.
type Identity struct {
	OperatorID int64 // 0 for the configured shared token
	Name       string
}

// Authenticator validates the Authorization header of a dashboard request.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) (string, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrMissingToken
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if strings.EqualFold(token, "bearer") {
		return "", ErrMissingToken
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	} else {
		return "", ErrInvalidToken
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// GeneratedToken is a new operator credential. Token is shown once and never
// stored; Prefix and Hash go to the operators table.
type GeneratedToken struct {
	Token  string
	Prefix string
	Hash   string
}

// GenerateToken creates a random operator token and its bcrypt hash.
func GenerateToken() (*GeneratedToken, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("GenerateToken: %w", err)
	}
	token := TokenPrefix + hex.EncodeToString(buf)
	hash, err := HashToken(token)
	if err != nil {
		return nil, err
	}
	return &GeneratedToken{Token: token, Prefix: token[:lookupPrefixLen], Hash: hash}, nil
}

// HashToken returns the bcrypt hash of token at the default cost.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("HashToken: %w", err)
	}
	return string(hash), nil
}
