// Package identity implements the authentication provider boundary: it issues
// and verifies bearer tokens and owns the credential records. The rest of the
// service treats it as an opaque collaborator behind the Provider interface.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed verification.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrInvalidCredentials indicates an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrEmailTaken indicates an identity already exists for the email.
	ErrEmailTaken = errors.New("identity: email already registered")
)

// Identity is the verified subject of a bearer token.
type Identity struct {
	UID   string
	Email string
}

// Provider issues identities and verifies bearer tokens.
type Provider interface {
	// CreateIdentity registers credentials and returns the new opaque UID.
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	// Authenticate checks credentials and returns the matching identity.
	Authenticate(ctx context.Context, email, password string) (Identity, error)
	// IssueToken signs a bearer token for the identity.
	IssueToken(id Identity, ttl time.Duration) (string, time.Time, error)
	// VerifyToken validates a bearer token and re-derives the identity.
	VerifyToken(ctx context.Context, token string) (Identity, error)
}
