package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/ids"
)

const defaultIssuer = "snacks-di-chris"

// JWTProvider implements Provider with HS256 tokens and credentials persisted
// in PostgreSQL.
type JWTProvider struct {
	db     *sql.DB
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a JWTProvider.
type Option func(*JWTProvider)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(p *JWTProvider) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			p.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(p *JWTProvider) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewJWTProvider constructs a provider signing with the given secret.
func NewJWTProvider(db *sql.DB, secret string, opts ...Option) (*JWTProvider, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("identity: token secret is required")
	}
	p := &JWTProvider{
		db:     db,
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// CreateIdentity registers credentials and returns the new UID.
func (p *JWTProvider) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidCredentials
	}
	if password == "" {
		return "", ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	uid := ids.New()
	res, err := p.db.ExecContext(ctx,
		`insert into identities(uid, email, password_hash) values($1,$2,$3)
		 on conflict (email) do nothing`,
		uid, email, string(hash),
	)
	if err != nil {
		return "", err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", ErrEmailTaken
	}
	return uid, nil
}

// Authenticate verifies credentials against the stored bcrypt hash.
func (p *JWTProvider) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}
	row := p.db.QueryRowContext(ctx,
		`select uid, password_hash from identities where email=$1`, email)
	var (
		uid  string
		hash string
	)
	if err := row.Scan(&uid, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UID: uid, Email: email}, nil
}

// IssueToken signs an HS256 bearer token for the identity.
func (p *JWTProvider) IssueToken(id Identity, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(id.UID) == "" {
		return "", time.Time{}, errors.New("identity: uid is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("identity: ttl must be greater than zero")
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	c := claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken validates the signature and claims and re-derives the identity.
func (p *JWTProvider) VerifyToken(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Issuer != p.issuer || strings.TrimSpace(c.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: c.Subject, Email: c.Email}, nil
}
