package token

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecretEnvKey is the env var name for the JWT signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "PETLINK_JWT_SECRET"

	// MinSecretBytes is the shortest accepted HS256 secret.
	MinSecretBytes = 32

	// DefaultTTL is used by Issue when ttl <= 0.
	DefaultTTL = 24 * time.Hour
)

// Claims is the PetLink token payload.
type Claims struct {
	UserID  int64  `json:"userId"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// SecretFromEnv returns the configured secret bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func SecretFromEnv(minBytes int) ([]byte, error) {
	return checkSecret(os.Getenv(SecretEnvKey), minBytes)
}

func checkSecret(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}

// Verifier checks tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a Verifier. secret must be at least MinSecretBytes long.
func NewVerifier(secret []byte) (*Verifier, error) {
	if _, err := checkSecret(string(secret), MinSecretBytes); err != nil {
		return nil, err
	}
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}, nil
}

// Verify parses raw and returns its claims.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	tok, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// UserID returns the user id carried by raw.
func (v *Verifier) UserID(raw string) (int64, error) {
	c, err := v.Verify(raw)
	if err != nil {
		return 0, err
	}
	return c.UserID, nil
}

// Issuer signs tokens. It exists for local development and tests; production
// tokens come from the account service.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer builds an Issuer. secret must be at least MinSecretBytes long.
func NewIssuer(secret []byte) (*Issuer, error) {
	if _, err := checkSecret(string(secret), MinSecretBytes); err != nil {
		return nil, err
	}
	return &Issuer{secret: secret, now: time.Now}, nil
}

// Issue signs a token for userID valid for ttl.
func (i *Issuer) Issue(userID int64, email string, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("issue token: invalid user id %d", userID)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := i.now()

	subject := email
	if subject == "" {
		subject = "unknown"
	}
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
