package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Username string `json:"preferred_username,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewClaims builds claims issued at now and valid for ttl.
func NewClaims(subject, username, role string, now time.Time, ttl time.Duration) Claims {
	return Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// KeyLookup resolves an RS256 verification key by kid.
type KeyLookup func(ctx context.Context, keyID string) (*rsa.PublicKey, error)

type VerifierConfig struct {
	// Secret verifies HS256 tokens. Empty rejects them.
	Secret string
	// Keys verifies RS256 tokens. Nil rejects them.
	Keys KeyLookup
	Now  func() time.Time
}

// Verifier checks HS256 tokens issued locally and RS256 tokens issued by an
// identity provider. Tokens without exp are rejected.
type Verifier struct {
	secret []byte
	keys   KeyLookup
	now    func() time.Time
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{secret: []byte(cfg.Secret), keys: cfg.Keys, now: cfg.Now}
}

func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(v.secret) == 0 {
				return nil, errors.New("hs256 tokens not accepted")
			}
			return v.secret, nil
		case *jwt.SigningMethodRSA:
			kid, _ := t.Header["kid"].(string)
			if v.keys == nil || kid == "" {
				return nil, errors.New("rs256 token without resolvable kid")
			}
			return v.keys(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
	},
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
