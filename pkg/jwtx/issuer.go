package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
)

// Verifier validates a session token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// Issuer signs and verifies session tokens with a single Ed25519 key.
// The key lives for the process lifetime; sessions do not survive restarts
// unless a key is supplied.
type Issuer struct {
	issuer   string
	audience []string
	kid      string
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey

	// Now is swapped in tests.
	Now func() time.Time
}

// NewIssuer creates an Issuer with a freshly generated key.
func NewIssuer(issuer string, audience []string) (*Issuer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return NewIssuerWithKey(issuer, audience, priv), nil
}

// NewIssuerWithKey wraps an existing key. The kid is derived from the public key.
func NewIssuerWithKey(issuer string, audience []string, priv ed25519.PrivateKey) *Issuer {
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Issuer{
		issuer:   issuer,
		audience: audience,
		kid:      base64.RawURLEncoding.EncodeToString(sum[:8]),
		priv:     priv,
		pub:      pub,
		Now:      time.Now,
	}
}

func (i *Issuer) Name() string       { return i.issuer }
func (i *Issuer) Audience() []string { return i.audience }
func (i *Issuer) KID() string        { return i.kid }

// JWKS returns the key set clients use to verify tokens offline.
func (i *Issuer) JWKS() JWKS {
	return JWKS{Keys: []JWK{NewEd25519JWK(i.kid, i.pub)}}
}

// Claims starts a claim set for subject using the issuer's name and audience.
func (i *Issuer) Claims(subject string, ttl time.Duration) Claims {
	return NewSessionClaims(subject, i.issuer, i.audience, ttl, i.Now().UTC())
}

// Sign turns claims into a compact JWS.
func (i *Issuer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = i.kid
	s, err := t.SignedString(i.priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

// Verify checks signature, issuer, audience and validity window.
func (i *Issuer) Verify(token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.Now),
		jwt.WithLeeway(5*time.Second),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != i.kid {
			return nil, ErrUnknownKID
		}
		return i.pub, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if len(i.audience) > 0 {
		ok := false
		for _, want := range i.audience {
			for _, got := range claims.Audience {
				if got == want {
					ok = true
				}
			}
		}
		if !ok {
			return Claims{}, ErrAudience
		}
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
