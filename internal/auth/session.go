// Package auth implements C8: opaque session-id cookie authentication with
// sliding renewal, plus the bcrypt password policy routes authenticate
// against (§4.8, B3).
package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// tokenClaims is embedded in the signed cookie value. The session id is
// the source of truth's primary key; the JWT only provides tamper-evidence
// and an outer expiry bound, never authorization data — role and identity
// always come from re-resolving the session record.
type tokenClaims struct {
	SessionID string `json:"sid"`
}

// TokenSigner issues and verifies the HMAC-signed envelope around an
// opaque session id.
type TokenSigner struct {
	signingKey []byte
	maxAge     time.Duration
}

// NewTokenSigner creates a signer. secret must be at least 32 bytes.
func NewTokenSigner(secret string, maxAge time.Duration) (*TokenSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenSigner{signingKey: []byte(secret), maxAge: maxAge}, nil
}

// Issue signs a new token wrapping sessionID.
func (s *TokenSigner) Issue(sessionID string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(s.maxAge)),
		Issuer:   "kollab",
	}
	token, err := jwt.Signed(signer).Claims(registered).Claims(tokenClaims{SessionID: sessionID}).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Verify checks the signature and outer expiry and returns the embedded
// session id. It does not consult the session store — Manager.Validate
// does that to honor revocation.
func (s *TokenSigner) Verify(raw string) (string, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom tokenClaims
	if err := tok.Claims(s.signingKey, &registered, &custom); err != nil {
		return "", fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{Issuer: "kollab", Time: time.Now()}, 5*time.Second); err != nil {
		return "", fmt.Errorf("validating claims: %w", err)
	}
	if custom.SessionID == "" {
		return "", fmt.Errorf("token carries no session id")
	}
	return custom.SessionID, nil
}

// NewSessionID generates the opaque session identifier stored both in the
// database and as the cache key.
func NewSessionID() string {
	return uuid.New().String()
}
