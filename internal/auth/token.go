// ABOUTME: Bearer token verification against issuer-published asymmetric keys
// ABOUTME: Enforces algorithm allow-list, issuer, optional audience, expiry, and subject

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/mcp-runtime/internal/apierr"
)

// AllowedAlgorithms are the only JWS algorithms accepted. Symmetric and
// "none" algorithms are rejected before any key lookup.
var AllowedAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

var (
	errMissingKeyID      = errors.New("token missing key ID")
	errAlgorithmMismatch = errors.New("token algorithm does not match key")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Issuer   string
	Audience string // empty skips the audience check
	Now      func() time.Time
}

// Verifier implements TokenVerifier using keys from a KeyStore.
type Verifier struct {
	keys   KeyStore
	parser *jwt.Parser
}

// NewVerifier creates a verifier that resolves keys through keys.
func NewVerifier(keys KeyStore, cfg VerifierConfig) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("key store is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(AllowedAlgorithms),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &Verifier{
		keys:   keys,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify validates raw and returns the caller's claims. Every failure is an
// UNAUTHORIZED apierr.Error whose message names the reason.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, apierr.Unauthorized("empty token")
	}

	var tc tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &tc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKeyID
		}
		key, err := v.keys.SigningKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		if key.Algorithm != "" && key.Algorithm != t.Method.Alg() {
			return nil, fmt.Errorf("%w: key %s is %s, token is %s", errAlgorithmMismatch, kid, key.Algorithm, t.Method.Alg())
		}
		return key.Key, nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeUnauthorized, failureReason(err), err)
	}

	if tc.Subject == "" {
		return nil, apierr.Unauthorized("token missing subject")
	}

	return tc.toClaims(raw), nil
}

// failureReason turns a jwt parse error into a short human-readable reason.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errMissingKeyID):
		return "token missing key ID"
	case errors.Is(err, errAlgorithmMismatch):
		return "token algorithm does not match key"
	case apierr.CodeOf(err) == apierr.CodeKeyFetch:
		return "signing key unavailable"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "token not yet valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "invalid audience"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "token missing required claim"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return "invalid signature"
	default:
		return "invalid token"
	}
}
