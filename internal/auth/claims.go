// ABOUTME: Verified caller identity extracted from a bearer token
// ABOUTME: Scope membership checks used by tools that need authorization

package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/mcp-runtime/internal/apierr"
)

// Claims is the identity of the caller for one request.
type Claims struct {
	Subject  string    `json:"sub"`
	Issuer   string    `json:"iss,omitempty"`
	Audience []string  `json:"aud,omitempty"`
	Expiry   time.Time `json:"exp"`
	Scopes   []string  `json:"scopes,omitempty"`
	Email    string    `json:"email,omitempty"`

	// Token is the raw bearer token, kept for tools that call other
	// services on the caller's behalf. Empty for the development identity.
	Token string `json:"-"`
}

// HasScope reports whether the claims grant scope. Nil claims have no scopes.
func HasScope(c *Claims, scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RequireScope returns a FORBIDDEN error unless the claims grant scope.
func RequireScope(c *Claims, scope string) error {
	if HasScope(c, scope) {
		return nil
	}
	return apierr.Forbidden(fmt.Sprintf("missing required scope: %s", scope))
}

// tokenClaims is the wire form decoded by the JWT parser.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scp   scopeList `json:"scp,omitempty"`
	Scope string    `json:"scope,omitempty"`
	Email string    `json:"email,omitempty"`
}

// scopeList accepts either a JSON array or a space-delimited string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("scp must be a string or array of strings")
	}
	*s = strings.Fields(str)
	return nil
}

func (tc *tokenClaims) toClaims(raw string) *Claims {
	c := &Claims{
		Subject:  tc.Subject,
		Issuer:   tc.Issuer,
		Audience: tc.Audience,
		Email:    tc.Email,
		Token:    raw,
	}
	if tc.ExpiresAt != nil {
		c.Expiry = tc.ExpiresAt.Time
	}
	c.Scopes = dedupe(append(append([]string(nil), tc.Scp...), strings.Fields(tc.Scope)...))
	return c
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
