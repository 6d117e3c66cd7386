// Package auth provides bearer-token authentication for the MCP server.
//
// # Key Cache
//
// Tokens are signed by an external issuer that publishes its public keys as a
// JSON Web Key Set. JWKSCache fetches that document on demand and caches each
// key by "kid":
//
//	keys, err := auth.NewJWKSCache(auth.JWKSCacheConfig{
//	    URL:               "https://api.commands.com/.well-known/jwks.json",
//	    TTL:               10 * time.Minute,
//	    RequestsPerMinute: 5,
//	})
//
// Concurrent misses for one kid share a single fetch. Fetches are bounded by a
// token bucket; when it is empty lookups fail with ErrKeyFetchRateLimited.
//
// # Token Verification
//
// Verifier accepts RS*, PS*, ES* and EdDSA tokens only. It requires a kid, the
// configured issuer, an unexpired exp, and a non-empty sub. The audience is
// checked only when one is configured.
//
// # Authentication Strategy
//
// NewAuthenticator is called once at startup. It returns either a verifying
// Authenticator or, for development deployments with the bypass enabled, one
// that always yields DevIdentity. Middleware attaches the resulting Claims to
// the request context; tools read them with FromContext.
//
// # Scopes
//
// Scopes come from the "scp" claim (array or space-delimited string) and the
// "scope" claim. HasScope and RequireScope check exact membership.
package auth
