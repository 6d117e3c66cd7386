// ABOUTME: Authentication strategy resolved once at startup
// ABOUTME: Either verifies a bearer token or injects the fixed development identity

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/mcp-runtime/internal/apierr"
)

// Authenticator resolves the caller for one request from its Authorization
// header value. Errors are always UNAUTHORIZED.
type Authenticator func(ctx context.Context, authorization string) (*Claims, error)

// Options selects and tunes the authentication strategy.
type Options struct {
	// DevBypass injects DevIdentity for every request. Callers must only
	// set it for development deployments.
	DevBypass bool
	// ExposeReasons includes the verification failure reason in the error
	// message instead of the generic "authentication failed".
	ExposeReasons bool
	Logger        *slog.Logger
}

// DevIdentity is the caller injected when the development bypass is active.
func DevIdentity() *Claims {
	return &Claims{
		Subject: "dev-user",
		Issuer:  "development",
		Email:   "dev@example.com",
		Scopes:  []string{"read_assets", "write_assets"},
	}
}

// NewAuthenticator returns the strategy for this process. verifier may be nil
// only when opts.DevBypass is set.
func NewAuthenticator(opts Options, verifier TokenVerifier) (Authenticator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.DevBypass {
		logger.Warn("authentication disabled, all requests use the development identity")
		return func(context.Context, string) (*Claims, error) {
			return DevIdentity(), nil
		}, nil
	}

	if verifier == nil {
		return nil, errors.New("token verifier is required when authentication is enabled")
	}

	return func(ctx context.Context, authorization string) (*Claims, error) {
		token, errMsg := extractBearerToken(authorization)
		if errMsg != "" {
			return nil, apierr.Unauthorized("Authentication required")
		}

		claims, err := verifier.Verify(ctx, token)
		if err != nil {
			logger.Debug("token rejected", "error", err)
			if opts.ExposeReasons {
				if ae, ok := apierr.As(err); ok {
					return nil, apierr.Wrap(apierr.CodeUnauthorized, ae.Message, err)
				}
			}
			return nil, apierr.Wrap(apierr.CodeUnauthorized, "authentication failed", err)
		}
		return claims, nil
	}, nil
}
