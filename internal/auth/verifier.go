// Package auth verifies bearer tokens against the identity provider's JWKS.
// The provider issues the tokens; this package only checks them.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/portfoliokit/realtime-gateway/internal/config"
)

// clockSkew is the leeway allowed on time-based claim checks.
const clockSkew = 5 * time.Second

// Error is returned for every verification failure. Callers must not forward
// the reason to clients; the wire response stays a generic refusal.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Claims carries the verified identity attributes the gateway cares about.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// Verifier validates JWTs against a remote key set. The key-set fetcher is
// constructed lazily on first use and cached for the verifier's lifetime; the
// underlying keyfunc refreshes keys in the background.
type Verifier struct {
	jwksURL  string
	issuer   string
	audience string
	logger   *zap.Logger

	mu   sync.Mutex
	keys keyfunc.Keyfunc
}

// NewVerifier creates a verifier for the configured issuer and JWKS URL.
func NewVerifier(cfg *config.AuthConfig, logger *zap.Logger) *Verifier {
	return &Verifier{
		jwksURL:  cfg.JWKSURL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		logger:   logger,
	}
}

// Verify checks the token's signature, issuer, audience, and expiry, allowing
// clockSkew of leeway, and returns the decoded claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	if v.jwksURL == "" {
		return nil, &Error{Reason: "no JWKS configured"}
	}

	keys, err := v.keyset()
	if err != nil {
		return nil, &Error{Reason: "key set unavailable", Err: err}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keys.Keyfunc, opts...)
	if err != nil {
		return nil, &Error{Reason: "token rejected", Err: err}
	}
	if !parsed.Valid {
		return nil, &Error{Reason: "token rejected"}
	}
	if claims.Subject == "" {
		return nil, &Error{Reason: "token has no subject"}
	}

	out := &Claims{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// keyset constructs the JWKS fetcher on first use and caches it. A failed
// construction is not cached, so a temporarily unreachable key server only
// fails the verifications attempted while it is down. The background refresh
// goroutine is tied to the process lifetime, not a request context.
func (v *Verifier) keyset() (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil {
		return v.keys, nil
	}

	keys, err := keyfunc.NewDefaultCtx(context.Background(), []string{v.jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS fetcher: %w", err)
	}
	v.keys = keys
	v.logger.Info("JWKS fetcher initialized", zap.String("jwks_url", v.jwksURL))

	return v.keys, nil
}
