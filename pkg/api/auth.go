package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/security/auth"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/telemetry/tracing"
)

// UserHeader names the acting user when authentication is disabled.
const UserHeader = "X-User-ID"

// AnonymousUser is the actor recorded for unauthenticated requests.
const AnonymousUser = "anonymous"

// Authenticator validates HS256 bearer tokens or static API keys and
// extracts the acting user.
type Authenticator struct {
	secret    []byte
	issuer    string
	userClaim string
	parser    *jwt.Parser
	keys      *auth.KeyValidator
}

// NewAuthenticator creates an authenticator from the auth configuration.
// An empty issuer accepts tokens from any issuer; an empty user claim reads
// "sub". Bearer tokens are refused when no secret is configured.
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	secret, issuer, userClaim := cfg.JWTSecret, cfg.Issuer, cfg.UserClaim
	if userClaim == "" {
		userClaim = "sub"
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{
		secret:    []byte(secret),
		issuer:    issuer,
		userClaim: userClaim,
		parser:    jwt.NewParser(opts...),
		keys:      auth.NewKeyValidator(cfg.APIKeys),
	}
}

// Authenticate returns the user named by a bearer token.
func (a *Authenticator) Authenticate(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: missing bearer token", errUnauthenticated)
	}
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: bearer tokens are not accepted", errUnauthenticated)
	}

	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnauthenticated, err)
	}

	user, _ := claims[a.userClaim].(string)
	if user == "" {
		return "", fmt.Errorf("%w: token has no %q claim", errUnauthenticated, a.userClaim)
	}
	return user, nil
}

// authenticateRequest prefers an API key over a bearer token.
func (a *Authenticator) authenticateRequest(r *http.Request) (string, error) {
	if key, ok := auth.KeyFromRequest(r); ok {
		user, err := a.keys.Validate(key)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errUnauthenticated, err)
		}
		return user, nil
	}
	return a.Authenticate(r.Header.Get("Authorization"))
}

// Middleware rejects requests without valid credentials and stores the
// user in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticateRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// headerUser trusts the X-User-ID header. It is only installed when
// authentication is disabled.
func headerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			user = AnonymousUser
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func withUser(ctx context.Context, user string) context.Context {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrUser, user))
	return logging.WithUser(ctx, user)
}

// userFrom returns the acting user of a request.
func userFrom(ctx context.Context) string {
	if u := logging.GetUser(ctx); u != "" {
		return u
	}
	return AnonymousUser
}

// IsUnauthenticated reports whether err came from token validation.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, errUnauthenticated)
}
