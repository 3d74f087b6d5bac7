package signerd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"eragonauth/config"
	"eragonauth/observability/logging"
)

type contextKey string

const contextKeySubject contextKey = "signerd.subject"

// Authenticator validates HMAC-signed bearer tokens issued to game servers.
type Authenticator struct {
	cfg       config.AuthConfig
	secret    []byte
	clockSkew time.Duration
	logger    *slog.Logger
}

// NewAuthenticator builds an authenticator from cfg. A disabled config lets
// every request through.
func NewAuthenticator(cfg config.AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		cfg:       cfg,
		secret:    []byte(strings.TrimSpace(cfg.HMACSecret)),
		clockSkew: 2 * time.Minute,
		logger:    logger,
	}
}

// Middleware rejects requests without a valid token carrying the configured
// scope.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		claims, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.Warn("token validation failed", "error", err, logging.MaskField("token", tokenString))
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		if a.cfg.Scope != "" && !hasScope(extractScopes(claims), a.cfg.Scope) {
			writeError(w, http.StatusForbidden, errors.New("insufficient scope"))
			return
		}
		subject, _ := claims.GetSubject()
		ctx := context.WithValue(r.Context(), contextKeySubject, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func extractScopes(claims jwt.MapClaims) []string {
	switch v := claims["scope"].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScope(scopes []string, required string) bool {
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
}

func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// subjectFrom returns the authenticated token subject, if any.
func subjectFrom(ctx context.Context) string {
	subject, _ := ctx.Value(contextKeySubject).(string)
	return subject
}
