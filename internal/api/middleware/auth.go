package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/docgen-api/internal/api/shared"
	"github.com/phrazzld/docgen-api/internal/platform/logger"
)

// Token verification errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token is expired")
)

// MinSecretLength is the shortest accepted HMAC signing secret.
const MinSecretLength = 32

// DefaultClockSkew is the leeway applied to time-based claims.
const DefaultClockSkew = 2 * time.Minute

// AuthMiddleware verifies HS256 bearer tokens issued by a trusted party.
// The API never issues tokens itself.
type AuthMiddleware struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewAuthMiddleware creates a verifier. When issuer is non-empty the token's
// iss claim must match it.
func NewAuthMiddleware(secret, issuer string, log *slog.Logger) (*AuthMiddleware, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{
		secret:    []byte(secret),
		issuer:    issuer,
		clockSkew: DefaultClockSkew,
		now:       time.Now,
		logger:    log.With("component", "auth_middleware"),
	}, nil
}

// Verify parses and validates a raw token and returns its subject.
func (m *AuthMiddleware) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid || claims.Subject == "":
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// token subject in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		subject, err := m.Verify(raw)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "Token expired"
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, msg, err, shared.WithElevatedLogLevel())
			return
		}

		ctx := shared.SetSubject(r.Context(), subject)
		logger.FromContextOr(ctx, m.logger).Debug("request authenticated", "subject", subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
