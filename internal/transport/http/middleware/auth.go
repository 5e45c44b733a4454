package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/bloodbank/internal/access"
	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/metrics"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	"github.com/gin-gonic/gin"
)

// DefaultPublicPrefixes are the paths the filter never inspects.
var DefaultPublicPrefixes = []string{"/auth/", "/health", "/livez", "/readyz", "/meta/"}

// tokenVerifier is the subset of token.Service the filter needs.
type tokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
	ExtractIdentity(raw string) string
}

// principalFinder is the subset of the credential store the filter needs.
type principalFinder interface {
	FindByUsername(ctx context.Context, username string) (*domain.Principal, error)
}

// Authenticate binds the bearer token's principal to the request context.
// It never rejects: a missing, invalid or stale token leaves the request
// anonymous and the route's Require decides.
func Authenticate(tokens tokenVerifier, users principalFinder, logger *slog.Logger, publicPrefixes ...string) gin.HandlerFunc {
	logger = logger.With("component", "access_filter")

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range publicPrefixes {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		ctx := c.Request.Context()

		claims, err := tokens.Verify(raw)
		if err != nil {
			reason := token.Reason(err)
			metrics.TokenRejectionsTotal.WithLabelValues(reason).Inc()
			logger.WarnContext(ctx, "bearer token rejected",
				"reason", reason,
				"claimed_subject", tokens.ExtractIdentity(raw),
				"path", path,
			)
			c.Next()
			return
		}

		p, err := users.FindByUsername(ctx, claims.Username())
		if err != nil {
			metrics.TokenRejectionsTotal.WithLabelValues("unknown_principal").Inc()
			logger.WarnContext(ctx, "token subject not resolvable", "subject", claims.Username(), "error", err)
			c.Next()
			return
		}
		if !p.Active {
			metrics.TokenRejectionsTotal.WithLabelValues("inactive").Inc()
			logger.WarnContext(ctx, "token subject is deactivated", "subject", p.Username)
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(access.WithPrincipal(ctx, p))
		c.Next()
	}
}

// Require enforces policy for a route. targetParam names the path parameter
// holding the target principal ID for SelfOrAdmin; it is ignored otherwise.
func Require(policy access.Policy, targetParam string) gin.HandlerFunc {
	name := policy.String()

	return func(c *gin.Context) {
		var target string
		if targetParam != "" {
			target = c.Param(targetParam)
		}

		err := policy.Check(access.FromContext(c.Request.Context()), target)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, domain.ErrAuthenticationRequired):
			metrics.AccessDeniedTotal.WithLabelValues(name, "anonymous").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			metrics.AccessDeniedTotal.WithLabelValues(name, "role").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
		}
	}
}
