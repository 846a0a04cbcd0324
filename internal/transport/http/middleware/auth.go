package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

const claimsKey = "session_claims"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// SessionValidator verifies the signature and expiry of a session token.
type SessionValidator interface {
	ValidateSessionToken(token string) (domain.SessionClaims, error)
}

// RevocationLookup answers whether a token identifier has been revoked.
type RevocationLookup interface {
	IsRevoked(ctx context.Context, jti string) bool
}

// RequireSession authenticates the bearer token for routes of realm.
// Checks run in order: header shape, signature and expiry, revocation, realm.
func RequireSession(tokens SessionValidator, revocations RevocationLookup, realm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		claims, err := tokens.ValidateSessionToken(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrExpiredToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "token expired"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			}
			return
		}

		if revocations != nil && revocations.IsRevoked(c.Request.Context(), claims.JTI) {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "token revoked"))
			return
		}

		if !strings.EqualFold(claims.Realm, realm) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "token issued for another realm"))
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(claimsKey, claims)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.UserID
		}

		c.Next()
	}
}

// GetSessionClaims retrieves the claims stored by RequireSession.
func GetSessionClaims(c *gin.Context) (domain.SessionClaims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return domain.SessionClaims{}, false
	}
	claims, ok := v.(domain.SessionClaims)
	return claims, ok
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
