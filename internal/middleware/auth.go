package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"userhub/internal/httpx"
)

const identityKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Authenticate requires a valid bearer token and stores the caller's Identity.
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		tokenStr = strings.TrimSpace(tokenStr)
		if !ok || tokenStr == "" {
			tokenVerifications.WithLabelValues("missing").Inc()
			httpx.Abort(c, http.StatusUnauthorized, "Access denied. No token provided")
			return
		}

		userID, err := verifier.Verify(tokenStr)
		if err != nil {
			tokenVerifications.WithLabelValues("invalid").Inc()
			httpx.Abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		tokenVerifications.WithLabelValues("ok").Inc()
		c.Set(identityKey, Identity{UserID: userID})
		c.Next()
	}
}

// IdentityFrom returns the caller set by Authenticate.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
