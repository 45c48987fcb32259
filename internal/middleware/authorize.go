package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"userhub/internal/httpx"
	"userhub/internal/models"
	"userhub/internal/policy"
	"userhub/internal/repository"
)

type UserLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// RequireCapability reloads the caller's record and checks its current role,
// so a demotion takes effect without waiting for the token to expire.
func RequireCapability(users UserLoader, action policy.Action, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			httpx.Abort(c, http.StatusUnauthorized, "Access denied. No token provided")
			return
		}

		user, err := users.GetByID(c.Request.Context(), identity.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				httpx.Abort(c, http.StatusNotFound, "User not found")
				return
			}
			log.Error().Err(err).Str("user_id", identity.UserID).Msg("load caller")
			httpx.Internal(c, err, false)
			return
		}

		if !policy.Can(user.Role, action) {
			httpx.Abort(c, http.StatusForbidden, "Access denied. Admin privileges required")
			return
		}

		c.Next()
	}
}
