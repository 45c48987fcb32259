package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"userhub/internal/httpx"
)

// Recovery turns a panic into the standard 500 envelope.
func Recovery(log zerolog.Logger, exposeErrors bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Str("request_id", RequestIDFrom(c)).
					Msg("panic recovered")
				httpx.Internal(c, fmt.Errorf("panic: %v", r), exposeErrors)
			}
		}()
		c.Next()
	}
}
