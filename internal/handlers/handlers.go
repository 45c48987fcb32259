package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"userhub/internal/config"
	"userhub/internal/middleware"
	"userhub/internal/policy"
	"userhub/internal/service"
)

// Probe is a dependency health check, e.g. a database or Redis ping.
type Probe interface {
	Ping(ctx context.Context) error
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	userService *service.UserService
	users       middleware.UserLoader
	tokens      middleware.TokenVerifier
	probes      map[string]Probe
}

func NewHandlerSet(
	log zerolog.Logger,
	cfg *config.AppConfig,
	auth *service.AuthService,
	users *service.UserService,
	store middleware.UserLoader,
	tokens middleware.TokenVerifier,
	probes map[string]Probe,
) HandlerSet {
	registerValidatorTagNames()

	return HandlerSet{
		log:         log.With().Str("component", "http").Logger(),
		cfg:         cfg,
		authService: auth,
		userService: users,
		users:       store,
		tokens:      tokens,
		probes:      probes,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/health", h.Health)

	auth := router.Group("/auth")
	{
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
		auth.POST("/reset-password/:token", h.ResetPassword)
		auth.GET("/verify-reset-token/:token", h.VerifyResetToken)
	}

	users := router.Group("/users")
	users.Use(middleware.Authenticate(h.tokens))
	{
		users.GET("", h.ListUsers)
		users.GET("/profile", h.Profile)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", middleware.RequireCapability(h.users, policy.ActionUpdateUser, h.log), h.UpdateUser)
		users.DELETE("/:id", middleware.RequireCapability(h.users, policy.ActionDeleteUser, h.log), h.DeleteUser)
	}
}
