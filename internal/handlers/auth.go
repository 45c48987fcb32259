package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"userhub/internal/httpx"
	"userhub/internal/service"
)

const forgotPasswordMessage = "If your email is registered, you will receive a password reset link"

type registerRequest struct {
	Email        string `json:"email" binding:"max=254"`
	Password     string `json:"password" binding:"max=128"`
	FirstName    string `json:"firstName" binding:"max=100"`
	LastName     string `json:"lastName" binding:"max=100"`
	Gender       string `json:"gender"`
	MobileNumber string `json:"mobileNumber" binding:"max=32"`
	City         string `json:"city" binding:"max=100"`
	Role         string `json:"role"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Gender:       req.Gender,
		MobileNumber: req.MobileNumber,
		City:         req.City,
		Role:         req.Role,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	registrationsTotal.Inc()
	httpx.OK(c, http.StatusCreated, "User registered successfully", gin.H{
		"token": result.Token,
		"user":  newAuthUserResponse(result.User),
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"max=254"`
	Password string `json:"password" binding:"max=128"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	loginAttemptsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	httpx.OK(c, http.StatusOK, "Login successful", gin.H{
		"token": result.Token,
		"user":  newAuthUserResponse(result.User),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"max=254"`
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.authService.ForgotPassword(c.Request.Context(), req.Email)
	resetRequestsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	httpx.OK(c, http.StatusOK, forgotPasswordMessage, nil)
}

func (h HandlerSet) VerifyResetToken(c *gin.Context) {
	email, err := h.authService.VerifyResetToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	httpx.OK(c, http.StatusOK, "Token is valid", gin.H{"email": email})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password" binding:"max=128"`
}

// ResetPassword serves both /reset-password/:token and /reset-password with
// the token in the body; the path wins when both are present.
func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	token := c.Param("token")
	if token == "" {
		token = req.Token
	}

	err := h.authService.ResetPassword(c.Request.Context(), service.ResetPasswordInput{
		Token:    token,
		Password: req.Password,
	})
	resetCompletionsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	httpx.OK(c, http.StatusOK, "Password has been reset successfully", nil)
}
