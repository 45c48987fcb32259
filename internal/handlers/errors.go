package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"userhub/internal/httpx"
	"userhub/internal/service"
)

var tagNamesOnce sync.Once

// registerValidatorTagNames makes validation errors report JSON field names.
func registerValidatorTagNames() {
	tagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func validationReasons(errs validator.ValidationErrors) []string {
	reasons := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "max":
			reasons = append(reasons, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "required":
			reasons = append(reasons, fe.Field()+" is required")
		default:
			reasons = append(reasons, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return reasons
}

// bindJSON decodes the body and reports a 400 itself when it fails. An empty
// body binds as an empty object so the service can name the missing fields.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeBindError(c, err)
		return false
	}
	return true
}

func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		httpx.Fail(c, http.StatusBadRequest, "Validation failed", validationReasons(verrs))
		return
	}
	httpx.Fail(c, http.StatusBadRequest, "Invalid request body", nil)
}

// handleServiceError maps service errors onto status codes and messages.
func (h HandlerSet) handleServiceError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.Fail(c, http.StatusBadRequest, verr.Message, verr.Reasons)
	case errors.Is(err, service.ErrEmailTaken):
		httpx.Fail(c, http.StatusConflict, "User with this email already exists", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.Fail(c, http.StatusUnauthorized, "Invalid email or password", nil)
	case errors.Is(err, service.ErrResetTokenInvalid):
		httpx.Fail(c, http.StatusBadRequest, "Invalid or expired reset token", nil)
	case errors.Is(err, service.ErrPasswordReused):
		httpx.Fail(c, http.StatusBadRequest, "Cannot reuse a recent password. Please choose a new one.", nil)
	case errors.Is(err, service.ErrInvalidUserID):
		httpx.Fail(c, http.StatusBadRequest, "Invalid user ID format", nil)
	case errors.Is(err, service.ErrUserNotFound):
		httpx.Fail(c, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, service.ErrSelfDelete):
		httpx.Fail(c, http.StatusForbidden, "Cannot delete your own account", nil)
	case errors.Is(err, service.ErrMailDelivery):
		httpx.Fail(c, http.StatusInternalServerError, "Failed to send reset email. Please try again later.", nil)
	default:
		h.log.Error().Err(err).
			Str("path", c.FullPath()).
			Msg("unhandled service error")
		_ = c.Error(err)
		httpx.Internal(c, err, !h.cfg.IsProduction())
	}
}
