package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"userhub/internal/httpx"
	"userhub/internal/middleware"
	"userhub/internal/models"
	"userhub/internal/service"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	data := make([]userResponse, 0, len(users))
	for _, u := range users {
		data = append(data, newUserResponse(u))
	}
	httpx.OK(c, http.StatusOK, "", gin.H{
		"count": len(data),
		"data":  data,
	})
}

func (h HandlerSet) Profile(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	user, err := h.userService.Get(c.Request.Context(), identity.UserID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, "", gin.H{"data": newUserResponse(user)})
}

func (h HandlerSet) GetUser(c *gin.Context) {
	user, err := h.userService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, "", gin.H{"data": newUserResponse(user)})
}

type updateUserRequest struct {
	Email        *string `json:"email" binding:"omitempty,max=254"`
	FirstName    *string `json:"firstName" binding:"omitempty,max=100"`
	LastName     *string `json:"lastName" binding:"omitempty,max=100"`
	Gender       *string `json:"gender"`
	MobileNumber *string `json:"mobileNumber" binding:"omitempty,max=32"`
	City         *string `json:"city" binding:"omitempty,max=100"`
	Role         *string `json:"role"`
}

func (r updateUserRequest) patch() models.ProfilePatch {
	p := models.ProfilePatch{
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		MobileNumber: r.MobileNumber,
		City:         r.City,
	}
	if r.Gender != nil {
		g := models.Gender(*r.Gender)
		p.Gender = &g
	}
	if r.Role != nil {
		role := models.UserRole(*r.Role)
		p.Role = &role
	}
	return p
}

// UpdateUser decodes the body twice: once for the field names present, which
// drive the restricted-field check, and once into the typed patch.
func (h HandlerSet) UpdateUser(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	fields := make([]string, 0, len(present))
	for k := range present {
		fields = append(fields, k)
	}

	var req updateUserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, err := h.userService.Update(c.Request.Context(), c.Param("id"), service.UpdateInput{
		Fields: fields,
		Patch:  req.patch(),
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	httpx.OK(c, http.StatusOK, "User updated successfully", gin.H{"data": newUserResponse(user)})
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	if err := h.userService.Delete(c.Request.Context(), identity.UserID, c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	httpx.OK(c, http.StatusOK, "User deleted successfully", nil)
}
