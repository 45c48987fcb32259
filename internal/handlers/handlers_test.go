package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"userhub/internal/config"
	"userhub/internal/mail"
	"userhub/internal/middleware"
	"userhub/internal/models"
	"userhub/internal/repository"
	"userhub/internal/security"
	"userhub/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingMailer struct {
	mu   sync.Mutex
	urls []string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, msg mail.PasswordResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, msg.ResetURL)
	return nil
}

func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.urls)
	u := m.urls[len(m.urls)-1]
	return u[strings.LastIndex(u, "/")+1:]
}

type failingListStore struct {
	*repository.MemoryUserRepository
}

func (failingListStore) List(context.Context) ([]models.User, error) {
	return nil, errors.New("connection reset by peer")
}

type probeFunc func(ctx context.Context) error

func (f probeFunc) Ping(ctx context.Context) error { return f(ctx) }

type testAPI struct {
	router *gin.Engine
	mailer *recordingMailer
	store  *repository.MemoryUserRepository
}

func newTestAPI(t *testing.T, wrap func(*repository.MemoryUserRepository) service.UserStore) *testAPI {
	t.Helper()

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTSecret:     "handler-secret",
			JWTTTL:        time.Hour,
			ResetTokenTTL: 15 * time.Minute,
		},
		Mail: config.MailConfig{ClientURL: "http://localhost:5173"},
	}

	mem := repository.NewMemoryUserRepository()
	var store service.UserStore = mem
	if wrap != nil {
		store = wrap(mem)
	}

	tokens := security.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTTTL)
	mailer := &recordingMailer{}
	auth := service.NewAuthService(store, security.NewBcryptHasher(bcrypt.MinCost), tokens, mailer, cfg, zerolog.Nop())
	users := service.NewUserService(store, zerolog.Nop())

	probes := map[string]Probe{
		"database": probeFunc(func(context.Context) error { return nil }),
		"cache":    probeFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	}
	set := NewHandlerSet(zerolog.Nop(), cfg, auth, users, store, tokens, probes)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(zerolog.Nop(), true))
	set.Register(r.Group("/api"))

	return &testAPI{router: r, mailer: mailer, store: mem}
}

type response struct {
	Code int
	Body map[string]any
	Raw  string
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Raw: rec.Body.String()}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out.Body), rec.Body.String())
	}
	return out
}

func registration(email, role string) map[string]any {
	body := map[string]any{
		"email":        email,
		"password":     "Password1",
		"firstName":    "John",
		"lastName":     "Doe",
		"gender":       "Male",
		"mobileNumber": "1234567890",
		"city":         "New York",
	}
	if role != "" {
		body["role"] = role
	}
	return body
}

// register returns the new user's token and id.
func (a *testAPI) register(t *testing.T, email, role string) (string, string) {
	t.Helper()
	res := a.do(t, http.MethodPost, "/api/auth/register", registration(email, role), "")
	require.Equal(t, http.StatusCreated, res.Code, res.Raw)
	user := res.Body["user"].(map[string]any)
	return res.Body["token"].(string), user["id"].(string)
}

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodPost, "/api/auth/register", registration("john@example.com", ""), "")
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, true, res.Body["success"])
	assert.Equal(t, "User registered successfully", res.Body["message"])
	assert.NotEmpty(t, res.Body["token"])
	user := res.Body["user"].(map[string]any)
	assert.Equal(t, "john@example.com", user["email"])
	assert.Equal(t, "Employee", user["role"])

	res = api.do(t, http.MethodPost, "/api/auth/register", registration("john@example.com", ""), "")
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "User with this email already exists", res.Body["message"])
}

func TestRegisterEndpointValidation(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodPost, "/api/auth/register", map[string]any{"email": "bad"}, "")
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Validation failed", res.Body["message"])
	assert.Contains(t, res.Body["errors"], "Email format is invalid")
	assert.Contains(t, res.Body["errors"], "password is required")

	res = api.do(t, http.MethodPost, "/api/auth/register", nil, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body["errors"], "email is required")

	res = api.do(t, http.MethodPost, "/api/auth/register", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Invalid request body", res.Body["message"])

	long := registration("long@example.com", "")
	long["firstName"] = strings.Repeat("x", 101)
	res = api.do(t, http.MethodPost, "/api/auth/register", long, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, []any{"firstName must be at most 100 characters"}, res.Body["errors"])

	long = registration("long@example.com", "")
	long["password"] = "Aa1" + strings.Repeat("x", 90)
	res = api.do(t, http.MethodPost, "/api/auth/register", long, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Validation failed", res.Body["message"])
	assert.Equal(t, []any{"Password must be at most 72 bytes"}, res.Body["errors"])
}

func TestLoginEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register(t, "login@example.com", "")

	res := api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "login@example.com", "password": "Password1"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Login successful", res.Body["message"])
	assert.NotEmpty(t, res.Body["token"])

	wrong := api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "login@example.com", "password": "Nope12345"}, "")
	unknown := api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "ghost@example.com", "password": "Password1"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Raw, unknown.Raw)
	assert.Equal(t, "Invalid email or password", wrong.Body["message"])

	res = api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "login@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Email and password are required", res.Body["message"])

	res = api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "nope", "password": "x"}, "")
	assert.Equal(t, "Invalid email format", res.Body["message"])
}

func TestPasswordResetFlow(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register(t, "reset@example.com", "")

	known := api.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "reset@example.com"}, "")
	unknown := api.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "nobody@example.com"}, "")
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Raw, unknown.Raw)
	assert.Equal(t, forgotPasswordMessage, known.Body["message"])

	token := api.mailer.lastToken(t)

	res := api.do(t, http.MethodGet, "/api/auth/verify-reset-token/"+token, nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "reset@example.com", res.Body["email"])

	res = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, map[string]any{"password": "Password1"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Cannot reuse a recent password. Please choose a new one.", res.Body["message"])

	res = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, map[string]any{"password": "weak"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Password validation failed", res.Body["message"])
	assert.NotEmpty(t, res.Body["errors"])

	res = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, map[string]any{"password": "BrandNew42"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Password has been reset successfully", res.Body["message"])

	res = api.do(t, http.MethodPost, "/api/auth/reset-password/"+token, map[string]any{"password": "Another42"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Invalid or expired reset token", res.Body["message"])

	res = api.do(t, http.MethodGet, "/api/auth/verify-reset-token/"+token, nil, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = api.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "reset@example.com", "password": "BrandNew42"}, "")
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestResetPasswordTokenInBody(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register(t, "body@example.com", "")

	api.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]any{"email": "body@example.com"}, "")
	token := api.mailer.lastToken(t)

	res := api.do(t, http.MethodPost, "/api/auth/reset-password", map[string]any{"password": "BrandNew42"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Token and new password are required", res.Body["message"])

	res = api.do(t, http.MethodPost, "/api/auth/reset-password", map[string]any{"token": token, "password": "BrandNew42"}, "")
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestUsersRequireToken(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodGet, "/api/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Access denied. No token provided", res.Body["message"])

	res = api.do(t, http.MethodGet, "/api/users", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Invalid or expired token", res.Body["message"])
}

func TestEmployeeAccess(t *testing.T) {
	api := newTestAPI(t, nil)
	empToken, empID := api.register(t, "emp@example.com", "")
	_, otherID := api.register(t, "other@example.com", "")

	res := api.do(t, http.MethodGet, "/api/users", nil, empToken)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(2), res.Body["count"])
	for _, raw := range res.Body["data"].([]any) {
		u := raw.(map[string]any)
		for _, hidden := range []string{"password", "passwordHash", "passwordHistory", "resetToken", "resetTokenExpiry"} {
			assert.NotContains(t, u, hidden)
		}
	}

	res = api.do(t, http.MethodGet, "/api/users/profile", nil, empToken)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, empID, res.Body["data"].(map[string]any)["id"])

	res = api.do(t, http.MethodGet, "/api/users/"+otherID, nil, empToken)
	assert.Equal(t, http.StatusOK, res.Code)

	res = api.do(t, http.MethodGet, "/api/users/not-an-id", nil, empToken)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Invalid user ID format", res.Body["message"])

	res = api.do(t, http.MethodPut, "/api/users/"+otherID, map[string]any{"city": "Boston"}, empToken)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Access denied. Admin privileges required", res.Body["message"])

	res = api.do(t, http.MethodDelete, "/api/users/"+otherID, nil, empToken)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestAdminManagesUsers(t *testing.T) {
	api := newTestAPI(t, nil)
	adminToken, adminID := api.register(t, "admin@example.com", "Admin")
	_, empID := api.register(t, "emp@example.com", "")

	res := api.do(t, http.MethodPut, "/api/users/"+empID, map[string]any{"city": "Boston", "role": "Manager"}, adminToken)
	require.Equal(t, http.StatusOK, res.Code, res.Raw)
	data := res.Body["data"].(map[string]any)
	assert.Equal(t, "Boston", data["city"])
	assert.Equal(t, "Manager", data["role"])

	res = api.do(t, http.MethodPut, "/api/users/"+empID, map[string]any{"password": "Hacked123"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Cannot update restricted fields", res.Body["message"])

	res = api.do(t, http.MethodPut, "/api/users/"+empID, map[string]any{"email": "admin@example.com"}, adminToken)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = api.do(t, http.MethodPut, "/api/users/"+empID, map[string]any{"gender": "Robot"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Validation failed", res.Body["message"])

	res = api.do(t, http.MethodDelete, "/api/users/"+adminID, nil, adminToken)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Cannot delete your own account", res.Body["message"])

	res = api.do(t, http.MethodDelete, "/api/users/"+empID, nil, adminToken)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "User deleted successfully", res.Body["message"])

	res = api.do(t, http.MethodGet, "/api/users/"+empID, nil, adminToken)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "User not found", res.Body["message"])
}

func TestDeletedCallerLosesAdminRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	adminToken, adminID := api.register(t, "gone@example.com", "Admin")
	_, empID := api.register(t, "still@example.com", "")

	require.NoError(t, api.store.Delete(context.Background(), adminID))

	res := api.do(t, http.MethodDelete, "/api/users/"+empID, nil, adminToken)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "User not found", res.Body["message"])

	res = api.do(t, http.MethodGet, "/api/users/profile", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestUnexpectedErrorIsInternal(t *testing.T) {
	api := newTestAPI(t, func(m *repository.MemoryUserRepository) service.UserStore {
		return failingListStore{m}
	})
	token, _ := api.register(t, "fail@example.com", "")

	res := api.do(t, http.MethodGet, "/api/users", nil, token)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, false, res.Body["success"])
	assert.Equal(t, "connection reset by peer", res.Body["error"])
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.do(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.Body["success"])
	assert.Equal(t, "degraded", res.Body["status"])
	assert.Equal(t, map[string]any{"database": "ok", "cache": "error"}, res.Body["checks"])
}
