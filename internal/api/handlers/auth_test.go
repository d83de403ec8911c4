package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/core"
	"fruitbox/internal/types"
)

type stubAuthService struct {
	user    *types.User
	session *types.Session
	err     error

	registeredEmail string
	loginEmail      string
	loggedOut       []string
	passwordChanged bool
}

func (s *stubAuthService) Register(ctx context.Context, email, name, password, ip, userAgent string) (*types.User, *types.Session, error) {
	s.registeredEmail = email
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.user, s.session, nil
}

func (s *stubAuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*types.User, *types.Session, error) {
	s.loginEmail = email
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.user, s.session, nil
}

func (s *stubAuthService) Logout(ctx context.Context, sessionID string) error {
	s.loggedOut = append(s.loggedOut, sessionID)
	return s.err
}

func (s *stubAuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if s.err != nil {
		return s.err
	}
	s.passwordChanged = true
	return nil
}

type stubUserReader struct {
	user *types.User
	err  error
}

func (s *stubUserReader) GetByID(ctx context.Context, id string) (*types.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func newAuthFixture() (*AuthHandler, *stubAuthService) {
	service := &stubAuthService{
		user: &types.User{ID: "usr_1", Email: "ada@example.com", Name: "Ada Byron", Role: types.RoleCustomer, Status: types.UserActive},
		session: &types.Session{
			ID:        "sess_1",
			UserID:    "usr_1",
			CSRFToken: "csrf_token_1",
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	h := NewAuthHandler(service, &stubUserReader{user: service.user}, testValidator(), testLogger(), false)
	return h, service
}

func TestAuthHandler_Register(t *testing.T) {
	h, service := newAuthFixture()

	rec := serve(t, h, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "Ada@Example.COM",
		Name:     "Ada Byron",
		Password: "correct-horse",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	// Email is canonicalized before hitting the service.
	assert.Equal(t, "ada@example.com", service.registeredEmail)

	var data AuthResponse
	decodeData(t, rec, &data)
	assert.Equal(t, "usr_1", data.User.ID)
	assert.Equal(t, "csrf_token_1", data.CSRFToken)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, core.SessionCookieName, cookies[0].Name)
	assert.Equal(t, "sess_1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestAuthHandler_Register_ValidationFailure(t *testing.T) {
	h, _ := newAuthFixture()

	rec := serve(t, h, http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "not-an-email",
		Name:     "Ada",
		Password: "short",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidField), errorCode(t, rec))
}

func TestAuthHandler_Login(t *testing.T) {
	h, service := newAuthFixture()

	rec := serve(t, h, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-horse",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", service.loginEmail)
	require.Len(t, rec.Result().Cookies(), 1)
}

func TestAuthHandler_Login_BadCredentials(t *testing.T) {
	h, service := newAuthFixture()
	service.err = types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)

	rec := serve(t, h, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "ada@example.com",
		Password: "wrong",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthInvalidCreds), errorCode(t, rec))
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	h, service := newAuthFixture()

	router := chi.NewRouter()
	h.RegisterRoutes(router)
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: core.SessionCookieName, Value: "sess_1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sess_1"}, service.loggedOut)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestAuthHandler_Logout_WithoutSessionStillSucceeds(t *testing.T) {
	h, service := newAuthFixture()

	rec := serve(t, h, http.MethodPost, "/auth/logout", nil, nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, service.loggedOut)
}

func TestAuthHandler_Me(t *testing.T) {
	h, _ := newAuthFixture()
	actor := customerActor("usr_1")

	rec := serve(t, h, http.MethodGet, "/auth/me", nil, &actor)

	require.Equal(t, http.StatusOK, rec.Code)
	var user types.User
	decodeData(t, rec, &user)
	assert.Equal(t, "usr_1", user.ID)
}

func TestAuthHandler_Me_Anonymous(t *testing.T) {
	h, _ := newAuthFixture()

	rec := serve(t, h, http.MethodGet, "/auth/me", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthSessionMissing), errorCode(t, rec))
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	h, service := newAuthFixture()
	actor := customerActor("usr_1")

	rec := serve(t, h, http.MethodPost, "/auth/change-password", ChangePasswordRequest{
		CurrentPassword: "correct-horse",
		NewPassword:     "battery-staple",
	}, &actor)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, service.passwordChanged)

	// The cookie is cleared so the client re-authenticates.
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
