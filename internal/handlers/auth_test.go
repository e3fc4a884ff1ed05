package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuddy/apiserver/internal/auth"
	"github.com/codebuddy/apiserver/internal/logging"
	"github.com/codebuddy/apiserver/internal/services"
	"github.com/codebuddy/apiserver/internal/store"
	"github.com/codebuddy/apiserver/types"
)

// memRepo is a single-map in-memory user store; enough to drive the
// HTTP surface through real service wiring.
type memRepo struct {
	users  map[string]types.User
	logins map[string][]types.LoginRecord
	seq    int
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]types.User), logins: make(map[string][]types.LoginRecord)}
}

func (m *memRepo) GetByID(_ context.Context, id string) (types.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memRepo) GetByOAuthID(_ context.Context, oauthID string) (types.User, error) {
	for _, user := range m.users {
		if user.OAuthID == oauthID && oauthID != "" {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memRepo) Create(_ context.Context, user types.User) (types.User, error) {
	m.seq++
	user.ID = "u-" + strconv.Itoa(m.seq)
	user.CreatedAt = time.Now()
	m.users[user.ID] = user
	return user, nil
}

func (m *memRepo) Update(_ context.Context, user types.User) (types.User, error) {
	stored, ok := m.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.OTPCode = stored.OTPCode
	user.OTPExpiresAt = stored.OTPExpiresAt
	user.TokenVersion = stored.TokenVersion
	m.users[user.ID] = user
	return user, nil
}

func (m *memRepo) SetOTP(_ context.Context, userID, code string, expiresAt time.Time) error {
	user := m.users[userID]
	user.OTPCode = code
	user.OTPExpiresAt = &expiresAt
	m.users[userID] = user
	return nil
}

func (m *memRepo) ClearOTP(_ context.Context, userID string) error {
	user := m.users[userID]
	user.OTPCode = ""
	user.OTPExpiresAt = nil
	m.users[userID] = user
	return nil
}

func (m *memRepo) IncrementTokenVersion(_ context.Context, userID string) (int64, error) {
	user := m.users[userID]
	user.TokenVersion++
	m.users[userID] = user
	return user.TokenVersion, nil
}

func (m *memRepo) IncrementAllTokenVersions(_ context.Context) (int64, error) {
	for id, user := range m.users {
		user.TokenVersion++
		m.users[id] = user
	}
	return int64(len(m.users)), nil
}

func (m *memRepo) SetActive(_ context.Context, userID string, active bool) error {
	user := m.users[userID]
	user.IsActive = active
	m.users[userID] = user
	return nil
}

func (m *memRepo) RecordLogin(_ context.Context, userID string, loginAt time.Time, ip, userAgent string) error {
	m.logins[userID] = append(m.logins[userID], types.LoginRecord{
		ID: int64(len(m.logins[userID]) + 1), UserID: userID, LoginAt: loginAt, IPAddress: ip, UserAgent: userAgent,
	})
	return nil
}

func (m *memRepo) CountLogins(_ context.Context, userID string) (int64, error) {
	return int64(len(m.logins[userID])), nil
}

func (m *memRepo) ListLoginHistory(_ context.Context, userID string, limit int) ([]types.LoginRecord, error) {
	records := m.logins[userID]
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func (m *memRepo) ListPrunableLoginHistory(_ context.Context, keep int) ([]types.LoginRecord, error) {
	return nil, nil
}

func (m *memRepo) DeleteLoginHistory(_ context.Context, ids []int64) error {
	return nil
}

type memNotifier struct {
	codes map[string]string
}

func (n *memNotifier) SendOTP(_ context.Context, email, _, code string) error {
	n.codes[email] = code
	return nil
}

func (n *memNotifier) SendWelcome(context.Context, string, string) {}

func newTestRouter(t *testing.T) (*chi.Mux, *memNotifier) {
	t.Helper()

	repo := newMemRepo()
	notifier := &memNotifier{codes: make(map[string]string)}
	service := services.NewAuthService(
		repo,
		auth.NewOTPManager(10*time.Minute),
		auth.NewTokenIssuer("test-secret", time.Hour),
		notifier,
		nil,
		logging.Nop(),
	)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, service, nil, "https://buddy.example.com", logging.Nop())
	})
	return router, notifier
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendOTPValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/send-otp", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// New accounts must supply a password.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/send-otp", map[string]string{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOTPFlowOverHTTP(t *testing.T) {
	router, notifier := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/send-otp",
		map[string]string{"email": "a@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	code := notifier.codes["a@x.com"]
	require.NotEmpty(t, code)

	rec = doJSON(t, router, http.MethodPost, "/api/auth/verify-otp",
		map[string]string{"email": "a@x.com", "otp": code, "name": "Ada"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var authResp AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authResp))
	require.NotEmpty(t, authResp.Token)
	assert.Equal(t, "a@x.com", authResp.User.Email)

	// Wrong code after the challenge is cleared.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/verify-otp",
		map[string]string{"email": "a@x.com", "otp": code}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Token works on the protected surface.
	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, authResp.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	var me types.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Ada", me.Name)
	assert.True(t, me.IsEmailVerified)

	rec = doJSON(t, router, http.MethodGet, "/api/auth/login-history", nil, authResp.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	// Logout revokes the token.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/logout", nil, authResp.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, authResp.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyOTPUnknownUser(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/verify-otp",
		map[string]string{"email": "ghost@x.com", "otp": "123456"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPasswordLoginOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/send-otp",
		map[string]string{"email": "a@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "secret1"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRejectBadTokens(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGoogleRoutesWithoutProvider(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/auth/google", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/auth/google/callback", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := bearerToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Basic abc")
	_, err = bearerToken(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Bearer tok-123")
	token, err := bearerToken(req)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	req.Header.Set("Authorization", "bearer tok-456")
	token, err = bearerToken(req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "tok-"))
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
