package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/codebuddy/apiserver/internal/auth"
	"github.com/codebuddy/apiserver/internal/services"
	"github.com/codebuddy/apiserver/types"
)

const defaultHistoryPageSize = 20

// AuthHandler provides the authentication endpoints: OTP challenge,
// password login, Google OAuth, and session introspection.
type AuthHandler struct {
	service     *services.AuthService
	google      *auth.GoogleVerifier
	frontendURL string
	log         *zap.SugaredLogger
}

// NewAuthHandler constructs an AuthHandler. google may be nil, in which
// case the OAuth routes answer 503.
func NewAuthHandler(service *services.AuthService, google *auth.GoogleVerifier, frontendURL string, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		service:     service,
		google:      google,
		frontendURL: frontendURL,
		log:         log,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, service *services.AuthService, google *auth.GoogleVerifier, frontendURL string, log *zap.SugaredLogger) {
	handler := NewAuthHandler(service, google, frontendURL, log)

	r.Post("/send-otp", handler.SendOTP)
	r.Post("/verify-otp", handler.VerifyOTP)
	r.Post("/login", handler.Login)
	r.Get("/google", handler.GoogleStart)
	r.Get("/google/callback", handler.GoogleCallback)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(service))
		r.Get("/me", handler.Me)
		r.Post("/logout", handler.Logout)
		r.Get("/login-history", handler.LoginHistory)
	})
}

// RequireAuth validates the bearer token against the current token
// version and injects the authenticated user into the request context.
func RequireAuth(service *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := service.AuthenticateToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SendOTP creates or checks the account and emails a challenge code.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.service.RequestChallenge(r.Context(), req.Email, req.Password, req.Name); err != nil {
		h.writeAuthError(w, err, "failed to send otp")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "OTP sent to your email"})
}

// VerifyOTP checks the challenge code and opens a session.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "email and otp are required")
		return
	}

	result, err := h.service.CompleteChallenge(r.Context(), req.Email, req.OTP, req.Name, h.loginMeta(r))
	if err != nil {
		h.writeAuthError(w, err, "failed to verify otp")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: result.Token, User: result.User})
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.service.PasswordLogin(r.Context(), req.Email, req.Password, h.loginMeta(r))
	if err != nil {
		h.writeAuthError(w, err, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: result.Token, User: result.User})
}

// GoogleStart redirects to the provider consent screen. The state query
// parameter is passed through; the extension popup flow sets it to
// "ext" so the callback knows how to hand the token back.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}

	state := r.URL.Query().Get("state")
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback finishes the OAuth flow: exchange the code, link or
// create the account, and deliver the token to the opener.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, http.StatusServiceUnavailable, "google oauth is not configured")
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	if code == "" || query.Get("error") != "" {
		h.redirectFrontend(w, r, "/login?error=auth_failed")
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.log.Warnw("oauth exchange failed", "error", err)
		h.redirectFrontend(w, r, "/login?error=auth_failed")
		return
	}

	result, err := h.service.OAuthComplete(r.Context(), identity, h.loginMeta(r))
	if err != nil {
		h.log.Errorw("oauth login failed", "error", err)
		h.redirectFrontend(w, r, "/login?error=server_error")
		return
	}

	if query.Get("state") == "ext" {
		h.writePopupResponse(w, result)
		return
	}

	h.redirectFrontend(w, r, fmt.Sprintf("/auth/callback?token=%s&email=%s&name=%s",
		url.QueryEscape(result.Token),
		url.QueryEscape(result.User.Email),
		url.QueryEscape(result.User.Name),
	))
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.service.CurrentUser(r.Context(), user.ID)
	if err != nil {
		h.writeAuthError(w, err, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Logout deactivates the account and revokes every outstanding token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), user.ID); err != nil {
		h.writeAuthError(w, err, "failed to log out")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// LoginHistory returns the user's most recent logins.
func (h *AuthHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	records, err := h.service.LoginHistory(r.Context(), user.ID, defaultHistoryPageSize)
	if err != nil {
		h.writeAuthError(w, err, "failed to load login history")
		return
	}

	writeJSON(w, http.StatusOK, LoginHistoryResponse{History: records})
}

func (h *AuthHandler) loginMeta(r *http.Request) services.LoginMeta {
	return services.LoginMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrPasswordRequired):
		writeError(w, http.StatusBadRequest, "password is required for new accounts")
	case errors.Is(err, services.ErrInvalidOrExpiredOTP):
		writeError(w, http.StatusBadRequest, "invalid or expired otp")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, services.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
	case errors.Is(err, services.ErrProviderNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "provider is not configured")
	default:
		h.log.Errorw("auth request failed", "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *AuthHandler) redirectFrontend(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, h.frontendURL+path, http.StatusFound)
}

// writePopupResponse hands the token to the extension popup's opener
// via postMessage and closes the window.
func (h *AuthHandler) writePopupResponse(w http.ResponseWriter, result *services.AuthResult) {
	payload, err := json.Marshal(popupMessage{
		Source: "buddy-auth",
		Token:  result.Token,
		Email:  result.User.Email,
		Name:   result.User.Name,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build response")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, popupHTML, payload)
}

const popupHTML = `<!doctype html><html><body><script>
try {
  if (window.opener) {
    window.opener.postMessage(%s, '*');
  }
} catch (e) {}
window.close();
</script><p>You can close this window.</p></body></html>`

type popupMessage struct {
	Source string `json:"source"`
	Token  string `json:"token"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type SendOTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Name  string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  types.Summary `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginHistoryResponse struct {
	History []types.LoginRecord `json:"history"`
}
