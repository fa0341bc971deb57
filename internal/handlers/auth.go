package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/foundly/apiserver/internal/services"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/internal/token"
	"github.com/go-chi/chi/v5"
)

const refreshCookieName = "refresh_token"

// AuthHandler provides the session lifecycle endpoints.
type AuthHandler struct {
	sessions    *services.SessionService
	userService *services.UserService
	signer      *token.Signer
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(sessions *services.SessionService, userService *services.UserService, signer *token.Signer) *AuthHandler {
	return &AuthHandler{
		sessions:    sessions,
		userService: userService,
		signer:      signer,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, sessions *services.SessionService, userService *services.UserService, signer *token.Signer) {
	handler := NewAuthHandler(sessions, userService, signer)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/logout", handler.Logout)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/reset-password", handler.ResetPassword)
	r.Post("/verify-email", handler.VerifyEmail)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.With(handler.RequireAuth).Post("/change-password", handler.ChangePassword)
	r.With(handler.RequireAuth).Delete("/account", handler.DeleteAccount)
}

// RequireAuth enforces a valid access token and injects the subject into
// context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.signer)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(signer *token.Signer) func(http.Handler) http.Handler {
	return requireAuth(signer)
}

func requireAuth(signer *token.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}

			claims, err := signer.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type DeleteAccountRequest struct {
	Password        string `json:"password"`
	ConfirmDeletion bool   `json:"confirm_deletion"`
}

type SuccessResponse struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Register creates a new account and returns its first token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required")
		return
	}

	result, err := h.sessions.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusCreated, result)
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required")
		return
	}

	result, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, result)
}

// Refresh rotates a refresh token into a new token pair. The token is taken
// from the body, the bearer header, or the refresh cookie, in that order.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFromRequest(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token is required")
		return
	}

	result, err := h.sessions.Refresh(r.Context(), raw)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, result)
}

// Logout revokes the presented refresh token. A dead token yields a soft
// failure, never a server error, so repeated calls are safe.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFromRequest(r)

	h.clearRefreshCookie(w)
	if err := h.sessions.Logout(r.Context(), raw); err != nil {
		if errors.Is(err, services.ErrInvalidRefreshToken) {
			writeJSON(w, http.StatusBadRequest, SuccessResponse{Success: false, Timestamp: time.Now().UTC()})
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to log out")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Timestamp: time.Now().UTC()})
}

// ForgotPassword always reports success so callers cannot probe for
// registered addresses.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if err := h.sessions.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to process request")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Timestamp: time.Now().UTC()})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if err := h.sessions.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Timestamp: time.Now().UTC()})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if err := h.sessions.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Timestamp: time.Now().UTC()})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if err := h.sessions.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Timestamp: time.Now().UTC()})
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	if err := h.sessions.DeleteAccount(r.Context(), userID, req.Password, req.ConfirmDeletion); err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Timestamp: time.Now().UTC()})
}

func (h *AuthHandler) refreshTokenFromRequest(r *http.Request) string {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && strings.TrimSpace(req.RefreshToken) != "" {
		return strings.TrimSpace(req.RefreshToken)
	}
	if raw, err := bearerToken(r); err == nil {
		return raw
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, raw string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    raw,
		Path:     "/auth",
		MaxAge:   int(services.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_ALREADY_USED", "email is already in use")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	case errors.Is(err, services.ErrAccountBlocked):
		writeError(w, http.StatusForbidden, "ACCOUNT_BLOCKED", "account is blocked")
	case errors.Is(err, services.ErrAccountInactive):
		writeError(w, http.StatusBadRequest, "ACCOUNT_INACTIVE", "account is not active")
	case errors.Is(err, services.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "INVALID_PASSWORD", "password must be at least 8 characters")
	case errors.Is(err, services.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired refresh token")
	case errors.Is(err, services.ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired reset token")
	case errors.Is(err, services.ErrInvalidVerificationToken):
		writeError(w, http.StatusBadRequest, "INVALID_TOKEN", "invalid verification token")
	case errors.Is(err, services.ErrPasswordUnchanged):
		writeError(w, http.StatusBadRequest, "PASSWORD_UNCHANGED", "new password must differ from the current password")
	case errors.Is(err, services.ErrWrongPassword):
		writeError(w, http.StatusBadRequest, "INVALID_CURRENT_PASSWORD", "current password does not match")
	case errors.Is(err, services.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "deletion must be confirmed")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
