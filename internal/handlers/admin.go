package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/foundly/apiserver/internal/services"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AdminHandler provides HTTP handlers for moderation operations.
type AdminHandler struct {
	moderationService *services.ModerationService
	userService       *services.UserService
}

// NewAdminHandler constructs a handler with the provided services.
func NewAdminHandler(moderationService *services.ModerationService, userService *services.UserService) *AdminHandler {
	return &AdminHandler{
		moderationService: moderationService,
		userService:       userService,
	}
}

// AdminRouter registers moderation routes. Every route requires an
// authenticated admin.
func AdminRouter(
	r chi.Router,
	moderationService *services.ModerationService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewAdminHandler(moderationService, userService)

	r.Use(authMiddleware)
	r.Use(handler.requireAdmin)

	r.Get("/users", handler.ListUsers)
	r.Post("/users/{userID}/block", handler.BlockUser)
	r.Post("/users/{userID}/unblock", handler.UnblockUser)
	r.Delete("/users/{userID}", handler.DeleteUser)
	r.Delete("/listings/{listingID}", handler.RemoveListing)
}

// requireAdmin loads the authenticated user and rejects non-admins.
func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

		if user.Role != types.RoleAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// UserListResponse is the paginated user list payload.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	users, total, err := h.moderationService.ListUsers(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Items: users,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// BlockUserRequest optionally carries an expiry for the block. A nil
// until blocks the account indefinitely.
type BlockUserRequest struct {
	Until *time.Time `json:"until"`
}

func (h *AdminHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var req BlockUserRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
			return
		}
	}

	user, err := h.moderationService.BlockUser(r.Context(), userID, req.Until)
	if err != nil {
		h.writeModerationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	user, err := h.moderationService.UnblockUser(r.Context(), userID)
	if err != nil {
		h.writeModerationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.moderationService.DeleteUser(r.Context(), userID); err != nil {
		h.writeModerationError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	listing, err := h.moderationService.RemoveListing(r.Context(), id)
	if err != nil {
		h.writeModerationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

func (h *AdminHandler) writeModerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAccountInactive):
		writeError(w, http.StatusBadRequest, "ACCOUNT_INACTIVE", "account already deleted")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func parseUserID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}
