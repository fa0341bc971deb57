package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/foundly/apiserver/internal/services"
	"github.com/foundly/apiserver/internal/store"
	"github.com/foundly/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxImageMultipartMemory = 16 << 20
	formFieldImage          = "image"
)

// ListingHandler provides HTTP handlers for listings and their images.
type ListingHandler struct {
	listingService *services.ListingService
	mediaService   *services.MediaService
	userService    *services.UserService
}

// NewListingHandler constructs a handler with the provided services.
func NewListingHandler(listingService *services.ListingService, mediaService *services.MediaService, userService *services.UserService) *ListingHandler {
	return &ListingHandler{
		listingService: listingService,
		mediaService:   mediaService,
		userService:    userService,
	}
}

// ListingRouter registers listing routes on the given router.
func ListingRouter(
	r chi.Router,
	listingService *services.ListingService,
	mediaService *services.MediaService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewListingHandler(listingService, mediaService, userService)

	r.Get("/", handler.ListListings)
	r.Get("/search", handler.SearchListings)
	r.With(authMiddleware).Post("/", handler.CreateListing)
	r.Route("/{listingID}", func(r chi.Router) {
		r.Get("/", handler.GetListing)
		r.With(authMiddleware).Put("/", handler.UpdateListing)
		r.With(authMiddleware).Delete("/", handler.DeleteListing)
		r.With(authMiddleware).Post("/resolve", handler.ResolveListing)
		r.With(authMiddleware).Post("/images", handler.UploadImage)
		r.Get("/images/{imageName}", handler.GetImage)
		r.With(authMiddleware).Delete("/images/{imageName}", handler.DeleteImage)
	})
}

// ListingUpsertRequest is the JSON payload for create and update.
type ListingUpsertRequest struct {
	Type        types.ListingType `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	RewardCents int64             `json:"reward_cents"`
}

func (req ListingUpsertRequest) input() services.ListingInput {
	return services.ListingInput{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		RewardCents: req.RewardCents,
	}
}

// ListingListResponse is the paginated list response payload.
type ListingListResponse struct {
	Items []types.Listing `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	filter := store.ListingFilter{
		Type:     types.ListingType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type")))),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Query:    strings.TrimSpace(r.URL.Query().Get("q")),
	}

	items, total, err := h.listingService.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to list listings")
		return
	}

	writeJSON(w, http.StatusOK, ListingListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// SearchListings returns open listings within a radius of a point.
func (h *ListingHandler) SearchListings(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	radius, errRadius := strconv.ParseFloat(r.URL.Query().Get("radius_km"), 64)
	if errLat != nil || errLng != nil || errRadius != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "lat, lng, and radius_km are required")
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
			return
		}
		limit = parsed
	}

	items, err := h.listingService.Search(r.Context(), lat, lng, radius, limit)
	if err != nil {
		h.writeListingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	listing, err := h.listingService.Get(r.Context(), id)
	if err != nil {
		h.writeListingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req ListingUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	created, err := h.listingService.Create(r.Context(), actor.ID, req.input())
	if err != nil {
		h.writeListingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	var req ListingUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request")
		return
	}

	updated, err := h.listingService.Update(r.Context(), actor, id, req.input())
	if err != nil {
		h.writeListingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ListingHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.listingService.Delete(r.Context(), actor, id); err != nil {
		h.writeListingError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ListingHandler) ResolveListing(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	resolved, err := h.listingService.Resolve(r.Context(), actor, id)
	if err != nil {
		h.writeListingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolved)
}

// UploadImage attaches a multipart image to the listing.
func (h *ListingHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxImageMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "image file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	key, err := h.mediaService.Upload(r.Context(), actor, id, header.Filename, contentType, file, header.Size)
	if err != nil {
		h.writeListingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *ListingHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	key, err := imageKey(r, id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	object, err := h.mediaService.Open(r.Context(), id, key)
	if err != nil {
		h.writeListingError(w, err)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, object)
}

func (h *ListingHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	key, err := imageKey(r, id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.mediaService.Remove(r.Context(), actor, id, key); err != nil {
		h.writeListingError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ListingHandler) actor(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return types.User{}, false
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return types.User{}, false
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to load user")
		return types.User{}, false
	}
	return user, true
}

func (h *ListingHandler) writeListingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidListing):
		writeError(w, http.StatusBadRequest, "INVALID_LISTING", "invalid listing fields")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "not allowed")
	case errors.Is(err, services.ErrInvalidImage):
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", "only image uploads are accepted")
	case errors.Is(err, services.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "image exceeds the size limit")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "listing not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func parseListingID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "listingID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid listing id")
	}
	return id, nil
}

// imageKey rebuilds an object key from the listing ID and the image name
// path segment. Keys always live under the listing's prefix, so a caller
// cannot address another listing's objects.
func imageKey(r *http.Request, listingID int) (string, error) {
	name := strings.TrimSpace(chi.URLParam(r, "imageName"))
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", errors.New("invalid image name")
	}
	return fmt.Sprintf("listings/%d/%s", listingID, name), nil
}
