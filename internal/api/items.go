package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/catalog"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// maxUploadSize limits the whole multipart body of POST /api/items.
const maxUploadSize = 10 << 20

// ItemsHandler handles the lost-and-found item endpoints.
type ItemsHandler struct {
	Service *catalog.Service
}

type claimRequest struct {
	Claimer string `json:"claimer"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter store.ListFilter
	if v := q.Get("claimed"); v != "" {
		claimed, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "claimed must be true or false")
			return
		}
		filter.Claimed = &claimed
	}
	if v := q.Get("category"); v != "" {
		category, err := model.ParseCategory(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Category = category
	}
	filter.Query = strings.TrimSpace(q.Get("q"))

	items, err := h.Service.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, "listing items", err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	draft := catalog.Draft{
		ItemName:        r.FormValue("item_name"),
		ItemDescription: r.FormValue("item_description"),
		Category:        r.FormValue("category"),
		LocationFound:   r.FormValue("location_found"),
	}
	if v := strings.TrimSpace(r.FormValue("date_found")); v != "" {
		found, err := parseDate(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "date_found must be RFC 3339 or YYYY-MM-DD")
			return
		}
		draft.DateFound = found
	}

	var photo []byte
	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		jsonError(w, http.StatusBadRequest, "invalid image upload")
		return
	default:
		defer file.Close()
		photo, err = io.ReadAll(file)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to read image")
			return
		}
	}

	item, err := h.Service.AddItem(r.Context(), draft, photo)
	if err != nil {
		writeError(w, "adding item", err)
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	item, err := h.Service.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, "getting item", err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	data, err := h.Service.ItemImage(r.Context(), id)
	if err != nil {
		writeError(w, "getting image", err)
		return
	}

	// Photos that could not be normalized are served as uploaded.
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Claim handles POST /api/items/{id}/claim.
func (h *ItemsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Service.ClaimItemByID(r.Context(), IsAdmin(r.Context()), id, req.Claimer)
	if err != nil {
		writeError(w, "claiming item", err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Categories handles GET /api/categories.
func (h *ItemsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"categories": model.Categories,
		"default":    model.DefaultCategory,
	})
}

func itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return uuid.Nil, false
	}
	return id, true
}

// parseDate accepts a full RFC 3339 timestamp or a calendar date.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrAlreadyClaimed):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrInvalidItem),
		errors.Is(err, catalog.ErrInvalidClaim):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotAuthorized):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	default:
		slog.Error("request failed", "op", op, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed "+op)
	}
}
