package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/tutora/internal/domain/content"
	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

// ContentHandler is the admin panel content API. Routes sit behind RequireAdmin.
type ContentHandler struct {
	content *content.Service
}

func NewContentHandler(svc *content.Service) *ContentHandler {
	return &ContentHandler{content: svc}
}

// CreateContentRequest is the body of POST /api/v1/admin/content.
type CreateContentRequest struct {
	Type        content.Type    `json:"type"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	Keywords    []string        `json:"keywords"`
	Language    solver.Language `json:"language"`
	IsPublished bool            `json:"isPublished"`
}

// UpdateContentRequest is the body of PATCH /api/v1/admin/content/{id}.
type UpdateContentRequest struct {
	Title       *string          `json:"title"`
	Content     json.RawMessage  `json:"content"`
	Keywords    *[]string        `json:"keywords"`
	Language    *solver.Language `json:"language"`
	IsPublished *bool            `json:"isPublished"`
}

// List handles GET /api/v1/admin/content?type=&published=&limit=&offset=.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parsePaginationParams(r)
	filter := content.ListFilter{
		Type:          content.Type(r.URL.Query().Get("type")),
		PublishedOnly: r.URL.Query().Get("published") == "true",
		Limit:         page.Limit,
		Offset:        page.Offset,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, http.StatusBadRequest, "unknown content type")
		return
	}
	items, err := h.content.List(r.Context(), filter)
	if err != nil {
		writeContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": items})
}

// Create handles POST /api/v1/admin/content.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req CreateContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.content.Create(r.Context(), content.CreateInput{
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Content,
		Keywords:    req.Keywords,
		Language:    req.Language,
		IsPublished: req.IsPublished,
		CreatedBy:   userID,
	})
	if err != nil {
		writeContentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"content": item})
}

// Get handles GET /api/v1/admin/content/{id}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.content.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": item})
}

// Update handles PATCH /api/v1/admin/content/{id}.
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.content.Update(r.Context(), chi.URLParam(r, "id"), content.UpdateInput{
		Title:       req.Title,
		Body:        req.Content,
		Keywords:    req.Keywords,
		Language:    req.Language,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		writeContentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": item})
}

// Delete handles DELETE /api/v1/admin/content/{id}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.content.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeContentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeContentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, content.ErrNotFound):
		writeError(w, http.StatusNotFound, "content not found")
	default:
		writeError(w, http.StatusInternalServerError, "content operation failed")
	}
}
