package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/matiasleandrokruk/tutora/internal/domain/users"
)

// MeHandler serves the authenticated user's profile.
type MeHandler struct {
	users *users.Service
}

func NewMeHandler(svc *users.Service) *MeHandler {
	return &MeHandler{users: svc}
}

// UpdateMeRequest is the body of PATCH /api/v1/me. Omitted fields are unchanged.
type UpdateMeRequest struct {
	DisplayName *string `json:"displayName"`
	SchoolLevel *string `json:"schoolLevel"`
}

// Get handles GET /api/v1/me.
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// Update handles PATCH /api/v1/me.
func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req UpdateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName != nil && len(strings.TrimSpace(*req.DisplayName)) > 100 {
		writeError(w, http.StatusBadRequest, "displayName is too long")
		return
	}
	u, err := h.users.Update(r.Context(), userID, users.UpdateInput{
		DisplayName: req.DisplayName,
		SchoolLevel: req.SchoolLevel,
	})
	if err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func writeUserError(w http.ResponseWriter, err error) {
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "failed to load user")
}
