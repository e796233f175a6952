package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matiasleandrokruk/tutora/internal/domain/chat"
	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/domain/users"
)

// quotaMessage is shown to guests who used every free question.
const quotaMessage = "Free question limit reached. Please register or login for unlimited questions."

// ChatHandler exposes conversations, messages and question answering.
type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: svc}
}

// CreateConversationRequest is the body of POST /api/v1/conversations.
type CreateConversationRequest struct {
	Title    string          `json:"title"`
	Language solver.Language `json:"language"`
}

// AskRequest is the body of POST /api/v1/conversations/{id}/messages and POST /api/v1/solve.
type AskRequest struct {
	Content   string          `json:"content"`
	InputMode solver.Modality `json:"inputMode"`
	Language  solver.Language `json:"language"`
}

// CreateConversation handles POST /api/v1/conversations.
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	conv, err := h.chat.CreateConversation(r.Context(), userID, req.Title, req.Language)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"conversation": conv})
}

// ListConversations handles GET /api/v1/conversations (most recent first).
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	convs, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	conv, err := h.chat.GetConversation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

// DeleteConversation handles DELETE /api/v1/conversations/{id}.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := h.chat.DeleteConversation(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/v1/conversations/{id}/messages (oldest first).
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	msgs, err := h.chat.ListMessages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// Ask handles POST /api/v1/conversations/{id}/messages.
// Use "new" as the id to start a conversation with the first question.
//
// Response codes:
//   - 201 Created: question stored and answered
//   - 400 Bad Request: empty question or unsupported input mode
//   - 403 Forbidden: guest quota exhausted, body carries requiresAuth=true
//   - 404 Not Found: unknown conversation or owned by someone else
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	convID := chi.URLParam(r, "id")
	if convID == "new" {
		convID = ""
	}
	res, err := h.chat.Ask(r.Context(), chat.AskInput{
		UserID:         userID,
		ConversationID: convID,
		Content:        req.Content,
		InputMode:      req.InputMode,
		Language:       req.Language,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Solve handles POST /api/v1/solve: answers without storing anything.
func (h *ChatHandler) Solve(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sol, err := h.chat.Solve(r.Context(), chat.SolveInput{
		UserID:    userID,
		Content:   req.Content,
		InputMode: req.InputMode,
		Language:  req.Language,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"solution": sol})
}

// GetSolution handles GET /api/v1/messages/{id}/solution.
func (h *ChatHandler) GetSolution(w http.ResponseWriter, r *http.Request) {
	userID, _, err := claims(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sol, err := h.chat.GetSolution(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"solution": sol})
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrQuotaExceeded):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": quotaMessage, "requiresAuth": true})
	case errors.Is(err, chat.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, users.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
