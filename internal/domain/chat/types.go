// Package chat owns conversations, messages and the ask flow that turns a
// student question into a persisted, step-by-step answer.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

var (
	// ErrNotFound covers unknown ids and resources owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for empty questions and unsupported modalities.
	ErrInvalidInput = errors.New("invalid input")
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxTitleRunes bounds titles derived from the first question.
const MaxTitleRunes = 60

// Conversation groups the messages of one chat thread.
type Conversation struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Language  solver.Language `json:"language"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Metadata is stored with assistant messages.
type Metadata struct {
	Source     solver.Source `json:"source,omitempty"`
	Confidence *int          `json:"confidence,omitempty"`
	Fallback   bool          `json:"fallback,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Role           Role            `json:"type"`
	Content        string          `json:"content"`
	InputMode      solver.Modality `json:"inputMode"`
	Language       solver.Language `json:"language"`
	Metadata       Metadata        `json:"metadata"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// StoredSolution is the persisted worked solution behind an assistant message.
type StoredSolution struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
	solver.Solution
}

// AskInput is one question posted to a conversation.
// An empty ConversationID starts a new conversation.
type AskInput struct {
	UserID         string
	ConversationID string
	Content        string
	InputMode      solver.Modality
	Language       solver.Language
}

// AskResult is everything the ask flow persisted.
type AskResult struct {
	Conversation     Conversation    `json:"conversation"`
	UserMessage      Message         `json:"userMessage"`
	AssistantMessage Message         `json:"aiMessage"`
	Solution         solver.Solution `json:"solution"`
}

// SolveInput is a stateless question; nothing is persisted.
type SolveInput struct {
	UserID    string
	Content   string
	InputMode solver.Modality
	Language  solver.Language
}

// Resolver answers questions. *solver.Coordinator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, q solver.Question) (solver.Solution, error)
}

// Quota meters guest questions. *users.Service satisfies it.
type Quota interface {
	ConsumeFreeQuestion(ctx context.Context, userID string, limit int) error
	RefundFreeQuestion(ctx context.Context, userID string) error
}
