package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
)

// Service implements the conversation store and the ask flow.
type Service struct {
	db        *sql.DB
	resolver  Resolver
	quota     Quota
	freeLimit int
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the ask flow. freeLimit is the number of questions a guest
// may ask before registering.
func NewService(db *sql.DB, resolver Resolver, quota Quota, freeLimit int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        db,
		resolver:  resolver,
		quota:     quota,
		freeLimit: freeLimit,
		logger:    logger.Named("chat"),
		now:       time.Now,
	}
}

// ─── conversations ──────────────────────────────────────────────────────────

func (s *Service) CreateConversation(ctx context.Context, userID, title string, lang solver.Language) (*Conversation, error) {
	c := s.newConversation(userID, title, lang)
	if err := insertConversation(ctx, s.db, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) newConversation(userID, title string, lang solver.Language) *Conversation {
	now := s.now().UTC()
	return &Conversation{
		ID:        newID(),
		UserID:    userID,
		Title:     truncateTitle(title),
		Language:  lang.Normalize(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func insertConversation(ctx context.Context, db execer, c *Conversation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Title, string(c.Language), sqlite.FormatTime(c.CreatedAt), sqlite.FormatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("chat: create conversation: %w", err)
	}
	return nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, language, created_at, updated_at
		FROM conversations WHERE user_id = ?
		ORDER BY updated_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: list conversations: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetConversation returns the conversation if userID owns it.
func (s *Service) GetConversation(ctx context.Context, userID, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, language, created_at, updated_at
		FROM conversations WHERE id = ? AND user_id = ?
	`, id, userID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get conversation: %w", err)
	}
	return c, nil
}

// DeleteConversation removes a conversation with its messages and solutions.
func (s *Service) DeleteConversation(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("chat: delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessages returns the conversation's messages in posting order.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, input_mode, language, metadata, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: list messages: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetSolution returns the worked solution stored for an assistant message.
func (s *Service) GetSolution(ctx context.Context, userID, messageID string) (*StoredSolution, error) {
	var (
		sol              StoredSolution
		steps, createdAt string
		source           string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT ms.id, ms.message_id, ms.steps, ms.final_answer, ms.confidence, ms.source, ms.created_at
		FROM math_solutions ms
		JOIN messages m ON m.id = ms.message_id
		JOIN conversations c ON c.id = m.conversation_id
		WHERE ms.message_id = ? AND c.user_id = ?
	`, messageID, userID).Scan(&sol.ID, &sol.MessageID, &steps, &sol.FinalAnswer, &sol.Confidence, &source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: get solution: %w", err)
	}
	sol.Source = solver.Source(source)
	if err := json.Unmarshal([]byte(steps), &sol.Steps); err != nil {
		return nil, fmt.Errorf("chat: decode steps: %w", err)
	}
	if sol.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &sol, nil
}

// ─── ask flow ───────────────────────────────────────────────────────────────

// Ask validates the question, charges the guest quota and resolves it. The
// question, the answer and a new conversation when none was given are written
// together only once a solution exists. A question that was charged but could
// not be answered is refunded and leaves no rows behind.
func (s *Service) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	q, err := s.question(in.Content, in.InputMode, in.Language)
	if err != nil {
		return nil, err
	}

	var conv *Conversation
	if in.ConversationID != "" {
		if conv, err = s.GetConversation(ctx, in.UserID, in.ConversationID); err != nil {
			return nil, err
		}
	}

	if err := s.quota.ConsumeFreeQuestion(ctx, in.UserID, s.freeLimit); err != nil {
		return nil, err
	}
	charged := true
	defer func() {
		if charged {
			if rerr := s.quota.RefundFreeQuestion(context.WithoutCancel(ctx), in.UserID); rerr != nil {
				s.logger.Warn("refund free question failed", zap.String("user_id", in.UserID), zap.Error(rerr))
			}
		}
	}()

	isNew := conv == nil
	if isNew {
		conv = s.newConversation(in.UserID, "", q.Language)
	}

	userMsg := Message{
		ID:             newID(),
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        q.Text,
		InputMode:      q.Modality,
		Language:       q.Language,
		CreatedAt:      s.now().UTC(),
	}

	q.ID = userMsg.ID
	sol, err := s.resolver.Resolve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chat: resolve: %w", err)
	}

	assistant := assistantMessage(conv.ID, q, sol, s.now().UTC())
	if err := s.storeExchange(ctx, conv, isNew, userMsg, assistant, sol); err != nil {
		return nil, err
	}
	charged = false

	if conv.Title == "" {
		conv.Title = truncateTitle(q.Text)
	}
	conv.UpdatedAt = assistant.CreatedAt
	return &AskResult{
		Conversation:     *conv,
		UserMessage:      userMsg,
		AssistantMessage: assistant,
		Solution:         sol,
	}, nil
}

// Solve answers a question without storing it. Guests are still metered.
func (s *Service) Solve(ctx context.Context, in SolveInput) (solver.Solution, error) {
	q, err := s.question(in.Content, in.InputMode, in.Language)
	if err != nil {
		return solver.Solution{}, err
	}
	if err := s.quota.ConsumeFreeQuestion(ctx, in.UserID, s.freeLimit); err != nil {
		return solver.Solution{}, err
	}
	q.ID = newID()
	sol, err := s.resolver.Resolve(ctx, q)
	if err != nil {
		if rerr := s.quota.RefundFreeQuestion(context.WithoutCancel(ctx), in.UserID); rerr != nil {
			s.logger.Warn("refund free question failed", zap.String("user_id", in.UserID), zap.Error(rerr))
		}
		return solver.Solution{}, fmt.Errorf("chat: resolve: %w", err)
	}
	return sol, nil
}

func (s *Service) question(content string, mode solver.Modality, lang solver.Language) (solver.Question, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return solver.Question{}, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}
	if mode == "" {
		mode = solver.ModalityText
	}
	if !mode.Valid() {
		return solver.Question{}, fmt.Errorf("%w: unsupported input mode %q", ErrInvalidInput, mode)
	}
	return solver.Question{Text: text, Modality: mode, Language: lang.Normalize()}, nil
}

func assistantMessage(convID string, q solver.Question, sol solver.Solution, at time.Time) Message {
	conf := sol.Confidence
	return Message{
		ID:             newID(),
		ConversationID: convID,
		Role:           RoleAssistant,
		Content:        sol.FinalAnswer,
		InputMode:      solver.ModalityText,
		Language:       q.Language,
		Metadata: Metadata{
			Source:     sol.Source,
			Confidence: &conf,
			Fallback:   sol.Source == solver.SourceManual,
		},
		CreatedAt: at,
	}
}

// storeExchange writes the conversation when it is new, both messages and the
// solution, then bumps the conversation, in one transaction.
func (s *Service) storeExchange(ctx context.Context, conv *Conversation, isNew bool, question, msg Message, sol solver.Solution) error {
	steps, err := json.Marshal(sol.Steps)
	if err != nil {
		return fmt.Errorf("chat: encode steps: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chat: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if isNew {
		if err := insertConversation(ctx, tx, conv); err != nil {
			return err
		}
	}
	if err := s.insertMessage(ctx, tx, question); err != nil {
		return err
	}
	if err := s.insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO math_solutions (id, message_id, steps, final_answer, confidence, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, newID(), msg.ID, string(steps), sol.FinalAnswer, sol.Confidence, string(sol.Source), sqlite.FormatTime(msg.CreatedAt)); err != nil {
		return fmt.Errorf("chat: insert solution: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET updated_at = ?, title = CASE WHEN title = '' THEN ? ELSE title END
		WHERE id = ?
	`, sqlite.FormatTime(msg.CreatedAt), truncateTitle(question.Content), conv.ID); err != nil {
		return fmt.Errorf("chat: touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chat: commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) insertMessage(ctx context.Context, db execer, m Message) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("chat: encode metadata: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, input_mode, language, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, string(m.Role), m.Content, string(m.InputMode), string(m.Language),
		string(meta), sqlite.FormatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("chat: insert %s message: %w", m.Role, err)
	}
	return nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(sc scanner) (*Conversation, error) {
	var (
		c                    Conversation
		lang                 string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&c.ID, &c.UserID, &c.Title, &lang, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Language = solver.Language(lang)
	var err error
	if c.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMessage(sc scanner) (*Message, error) {
	var (
		m                Message
		role, mode, lang string
		meta, createdAt  string
	)
	if err := sc.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &mode, &lang, &meta, &createdAt); err != nil {
		return nil, err
	}
	m.Role = Role(role)
	m.InputMode = solver.Modality(mode)
	m.Language = solver.Language(lang)
	if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	t, err := sqlite.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = t
	return &m, nil
}

func truncateTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxTitleRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxTitleRunes-1])) + "…"
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
