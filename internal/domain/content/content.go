// Package content stores admin-managed articles, categories and solution templates.
package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/infra/sqlite"
)

// Type is the kind of content item.
type Type string

const (
	TypeArticle          Type = "article"
	TypeSolutionTemplate Type = "solution_template"
	TypeCategory         Type = "category"
)

// Valid reports whether t is a known content type.
func (t Type) Valid() bool {
	switch t {
	case TypeArticle, TypeSolutionTemplate, TypeCategory:
		return true
	}
	return false
}

var (
	ErrNotFound     = errors.New("content not found")
	ErrInvalidInput = errors.New("invalid content")
)

// Item is one stored content entry. Body is free-form JSON except for
// solution templates, whose body must decode as TemplateBody.
type Item struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Title       string          `json:"title"`
	Body        json.RawMessage `json:"content"`
	Keywords    []string        `json:"keywords"`
	Language    solver.Language `json:"language"`
	IsPublished bool            `json:"isPublished"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TemplateBody is the content of a solution_template item.
type TemplateBody struct {
	Steps       []solver.Step `json:"steps"`
	FinalAnswer string        `json:"finalAnswer"`
	Confidence  int           `json:"confidence,omitempty"`
}

// SolutionTemplate is a published template ready for matching.
type SolutionTemplate struct {
	ID       string
	Title    string
	Keywords []string
	Language solver.Language
	TemplateBody
}

// CreateInput holds the fields of a new item.
type CreateInput struct {
	Type        Type
	Title       string
	Body        json.RawMessage
	Keywords    []string
	Language    solver.Language
	IsPublished bool
	CreatedBy   string
}

// UpdateInput is a partial update; nil fields are left unchanged. A Body that
// is empty or the JSON literal null also leaves the stored body alone.
type UpdateInput struct {
	Title       *string
	Body        json.RawMessage
	Keywords    *[]string
	Language    *solver.Language
	IsPublished *bool
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Type          Type
	PublishedOnly bool
	Limit         int
	Offset        int
}

// Service is the content store.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const itemColumns = `id, type, title, content, keywords, language, is_published,
	COALESCE(created_by, ''), created_at, updated_at`

func (s *Service) Create(ctx context.Context, in CreateInput) (*Item, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	body, err := validateBody(in.Type, in.Body)
	if err != nil {
		return nil, err
	}
	keywords, _ := json.Marshal(normalizeKeywords(in.Keywords))

	id := uuid.Must(uuid.NewV7()).String()
	now := sqlite.FormatTime(time.Now())
	var createdBy any
	if in.CreatedBy != "" {
		createdBy = in.CreatedBy
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admin_content (id, type, title, content, keywords, language, is_published, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, string(in.Type), title, string(body), string(keywords), string(in.Language.Normalize()),
		boolInt(in.IsPublished), createdBy, now, now)
	if err != nil {
		return nil, fmt.Errorf("content: create: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM admin_content WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("content: get %s: %w", id, err)
	}
	return item, nil
}

// List returns items newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Item, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.PublishedOnly {
		where = append(where, "is_published = 1")
	}
	q := `SELECT ` + itemColumns + ` FROM admin_content`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("content: list: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("content: list: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Item, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{sqlite.FormatTime(time.Now())}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if bodyProvided(in.Body) {
		body, err := validateBody(current.Type, in.Body)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "content = ?")
		args = append(args, string(body))
	}
	if in.Keywords != nil {
		kw, _ := json.Marshal(normalizeKeywords(*in.Keywords))
		sets = append(sets, "keywords = ?")
		args = append(args, string(kw))
	}
	if in.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, string(in.Language.Normalize()))
	}
	if in.IsPublished != nil {
		sets = append(sets, "is_published = ?")
		args = append(args, boolInt(*in.IsPublished))
	}
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, `UPDATE admin_content SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("content: update %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admin_content WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("content: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PublishedTemplates returns every published solution template. Items whose
// body no longer decodes are skipped.
func (s *Service) PublishedTemplates(ctx context.Context) ([]SolutionTemplate, error) {
	items, err := s.List(ctx, ListFilter{Type: TypeSolutionTemplate, PublishedOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]SolutionTemplate, 0, len(items))
	for _, it := range items {
		var body TemplateBody
		if json.Unmarshal(it.Body, &body) != nil {
			continue
		}
		out = append(out, SolutionTemplate{
			ID:           it.ID,
			Title:        it.Title,
			Keywords:     it.Keywords,
			Language:     it.Language,
			TemplateBody: body,
		})
	}
	return out, nil
}

func bodyProvided(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

func validateBody(t Type, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: content is not valid JSON", ErrInvalidInput)
	}
	if t != TypeSolutionTemplate {
		return raw, nil
	}
	var body TemplateBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: template body: %v", ErrInvalidInput, err)
	}
	if len(body.Steps) == 0 || strings.TrimSpace(body.FinalAnswer) == "" {
		return nil, fmt.Errorf("%w: template needs steps and a final answer", ErrInvalidInput)
	}
	if body.Confidence < solver.MinConfidence || body.Confidence > solver.MaxConfidence {
		return nil, fmt.Errorf("%w: template confidence %d outside [0,100]", ErrInvalidInput, body.Confidence)
	}
	return raw, nil
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*Item, error) {
	var (
		it                   Item
		typ, body, keywords  string
		lang                 string
		published            int
		createdAt, updatedAt string
	)
	if err := sc.Scan(&it.ID, &typ, &it.Title, &body, &keywords, &lang, &published,
		&it.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	it.Type = Type(typ)
	it.Body = json.RawMessage(body)
	it.Language = solver.Language(lang)
	it.IsPublished = published == 1
	if err := json.Unmarshal([]byte(keywords), &it.Keywords); err != nil {
		it.Keywords = nil
	}
	if it.Keywords == nil {
		it.Keywords = []string{}
	}
	var err error
	if it.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if it.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
