package strategies

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

// QueryPlaceholder is replaced by the escaped question text in ReferenceOptions.URL.
const QueryPlaceholder = "{query}"

const (
	DefaultReferenceConfidence = 50
	referenceSource            = "webscraping"
	userAgent                  = "tutora-reference/1.0"
)

var (
	ErrNoReferenceURL = errors.New("reference url must contain " + QueryPlaceholder)
	errNoSteps        = errors.New("no steps found on reference page")
)

// ReferenceOptions points the reference strategy at an HTML page.
type ReferenceOptions struct {
	URL            string
	StepSelector   string
	MathSelector   string // looked up inside each step
	AnswerSelector string
	Confidence     int
	Client         *http.Client
}

// Reference fetches a worked solution from an external HTML page.
type Reference struct {
	opts   ReferenceOptions
	client *http.Client
}

func NewReference(opts ReferenceOptions) (*Reference, error) {
	if !strings.Contains(opts.URL, QueryPlaceholder) {
		return nil, ErrNoReferenceURL
	}
	if opts.StepSelector == "" {
		opts.StepSelector = ".step"
	}
	if opts.AnswerSelector == "" {
		opts.AnswerSelector = ".answer"
	}
	if opts.Confidence <= 0 {
		opts.Confidence = DefaultReferenceConfidence
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Reference{opts: opts, client: client}, nil
}

func (s *Reference) Name() string { return NameReference }

func (s *Reference) Solve(ctx context.Context, q solver.Question) (*solver.Solution, error) {
	target := strings.ReplaceAll(s.opts.URL, QueryPlaceholder, url.QueryEscape(q.Text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, solver.Unavailable(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")
	if lang := string(q.Language.Normalize()); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, solver.Unavailable(fmt.Errorf("reference: status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, transportError(ctx, err)
		}
		return nil, solver.Malformed(err)
	}
	return s.extract(doc)
}

func (s *Reference) extract(doc *goquery.Document) (*solver.Solution, error) {
	var steps []solver.Step
	doc.Find(s.opts.StepSelector).Each(func(_ int, sel *goquery.Selection) {
		var math string
		if s.opts.MathSelector != "" {
			m := sel.Find(s.opts.MathSelector).First()
			math = strings.TrimSpace(m.Text())
			m.Remove()
		}
		text := collapse(sel.Text())
		if text == "" && math == "" {
			return
		}
		n := len(steps)
		title := collapse(sel.AttrOr("data-title", ""))
		if title == "" {
			title = fmt.Sprintf("Étape %d", n+1)
		}
		steps = append(steps, solver.Step{Title: title, Explanation: text, Math: math, Category: solver.CategoryAt(n)})
	})
	if len(steps) == 0 {
		return nil, solver.Malformed(errNoSteps)
	}

	answer := collapse(doc.Find(s.opts.AnswerSelector).First().Text())
	if answer == "" {
		last := steps[len(steps)-1]
		answer = last.Explanation
		if answer == "" {
			answer = last.Math
		}
	}
	return &solver.Solution{
		Steps:       steps,
		FinalAnswer: answer,
		Confidence:  s.opts.Confidence,
		Source:      referenceSource,
	}, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
