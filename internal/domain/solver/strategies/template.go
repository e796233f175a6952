package strategies

import (
	"context"
	"strings"

	"github.com/matiasleandrokruk/tutora/internal/domain/content"
	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

const DefaultTemplateConfidence = 90

// TemplateSource lists the published solution templates.
type TemplateSource interface {
	PublishedTemplates(ctx context.Context) ([]content.SolutionTemplate, error)
}

// Template answers questions that match the keywords of an admin-authored
// solution template.
type Template struct {
	source            TemplateSource
	defaultConfidence int
}

func NewTemplate(source TemplateSource, defaultConfidence int) *Template {
	if defaultConfidence <= 0 {
		defaultConfidence = DefaultTemplateConfidence
	}
	return &Template{source: source, defaultConfidence: defaultConfidence}
}

func (s *Template) Name() string { return NameTemplate }

func (s *Template) Solve(ctx context.Context, q solver.Question) (*solver.Solution, error) {
	templates, err := s.source.PublishedTemplates(ctx)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	best, ok := match(templates, strings.ToLower(q.Text), q.Language.Normalize())
	if !ok {
		return nil, solver.LowConfidence(0)
	}

	steps := make([]solver.Step, len(best.Steps))
	copy(steps, best.Steps)
	for i := range steps {
		if steps[i].Category == "" {
			steps[i].Category = solver.CategoryAt(i)
		}
	}
	conf := best.Confidence
	if conf <= 0 {
		conf = s.defaultConfidence
	}
	return &solver.Solution{
		Steps:       steps,
		FinalAnswer: best.FinalAnswer,
		Confidence:  conf,
		Source:      NameTemplate,
	}, nil
}

// match picks the template with the most keywords found in text. Ties go to a
// template in the question's language, then to the first listed.
func match(templates []content.SolutionTemplate, text string, lang solver.Language) (content.SolutionTemplate, bool) {
	var (
		best     content.SolutionTemplate
		bestHits int
		bestLang bool
	)
	for _, t := range templates {
		if len(t.Steps) == 0 {
			continue
		}
		hits := 0
		for _, k := range t.Keywords {
			if k != "" && strings.Contains(text, k) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		sameLang := t.Language.Normalize() == lang
		if hits > bestHits || hits == bestHits && sameLang && !bestLang {
			best, bestHits, bestLang = t, hits, sameLang
		}
	}
	return best, bestHits > 0
}
