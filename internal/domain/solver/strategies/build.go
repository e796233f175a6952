package strategies

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/infra/llm"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Deps carries what the adapters need. Only the dependencies of the named
// strategies have to be set.
type Deps struct {
	Provider           llm.LLMProvider
	Templates          TemplateSource
	HTTPClient         *http.Client
	Inference          InferenceOptions
	Reference          ReferenceOptions
	TemplateConfidence int
}

// Build returns the named strategies in the given order.
func Build(names []string, deps Deps) ([]solver.Strategy, error) {
	out := make([]solver.Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case NameInference:
			if deps.Provider == nil {
				return nil, fmt.Errorf("strategies: %s: no llm provider", name)
			}
			out = append(out, NewInference(deps.Provider, deps.Inference))
		case NameReference:
			opts := deps.Reference
			if opts.Client == nil {
				opts.Client = deps.HTTPClient
			}
			ref, err := NewReference(opts)
			if err != nil {
				return nil, fmt.Errorf("strategies: %s: %w", name, err)
			}
			out = append(out, ref)
		case NameHeuristic:
			out = append(out, NewHeuristic())
		case NameTemplate:
			if deps.Templates == nil {
				return nil, fmt.Errorf("strategies: %s: no template source", name)
			}
			out = append(out, NewTemplate(deps.Templates, deps.TemplateConfidence))
		default:
			return nil, fmt.Errorf("strategies: %w: %q", ErrUnknownStrategy, name)
		}
	}
	return out, nil
}
