// Package strategies holds the concrete solver.Strategy adapters: remote text
// generation, reference page lookup, local keyword heuristics and admin templates.
package strategies

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
	"github.com/matiasleandrokruk/tutora/internal/infra/llm"
)

// Strategy names accepted by Build.
const (
	NameInference = "inference"
	NameReference = "reference"
	NameHeuristic = "heuristic"
	NameTemplate  = "template"
)

const (
	DefaultInferenceConfidence = 85
	DefaultInferenceMaxTokens  = 500
	DefaultInferenceTemp       = 0.7

	minStepLen = 10
)

var errEmptyGeneration = errors.New("empty generation")

// InferenceOptions tunes the inference strategy. Zero values take the defaults.
type InferenceOptions struct {
	Confidence  int
	Temperature float32
	MaxTokens   int
	Model       string
}

// Inference asks a text generation provider to solve the question step by step.
type Inference struct {
	provider llm.LLMProvider
	opts     InferenceOptions
}

func NewInference(provider llm.LLMProvider, opts InferenceOptions) *Inference {
	if opts.Confidence <= 0 {
		opts.Confidence = DefaultInferenceConfidence
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultInferenceTemp
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultInferenceMaxTokens
	}
	return &Inference{provider: provider, opts: opts}
}

func (s *Inference) Name() string { return NameInference }

func (s *Inference) Solve(ctx context.Context, q solver.Question) (*solver.Solution, error) {
	prompt := Prompt(q.Text, q.Language)
	resp, err := s.provider.ChatCompletion(ctx, llm.ChatRequest{
		Model:       s.opts.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, transportError(ctx, err)
	}

	// Some models echo the prompt before continuing it.
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(resp.Content), prompt))
	if text == "" {
		return nil, solver.Malformed(errEmptyGeneration)
	}

	source := solver.Source(s.provider.ModelInfo().Provider)
	if source == "" {
		source = NameInference
	}
	return &solver.Solution{
		Steps:       ParseSteps(text, q.Language),
		FinalAnswer: ExtractAnswer(text, q.Language),
		Confidence:  s.opts.Confidence,
		Source:      source,
	}, nil
}

// Prompt builds the localized "solve step by step" instruction.
func Prompt(question string, lang solver.Language) string {
	if lang.UsesArabicScript() {
		return "حل هذه المسألة الرياضية خطوة بخطوة: " + question
	}
	return "Résolvez ce problème mathématique étape par étape: " + question
}

// ParseSteps turns generated text into steps: one per line longer than ten
// characters, numbered and colored in order. Text without such lines becomes a
// single step.
func ParseSteps(text string, lang solver.Language) []solver.Step {
	arabic := lang.UsesArabicScript()
	var steps []solver.Step
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) <= minStepLen {
			continue
		}
		n := len(steps)
		title := fmt.Sprintf("Étape %d", n+1)
		if arabic {
			title = fmt.Sprintf("الخطوة %d", n+1)
		}
		steps = append(steps, solver.Step{Title: title, Explanation: line, Category: solver.CategoryAt(n)})
	}
	if len(steps) > 0 {
		return steps
	}

	title := "Solution"
	if arabic {
		title = "الحل"
	}
	return []solver.Step{{Title: title, Explanation: strings.TrimSpace(text), Category: solver.CategoryBlue}}
}

var (
	answerFrench = regexp.MustCompile(`(?i)(?:réponse|résultat|solution)[:\s]*(.+?)(?:\n|$)`)
	answerArabic = regexp.MustCompile(`(?:الجواب|النتيجة|الحل)[:\s]*(.+?)(?:\n|$)`)
)

// ExtractAnswer finds the line introduced by "réponse", "résultat" or "solution"
// (or their Arabic equivalents) and returns what follows.
func ExtractAnswer(text string, lang solver.Language) string {
	re, fallback := answerFrench, "Voir solution détaillée ci-dessus"
	if lang.UsesArabicScript() {
		re, fallback = answerArabic, "انظر الحل المفصل أعلاه"
	}
	if m := re.FindStringSubmatch(text); m != nil {
		if ans := strings.TrimSpace(m[1]); ans != "" {
			return ans
		}
	}
	return fallback
}

// transportError maps a provider or HTTP failure onto the strategy error kinds.
func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return solver.Timeout(err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return solver.Unavailable(err)
}
