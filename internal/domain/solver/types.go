// Package solver resolves a student's math question into a step-by-step Solution
// by consulting an ordered list of strategies under a per-strategy time budget.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Modality is the channel the question was submitted through.
// Image, PDF and audio input are transcribed to text before reaching the solver.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityPDF   Modality = "pdf"
	ModalityAudio Modality = "audio"
)

// Valid reports whether m is one of the supported modalities.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityImage, ModalityPDF, ModalityAudio:
		return true
	default:
		return false
	}
}

// Language is a BCP-47-ish tag. The set is open; fr, ar and tn ship with defaults.
type Language string

const (
	LanguageFrench   Language = "fr"
	LanguageArabic   Language = "ar"
	LanguageTunisian Language = "tn"
)

// DefaultLanguage is used whenever a question carries no language tag.
const DefaultLanguage = LanguageFrench

// Normalize lowercases and trims the tag, returning DefaultLanguage when empty.
func (l Language) Normalize() Language {
	n := Language(strings.ToLower(strings.TrimSpace(string(l))))
	if n == "" {
		return DefaultLanguage
	}
	return n
}

// UsesArabicScript reports whether text for this language is written in Arabic script.
func (l Language) UsesArabicScript() bool {
	n := l.Normalize()
	return n == LanguageArabic || n == LanguageTunisian
}

// Question is an immutable input to a single Resolve call.
type Question struct {
	ID       string
	Text     string
	Modality Modality
	Language Language
}

// StepCategory drives display styling of a step in the chat UI.
type StepCategory string

const (
	CategoryBlue   StepCategory = "blue"
	CategoryGreen  StepCategory = "green"
	CategoryPurple StepCategory = "purple"
	CategoryAmber  StepCategory = "amber"
)

// CategoryCycle is the order in which generated steps are colored.
var CategoryCycle = []StepCategory{CategoryBlue, CategoryGreen, CategoryPurple, CategoryAmber}

// CategoryAt returns the cycled category for the i-th step.
func CategoryAt(i int) StepCategory {
	if i < 0 {
		i = -i
	}
	return CategoryCycle[i%len(CategoryCycle)]
}

// Step is one stage of a worked solution.
type Step struct {
	Title       string       `json:"title"`
	Explanation string       `json:"explanation"`
	Math        string       `json:"math,omitempty"`
	Category    StepCategory `json:"category"`
}

// Source identifies which strategy produced a Solution.
type Source string

// SourceManual marks the deterministic fallback Solution.
const SourceManual Source = "manual"

// Confidence bounds.
const (
	MinConfidence = 0
	MaxConfidence = 100
)

// Solution is the result of resolving a Question. It is never mutated after being returned.
type Solution struct {
	Steps       []Step `json:"steps"`
	FinalAnswer string `json:"finalAnswer"`
	Confidence  int    `json:"confidence"`
	Source      Source `json:"source"`
}

var (
	errNoSteps          = errors.New("solution has no steps")
	errNoSource         = errors.New("solution has no source")
	errConfidenceBounds = errors.New("confidence out of range")
)

// Validate checks the structural postconditions every returned Solution must meet.
func (s *Solution) Validate() error {
	if len(s.Steps) == 0 {
		return errNoSteps
	}
	if s.Source == "" {
		return errNoSource
	}
	if s.Confidence < MinConfidence || s.Confidence > MaxConfidence {
		return fmt.Errorf("%w: %d", errConfidenceBounds, s.Confidence)
	}
	return nil
}

// Strategy is one way of producing a Solution. Implementations must honour the
// context deadline: work that cannot finish in time fails with a Timeout error.
type Strategy interface {
	Name() string
	Solve(ctx context.Context, q Question) (*Solution, error)
}

// StrategyFunc adapts a plain function into a named Strategy.
type StrategyFunc struct {
	name string
	fn   func(ctx context.Context, q Question) (*Solution, error)
}

// NewStrategyFunc returns a Strategy named name that delegates to fn.
func NewStrategyFunc(name string, fn func(ctx context.Context, q Question) (*Solution, error)) *StrategyFunc {
	return &StrategyFunc{name: name, fn: fn}
}

func (s *StrategyFunc) Name() string { return s.name }

func (s *StrategyFunc) Solve(ctx context.Context, q Question) (*Solution, error) {
	return s.fn(ctx, q)
}
