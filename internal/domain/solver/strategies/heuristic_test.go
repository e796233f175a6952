package strategies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

func TestHeuristic_Matches(t *testing.T) {
	t.Parallel()

	sol, err := NewHeuristic().Solve(context.Background(), solver.Question{
		Text:     "Calculer la limite puis la dérivée de f(x) = x²",
		Language: solver.LanguageFrench,
	})
	require.NoError(t, err)
	require.Len(t, sol.Steps, 2)
	assert.Equal(t, "Identifier le type de limite", sol.Steps[0].Title)
	assert.Equal(t, "Appliquer les règles de dérivation", sol.Steps[1].Title)
	assert.Equal(t, solver.CategoryGreen, sol.Steps[1].Category)
	assert.Equal(t, HeuristicMatchConfidence, sol.Confidence)
	assert.Equal(t, solver.Source(NameHeuristic), sol.Source)
}

func TestHeuristic_ArabicKeywordsAndTitles(t *testing.T) {
	t.Parallel()

	sol, err := NewHeuristic().Solve(context.Background(), solver.Question{Text: "أحسب تكامل الدالة", Language: solver.LanguageTunisian})
	require.NoError(t, err)
	require.Len(t, sol.Steps, 1)
	assert.Equal(t, "إيجاد دالة أصلية", sol.Steps[0].Title)
	assert.Equal(t, "اتبع الخطوات أعلاه", sol.FinalAnswer)
}

func TestHeuristic_NoMatchIsBelowThreshold(t *testing.T) {
	t.Parallel()

	sol, err := NewHeuristic().Solve(context.Background(), solver.Question{Text: "bonjour"})
	require.NoError(t, err)
	require.Len(t, sol.Steps, 1)
	assert.Equal(t, "Analyse du problème", sol.Steps[0].Title)
	assert.Equal(t, HeuristicNoMatchConfidence, sol.Confidence)
	assert.Less(t, sol.Confidence, solver.DefaultThreshold)
}

func TestHeuristic_HonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristic().Solve(ctx, solver.Question{Text: "limite"})
	assert.ErrorIs(t, err, context.Canceled)
}
