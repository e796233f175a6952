package solver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cause := errors.New("502 bad gateway")
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "typed unavailable", err: Unavailable(cause), want: KindUnavailable},
		{name: "wrapped typed", err: fmt.Errorf("inference: %w", Malformed(cause)), want: KindMalformed},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "plain", err: cause, want: KindUnavailable},
		{name: "low confidence", err: LowConfidence(12), want: KindLowConfidence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify("inference", tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, "inference", got.Strategy)
			assert.Equal(t, tt.want, KindOf(got))
		})
	}
}

func TestClassify_NilError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Classify("x", nil))
}

func TestClassify_DoesNotMutateOriginal(t *testing.T) {
	t.Parallel()

	orig := Timeout(nil)
	_ = Classify("reference", orig)
	assert.Empty(t, orig.Strategy)
	assert.ErrorIs(t, orig, context.DeadlineExceeded)
}

func TestStrategyError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "heuristic: low_confidence (score 40)", (&StrategyError{Kind: KindLowConfidence, Strategy: "heuristic", Score: 40}).Error())
	assert.Equal(t, "unavailable: boom", Unavailable(errors.New("boom")).Error())
	assert.Equal(t, "malformed", (&StrategyError{Kind: KindMalformed}).Error())
}

func TestKindOf_NonStrategyError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("x")))
}
