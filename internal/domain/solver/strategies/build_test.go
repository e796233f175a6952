package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	got, err := Build([]string{NameTemplate, NameInference, NameHeuristic}, Deps{
		Provider:  &fakeProvider{},
		Templates: fakeTemplates{},
	})
	require.NoError(t, err)
	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{NameTemplate, NameInference, NameHeuristic}, names)
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	_, err := Build([]string{"oracle"}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = Build([]string{NameInference}, Deps{})
	assert.Error(t, err)

	_, err = Build([]string{NameTemplate}, Deps{})
	assert.Error(t, err)

	_, err = Build([]string{NameReference}, Deps{})
	assert.ErrorIs(t, err, ErrNoReferenceURL)
}
