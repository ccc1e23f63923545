package descendants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icpcStore() *fakePrefixStore {
	return newFakePrefixStore().add("ICD10DA",
		"L22", "Spondylosis",
		"L229", "Spondylosis, unspecified",
		"L229A", "Cervical spondylosis",
		"L229B", "Thoracic spondylosis",
		"L229C", "Lumbar spondylosis",
		"L233", "Fracture",
		"L233A", "Open fracture",
		"M10", "Gout",
	)
}

func TestReducePrefixes(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  []string
	}{
		{"nested code collapses", []string{"L22", "L229", "L233"}, []string{"L22", "L233"}},
		{"unsorted with duplicates", []string{"L233", "L22", "L229", "L22"}, []string{"L22", "L233"}},
		{"siblings stay", []string{"A1", "A2", "B"}, []string{"A1", "A2", "B"}},
		{"deep chain", []string{"A", "AB", "ABC", "ABD"}, []string{"A"}},
		{"empty strings dropped", []string{"", "X"}, []string{"X"}},
		{"no codes", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReducePrefixes(tt.codes))
		})
	}
}

func TestLexicographicReexpandsCollapsedRoots(t *testing.T) {
	store := icpcStore()
	lex := NewLexicographic("ICD10DA", store)

	got, err := lex.Descendants(context.Background(), []string{"L22", "L229", "L233"})
	require.NoError(t, err)

	require.Len(t, store.prefixes, 1)
	assert.Equal(t, []string{"L22", "L233"}, store.prefixes[0])

	d := FromSourceConcepts(got)
	assert.Equal(t, map[string][]string{
		"L22":  {"L229", "L229A", "L229B", "L229C"},
		"L229": {"L229A", "L229B", "L229C"},
		"L233": {"L233A"},
	}, idsByRoot(d))
	for _, concept := range got["L229"] {
		assert.Equal(t, "ICD10DA", concept.CodingSystem)
		assert.NotEqual(t, "L229", concept.Code)
	}
}

func TestLexicographicEndToEnd(t *testing.T) {
	store := icpcStore()
	nonNative := NewNonNative(&fakeCatalog{systems: map[string]bool{"ICD10DA": true}}, store, []string{"ICD10DA"})
	d := NewDispatcher(nil, nonNative)

	got, err := d.Resolve(context.Background(), "ICD10DA", []string{"L22", "L233"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"L22":  {"L229", "L229A", "L229B", "L229C"},
		"L233": {"L233A"},
	}, idsByRoot(got))
	assert.Equal(t, "Cervical spondylosis", got["L22"][1].Term)
	assert.True(t, got["L22"][0].Enabled)
	assert.False(t, got["L22"][0].Custom)
	assert.Nil(t, got["L22"][0].Tag)
}

func TestLexicographicEmptyInputSkipsQuery(t *testing.T) {
	store := icpcStore()
	got, err := NewLexicographic("ICD10DA", store).Descendants(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.calls)
}

func TestLexicographicFailure(t *testing.T) {
	store := icpcStore()
	store.err = errBackend
	_, err := NewLexicographic("ICD10DA", store).Descendants(context.Background(), []string{"L22"})
	require.Error(t, err)
	assert.True(t, IsDataAccess(err))
	assert.ErrorIs(t, err, errBackend)
}

func TestNonNativeWithoutHierarchy(t *testing.T) {
	store := icpcStore().add("MEDCODEID", "100", "A", "1001", "B")
	nonNative := NewNonNative(&fakeCatalog{}, store, []string{"ICD10DA"})

	got, err := nonNative.Descendants(context.Background(), "MEDCODEID", []string{"100"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.calls)
}
