package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachedesc "github.com/VAC4EU/Codemapper-sub000/internal/cache/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/config"
	"github.com/VAC4EU/Codemapper-sub000/internal/logging"
)

// fakeTerminology answers every lookup with a fixed child per root and
// records which query served it.
type fakeTerminology struct {
	calls []string
}

func (f *fakeTerminology) AtomsForCodes(_ context.Context, _ string, codes []string) (map[string][]string, error) {
	f.calls = append(f.calls, "atoms")
	out := map[string][]string{}
	for _, c := range codes {
		out[c] = []string{"A" + c}
	}
	return out, nil
}

func (f *fakeTerminology) DescendantAtoms(_ context.Context, atoms []string) (map[string][]string, error) {
	f.calls = append(f.calls, "atom-closure")
	out := map[string][]string{}
	for _, a := range atoms {
		out[a] = []string{a + "1"}
	}
	return out, nil
}

func (f *fakeTerminology) ChildAtoms(context.Context, string, []string) (map[string][]string, error) {
	f.calls = append(f.calls, "child-atoms")
	return map[string][]string{}, nil
}

func (f *fakeTerminology) ConceptsForAtoms(_ context.Context, atoms []string) (map[string][]descendants.SourceConcept, error) {
	out := map[string][]descendants.SourceConcept{}
	for _, a := range atoms {
		out[a] = []descendants.SourceConcept{{CodingSystem: "MDR", Code: a[1:], PreferredTerm: "term " + a}}
	}
	return out, nil
}

func (f *fakeTerminology) CodeClosure(_ context.Context, codes []string) ([]descendants.Edge, error) {
	f.calls = append(f.calls, "code-closure")
	return nil, nil
}

func (f *fakeTerminology) DescendantCodes(_ context.Context, codingSystem string, codes []string) ([]descendants.Edge, error) {
	f.calls = append(f.calls, "function:"+codingSystem)
	return nil, nil
}

func (f *fakeTerminology) CodesWithPrefixes(_ context.Context, codingSystem string, _ []string) ([]descendants.SourceConcept, error) {
	f.calls = append(f.calls, "prefixes:"+codingSystem)
	return nil, nil
}

type fakeNonNative struct {
	fakeTerminology
	vocabularies map[string]bool
}

func (f *fakeNonNative) Is(_ context.Context, codingSystem string) (bool, error) {
	return f.vocabularies[codingSystem], nil
}

func TestNewDispatcher(t *testing.T) {
	ctx := context.Background()
	term := &fakeTerminology{}
	nn := &fakeNonNative{vocabularies: map[string]bool{"ICD10DA": true}}

	d, err := NewDispatcher(config.DefaultDescenders(), Backends{Terminology: term, NonNative: nn})
	require.NoError(t, err)
	assert.Equal(t, []string{"ICPC2EENG", "MDR", "MTHSPL", "SNOMEDCT_US"}, d.CodingSystems())

	for system, want := range map[string]string{
		"SNOMEDCT_US": "specific:code-closure",
		"MDR":         "specific:atom-closure",
		"MTHSPL":      "specific:atom-walk",
		"ICPC2EENG":   "specific:lexicographic",
		"ICD10DA":     descendants.StrategyNonNative,
		"ICD10CM":     descendants.StrategyFunction,
	} {
		got, err := d.Strategy(ctx, system)
		require.NoError(t, err)
		assert.Equal(t, want, got, system)
	}

	res, err := d.Resolve(ctx, "MDR", []string{"100"})
	require.NoError(t, err)
	assert.Equal(t, []descendants.Code{descendants.NewCode("1001", "term A1001")}, res["100"])
	assert.Equal(t, []string{"atoms", "atom-closure"}, term.calls)

	_, err = d.Resolve(ctx, "ICD10DA", []string{"L22"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prefixes:ICD10DA"}, nn.calls)
}

func TestNewDispatcherWithoutNonNative(t *testing.T) {
	term := &fakeTerminology{}
	d, err := NewDispatcher(config.Descenders{}, Backends{Terminology: term})
	require.NoError(t, err)

	got, err := d.Strategy(context.Background(), "ICD10DA")
	require.NoError(t, err)
	assert.Equal(t, descendants.StrategyFunction, got)

	_, err = d.Resolve(context.Background(), "ICD10DA", []string{"L22"})
	require.NoError(t, err)
	assert.Equal(t, []string{"function:ICD10DA"}, term.calls)
}

func TestNewDispatcherErrors(t *testing.T) {
	_, err := NewDispatcher(config.DefaultDescenders(), Backends{})
	assert.Error(t, err)

	table := config.Descenders{Descenders: []config.DescenderEntry{{CodingSystem: "MDR", Strategy: "guess"}}}
	_, err = NewDispatcher(table, Backends{Terminology: &fakeTerminology{}})
	assert.Error(t, err)
}

func TestChooseCacheStore(t *testing.T) {
	logger := logging.Discard()

	store, closer, err := chooseCacheStore(config.CacheConfig{Backend: "none"}, nil, logger)
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Nil(t, closer)

	store, _, err = chooseCacheStore(config.CacheConfig{Backend: "memory"}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &cachedesc.MemoryStore{}, store)

	_, _, err = chooseCacheStore(config.CacheConfig{Backend: "postgres"}, nil, logger)
	assert.Error(t, err)

	_, _, err = chooseCacheStore(config.CacheConfig{Backend: "redis"}, nil, logger)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "cache")
	store, closer, err = chooseCacheStore(config.CacheConfig{Backend: "badger", BadgerPath: path}, nil, logger)
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.IsType(t, &cachedesc.BadgerStore{}, store)
	assert.NoError(t, closer())
}

func TestStoresCloseInReverseOrder(t *testing.T) {
	var order []int
	s := &gatewayStores{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return assert.AnError },
	}}
	assert.ErrorIs(t, s.close(), assert.AnError)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, s.close())
}

func TestInitStoresRequiresTerminology(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Backend: "none"}}
	_, err := initStores(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}
