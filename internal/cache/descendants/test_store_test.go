package descendants

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

func TestCodecRoundTrip(t *testing.T) {
	codes := []engine.Code{
		engine.NewCode("L229", "Spondylosis, unspecified"),
		engine.NewCode("L229A", ""),
		engine.NewCode("L229B", "term with \x1e record and \x1f field separators"),
		engine.NewCode("L22\x1b9C", "escape \x1b\x1bu kept"),
	}
	got := decode(encode(codes))
	if !reflect.DeepEqual(got, codes) {
		t.Fatalf("decode(encode(codes)) = %+v, want %+v", got, codes)
	}

	if enc := encode(nil); enc != "" {
		t.Fatalf("encode(nil) = %q, want empty", enc)
	}
	if dec := decode(""); dec == nil || len(dec) != 0 {
		t.Fatalf("decode(\"\") = %#v, want empty non-nil slice", dec)
	}
}

func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get put overwrite", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(ctx, "ICD10DA", "2023", []string{"L22"})
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, s.Put(ctx, "ICD10DA", "2023", "L22", []engine.Code{engine.NewCode("L229", "a")}))
		require.NoError(t, s.Put(ctx, "ICD10DA", "2023", "L233A", nil))
		got, err = s.Get(ctx, "ICD10DA", "2023", []string{"L22", "L233A", "L999"})
		require.NoError(t, err)
		assert.Equal(t, map[string][]engine.Code{
			"L22":   {engine.NewCode("L229", "a")},
			"L233A": {},
		}, got)

		require.NoError(t, s.Put(ctx, "ICD10DA", "2023", "L22", []engine.Code{engine.NewCode("L229", "b")}))
		got, err = s.Get(ctx, "ICD10DA", "2023", []string{"L22"})
		require.NoError(t, err)
		assert.Equal(t, "b", got["L22"][0].Term)

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("keys include version", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "MDR", "25.0", "100", []engine.Code{engine.NewCode("200", "x")}))
		got, err := s.Get(ctx, "MDR", "26.0", []string{"100"})
		require.NoError(t, err)
		assert.Empty(t, got)
		got, err = s.Get(ctx, "SNOMEDCT_US", "25.0", []string{"100"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("evict oldest first", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Put(ctx, "ICD10DA", "", fmt.Sprintf("C%d", i), nil))
		}
		// rewriting C0 makes it the newest
		require.NoError(t, s.Put(ctx, "ICD10DA", "", "C0", nil))

		removed, err := s.Evict(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		got, err := s.Get(ctx, "ICD10DA", "", []string{"C0", "C1", "C2", "C3", "C4"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"C0", "C3", "C4"}, keys(got))

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		removed, err = s.Evict(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)
		n, err = s.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Put(ctx, " ", "", "X", nil))
		assert.Error(t, s.Put(ctx, "ICD10DA", "", "", nil))
		_, err := s.Evict(ctx, -1)
		assert.Error(t, err)
		removed, err := s.Evict(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

func keys(m map[string][]engine.Code) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestBadgerStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := OpenBadger(InMemoryBadgerConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "MDR", "26.0", "100", []engine.Code{engine.NewCode("200", "child")}))
	require.NoError(t, s.Close())

	s, err = OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put(ctx, "MDR", "26.0", "300", nil))

	got, err := s.Get(ctx, "MDR", "26.0", []string{"100"})
	require.NoError(t, err)
	assert.Equal(t, []engine.Code{engine.NewCode("200", "child")}, got["100"])

	// sequence continues across reopen: the older entry goes first
	removed, err := s.Evict(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	got, err = s.Get(ctx, "MDR", "26.0", []string{"100", "300"})
	require.NoError(t, err)
	assert.Equal(t, []string{"300"}, keys(got))
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
