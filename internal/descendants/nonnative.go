package descendants

import "context"

// NonNativeVocabularies resolves descendants for coding systems kept
// outside the primary terminology database.
type NonNativeVocabularies interface {
	Is(ctx context.Context, codingSystem string) (bool, error)
	Descendants(ctx context.Context, codingSystem string, codes []string) (Descendants, error)
}

// NonNative serves non-native vocabularies. Only vocabularies listed as
// lexicographic have a hierarchy; all others have no descendants.
type NonNative struct {
	catalog       VocabularyCatalog
	codes         PrefixStore
	lexicographic map[string]struct{}
}

func NewNonNative(catalog VocabularyCatalog, codes PrefixStore, lexicographic []string) *NonNative {
	lex := make(map[string]struct{}, len(lexicographic))
	for _, voc := range lexicographic {
		lex[voc] = struct{}{}
	}
	return &NonNative{catalog: catalog, codes: codes, lexicographic: lex}
}

func (n *NonNative) Is(ctx context.Context, codingSystem string) (bool, error) {
	ok, err := n.catalog.Is(ctx, codingSystem)
	if err != nil {
		return false, DataAccess("query non-native vocabularies", err)
	}
	return ok, nil
}

func (n *NonNative) Descendants(ctx context.Context, codingSystem string, codes []string) (Descendants, error) {
	if _, ok := n.lexicographic[codingSystem]; !ok {
		return Descendants{}, nil
	}
	byRoot, err := NewLexicographic(codingSystem, n.codes).Descendants(ctx, codes)
	if err != nil {
		return nil, err
	}
	return FromSourceConcepts(byRoot), nil
}
