package descendants

import "context"

// Edge is one (root code, descendant) pair returned by a closure lookup.
type Edge struct {
	Root       string
	Descendant SourceConcept
}

// AtomStore gives access to atom-level hierarchy data of the primary
// terminology database.
type AtomStore interface {
	// AtomsForCodes maps codes of codingSystem to their atom identifiers.
	AtomsForCodes(ctx context.Context, codingSystem string, codes []string) (map[string][]string, error)
	// DescendantAtoms maps atoms to all atoms below them in the precomputed
	// atom closure.
	DescendantAtoms(ctx context.Context, atoms []string) (map[string][]string, error)
	// ChildAtoms maps atoms to their direct children within codingSystem.
	ChildAtoms(ctx context.Context, codingSystem string, atoms []string) (map[string][]string, error)
	// ConceptsForAtoms maps atoms to the source concepts they denote.
	ConceptsForAtoms(ctx context.Context, atoms []string) (map[string][]SourceConcept, error)
}

// ClosureStore answers single-hop lookups in a code-level transitive closure.
type ClosureStore interface {
	CodeClosure(ctx context.Context, codes []string) ([]Edge, error)
}

// FunctionStore calls the database-side descendant function.
type FunctionStore interface {
	DescendantCodes(ctx context.Context, codingSystem string, codes []string) ([]Edge, error)
}

// PrefixStore lists the codes of a coding system that start with any of
// the given prefixes.
type PrefixStore interface {
	CodesWithPrefixes(ctx context.Context, codingSystem string, prefixes []string) ([]SourceConcept, error)
}

// VocabularyCatalog tells whether a coding system lives in the non-native
// vocabulary store.
type VocabularyCatalog interface {
	Is(ctx context.Context, codingSystem string) (bool, error)
}
