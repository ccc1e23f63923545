package descendants

import (
	"context"
	"sort"
	"strings"
)

// Lexicographic infers descendants from code strings: a code is a
// descendant of every requested code that is a proper prefix of it.
type Lexicographic struct {
	codingSystem string
	store        PrefixStore
}

func NewLexicographic(codingSystem string, store PrefixStore) *Lexicographic {
	return &Lexicographic{codingSystem: codingSystem, store: store}
}

// ReducePrefixes sorts and deduplicates codes and drops every code that
// extends the previously kept one. Scanning the kept prefixes finds all
// codes that scanning every input code would find.
func ReducePrefixes(codes []string) []string {
	sorted := uniqueCodes(codes)
	sort.Strings(sorted)
	var (
		kept   []string
		prefix string
	)
	for i, code := range sorted {
		if i > 0 && strings.HasPrefix(code, prefix) {
			continue
		}
		prefix = code
		kept = append(kept, code)
	}
	return kept
}

func (l *Lexicographic) Descendants(ctx context.Context, codes []string) (map[string][]SourceConcept, error) {
	roots := uniqueCodes(codes)
	if len(roots) == 0 {
		return map[string][]SourceConcept{}, nil
	}
	prefixes := ReducePrefixes(roots)
	rows, err := l.store.CodesWithPrefixes(ctx, l.codingSystem, prefixes)
	if err != nil {
		return nil, DataAccess("query codes by prefix", err)
	}

	isRoot := make(map[string]struct{}, len(roots))
	for _, r := range roots {
		isRoot[r] = struct{}{}
	}
	res := make(map[string][]SourceConcept)
	for _, row := range rows {
		if row.CodingSystem == "" {
			row.CodingSystem = l.codingSystem
		}
		// Every proper prefix of the fetched code that was requested is one of its ancestors.
		for n := 1; n < len(row.Code); n++ {
			root := row.Code[:n]
			if _, ok := isRoot[root]; ok {
				res[root] = append(res[root], row)
			}
		}
	}
	return res, nil
}
