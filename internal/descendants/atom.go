package descendants

import (
	"context"
	"sort"
)

// AtomMode selects how descendant atoms are found.
type AtomMode int

const (
	// AtomClosure reads descendant atoms from the precomputed atom closure
	// in a single bulk query.
	AtomClosure AtomMode = iota
	// AtomWalk follows single-hop child edges, one bulk query per level.
	AtomWalk
)

// DefaultMaxWalkDepth bounds AtomWalk traversals.
const DefaultMaxWalkDepth = 64

// AtomHierarchy resolves descendants through atoms: codes to atoms,
// atoms to descendant atoms, descendant atoms to source concepts.
type AtomHierarchy struct {
	codingSystem string
	store        AtomStore
	mode         AtomMode
	maxDepth     int
}

func NewAtomHierarchy(codingSystem string, store AtomStore, mode AtomMode) *AtomHierarchy {
	return &AtomHierarchy{
		codingSystem: codingSystem,
		store:        store,
		mode:         mode,
		maxDepth:     DefaultMaxWalkDepth,
	}
}

// WithMaxDepth sets the level bound of AtomWalk. Values below one are ignored.
func (a *AtomHierarchy) WithMaxDepth(depth int) *AtomHierarchy {
	if depth > 0 {
		a.maxDepth = depth
	}
	return a
}

type conceptCode struct {
	conceptID string
	code      string
}

func (a *AtomHierarchy) Descendants(ctx context.Context, codes []string) (map[string][]SourceConcept, error) {
	codes = uniqueCodes(codes)
	res := make(map[string][]SourceConcept)
	if len(codes) == 0 {
		return res, nil
	}

	atomsByCode, err := a.store.AtomsForCodes(ctx, a.codingSystem, codes)
	if err != nil {
		return nil, DataAccess("query atoms for codes", err)
	}
	rootAtoms := flatten(atomsByCode)
	if len(rootAtoms) == 0 {
		return res, nil
	}

	var subAtoms map[string][]string
	switch a.mode {
	case AtomWalk:
		subAtoms, err = a.walk(ctx, rootAtoms)
	default:
		subAtoms, err = a.store.DescendantAtoms(ctx, rootAtoms)
		err = DataAccess("query atom closure", err)
	}
	if err != nil {
		return nil, err
	}
	descendantAtoms := flatten(subAtoms)
	if len(descendantAtoms) == 0 {
		return res, nil
	}

	concepts, err := a.store.ConceptsForAtoms(ctx, descendantAtoms)
	if err != nil {
		return nil, DataAccess("query concepts for atoms", err)
	}

	for _, code := range codes {
		seen := make(map[conceptCode]struct{})
		for _, sup := range atomsByCode[code] {
			for _, sub := range subAtoms[sup] {
				for _, concept := range concepts[sub] {
					if concept.Code == code {
						continue
					}
					k := conceptCode{concept.ConceptID, concept.Code}
					if _, ok := seen[k]; ok {
						continue
					}
					seen[k] = struct{}{}
					if concept.CodingSystem == "" {
						concept.CodingSystem = a.codingSystem
					}
					res[code] = append(res[code], concept)
				}
			}
		}
	}
	return res, nil
}

// walk computes the atom closure of roots from single-hop child edges. Each
// level of the hierarchy costs one bulk query; atoms are expanded once, so
// cycles terminate.
func (a *AtomHierarchy) walk(ctx context.Context, roots []string) (map[string][]string, error) {
	children := make(map[string][]string)
	expanded := make(map[string]struct{})
	frontier := roots
	for depth := 0; len(frontier) > 0 && depth < a.maxDepth; depth++ {
		for _, atom := range frontier {
			expanded[atom] = struct{}{}
		}
		edges, err := a.store.ChildAtoms(ctx, a.codingSystem, frontier)
		if err != nil {
			return nil, DataAccess("query child atoms", err)
		}
		var next []string
		queued := make(map[string]struct{})
		for parent, subs := range edges {
			children[parent] = append(children[parent], subs...)
			for _, sub := range subs {
				if _, ok := expanded[sub]; ok {
					continue
				}
				if _, ok := queued[sub]; ok {
					continue
				}
				queued[sub] = struct{}{}
				next = append(next, sub)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	res := make(map[string][]string, len(roots))
	for _, root := range roots {
		visited := map[string]struct{}{root: {}}
		stack := append([]string(nil), children[root]...)
		var reached []string
		for len(stack) > 0 {
			atom := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[atom]; ok {
				continue
			}
			visited[atom] = struct{}{}
			reached = append(reached, atom)
			stack = append(stack, children[atom]...)
		}
		if len(reached) > 0 {
			res[root] = reached
		}
	}
	return res, nil
}

func flatten(m map[string][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, vs := range m {
		for _, v := range vs {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
