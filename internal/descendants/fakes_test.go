package descendants

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var errBackend = errors.New("connection refused")

type fakePrefixStore struct {
	mu       sync.Mutex
	codes    map[string]map[string]string // system -> code -> term
	calls    int
	prefixes [][]string
	err      error
}

func newFakePrefixStore() *fakePrefixStore {
	return &fakePrefixStore{codes: map[string]map[string]string{}}
}

func (s *fakePrefixStore) add(system string, pairs ...string) *fakePrefixStore {
	if s.codes[system] == nil {
		s.codes[system] = map[string]string{}
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		s.codes[system][pairs[i]] = pairs[i+1]
	}
	return s
}

func (s *fakePrefixStore) CodesWithPrefixes(_ context.Context, system string, prefixes []string) ([]SourceConcept, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prefixes = append(s.prefixes, append([]string(nil), prefixes...))
	if s.err != nil {
		return nil, s.err
	}
	var out []SourceConcept
	for code, term := range s.codes[system] {
		for _, p := range prefixes {
			if strings.HasPrefix(code, p) {
				out = append(out, SourceConcept{Code: code, PreferredTerm: term})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type fakeAtomStore struct {
	atoms      map[string][]string // code -> atoms
	closure    map[string][]string // atom -> descendant atoms
	children   map[string][]string // atom -> child atoms
	concepts   map[string][]SourceConcept
	childCalls int
	calls      []string
	failOn     string
}

func (s *fakeAtomStore) fail(op string) error {
	s.calls = append(s.calls, op)
	if s.failOn == op {
		return errBackend
	}
	return nil
}

func (s *fakeAtomStore) AtomsForCodes(_ context.Context, _ string, codes []string) (map[string][]string, error) {
	if err := s.fail("atoms"); err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, c := range codes {
		if as, ok := s.atoms[c]; ok {
			out[c] = as
		}
	}
	return out, nil
}

func (s *fakeAtomStore) DescendantAtoms(_ context.Context, atoms []string) (map[string][]string, error) {
	if err := s.fail("closure"); err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, a := range atoms {
		if subs, ok := s.closure[a]; ok {
			out[a] = subs
		}
	}
	return out, nil
}

func (s *fakeAtomStore) ChildAtoms(_ context.Context, _ string, atoms []string) (map[string][]string, error) {
	s.childCalls++
	if err := s.fail("children"); err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, a := range atoms {
		if subs, ok := s.children[a]; ok {
			out[a] = subs
		}
	}
	return out, nil
}

func (s *fakeAtomStore) ConceptsForAtoms(_ context.Context, atoms []string) (map[string][]SourceConcept, error) {
	if err := s.fail("concepts"); err != nil {
		return nil, err
	}
	out := map[string][]SourceConcept{}
	for _, a := range atoms {
		if cs, ok := s.concepts[a]; ok {
			out[a] = cs
		}
	}
	return out, nil
}

type fakeEdgeStore struct {
	edges   []Edge
	calls   int
	systems []string
	err     error
}

func (s *fakeEdgeStore) CodeClosure(_ context.Context, codes []string) ([]Edge, error) {
	return s.lookup(codes)
}

func (s *fakeEdgeStore) DescendantCodes(_ context.Context, system string, codes []string) ([]Edge, error) {
	s.systems = append(s.systems, system)
	return s.lookup(codes)
}

func (s *fakeEdgeStore) lookup(codes []string) ([]Edge, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	want := map[string]bool{}
	for _, c := range codes {
		want[c] = true
	}
	var out []Edge
	for _, e := range s.edges {
		if want[e.Root] {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	systems map[string]bool
	calls   int
	err     error
}

func (c *fakeCatalog) Is(_ context.Context, system string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.systems[system], nil
}

func edge(root, code, term string) Edge {
	return Edge{Root: root, Descendant: SourceConcept{Code: code, PreferredTerm: term}}
}

func ids(codes []Code) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.ID)
	}
	sort.Strings(out)
	return out
}

func idsByRoot(d Descendants) map[string][]string {
	out := map[string][]string{}
	for root, codes := range d {
		out[root] = ids(codes)
	}
	return out
}
