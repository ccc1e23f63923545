package descendants

import (
	"sort"
)

// Code is the externally visible form of a descendant code.
type Code struct {
	ID      string  `json:"id"`
	Term    string  `json:"term"`
	Custom  bool    `json:"custom"`
	Enabled bool    `json:"enabled"`
	Tag     *string `json:"tag"`
}

// NewCode returns a code as found in a backend: not custom, enabled, untagged.
func NewCode(id, term string) Code {
	return Code{ID: id, Term: term, Custom: false, Enabled: true}
}

// SourceConcept is one code of one coding system, as returned by a backend lookup.
type SourceConcept struct {
	ConceptID     string `json:"cui,omitempty"`
	CodingSystem  string `json:"codingSystem"`
	Code          string `json:"id"`
	PreferredTerm string `json:"preferredTerm"`
	TermType      string `json:"tty,omitempty"`
}

func (c SourceConcept) ToCode() Code {
	return NewCode(c.Code, c.PreferredTerm)
}

// Descendants maps a root code to its descendant codes.
type Descendants map[string][]Code

type codeKey struct {
	id   string
	term string
}

// Add unions codes into the descendants of root. A code equal to root is
// never added, and a root without descendants gets no entry.
func (d Descendants) Add(root string, codes ...Code) {
	if d == nil {
		return
	}
	existing, present := d[root]
	seen := make(map[codeKey]struct{}, len(existing)+len(codes))
	for _, c := range existing {
		seen[codeKey{c.ID, c.Term}] = struct{}{}
	}
	for _, c := range codes {
		if c.ID == root {
			continue
		}
		k := codeKey{c.ID, c.Term}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		existing = append(existing, c)
	}
	if len(existing) == 0 && !present {
		return
	}
	sortCodes(existing)
	d[root] = existing
}

// Merge unions other into d. Shared root codes end up with the union of
// both descendant sets.
func (d Descendants) Merge(other Descendants) {
	for root, codes := range other {
		d.Add(root, codes...)
	}
}

// Roots returns the root codes in sorted order.
func (d Descendants) Roots() []string {
	out := make([]string, 0, len(d))
	for root := range d {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (d Descendants) Clone() Descendants {
	if d == nil {
		return nil
	}
	out := make(Descendants, len(d))
	for root, codes := range d {
		out[root] = append([]Code(nil), codes...)
	}
	return out
}

// MergeByCodingSystem unions src into dst, per coding system.
func MergeByCodingSystem(dst, src map[string]Descendants) {
	for system, descs := range src {
		if _, ok := dst[system]; !ok {
			dst[system] = Descendants{}
		}
		dst[system].Merge(descs)
	}
}

// FromSourceConcepts normalizes a backend result into Descendants.
func FromSourceConcepts(byRoot map[string][]SourceConcept) Descendants {
	out := make(Descendants, len(byRoot))
	for root, concepts := range byRoot {
		codes := make([]Code, 0, len(concepts))
		for _, c := range concepts {
			codes = append(codes, c.ToCode())
		}
		out.Add(root, codes...)
	}
	return out
}

func sortCodes(codes []Code) {
	sort.SliceStable(codes, func(i, j int) bool {
		if codes[i].ID != codes[j].ID {
			return codes[i].ID < codes[j].ID
		}
		return codes[i].Term < codes[j].Term
	})
}

// uniqueCodes drops empty strings and duplicates, keeping first occurrence order.
func uniqueCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
