package descendants

import "context"

// CodeClosure resolves descendants from a transitive closure maintained at
// the code level, joined with preferred names.
type CodeClosure struct {
	codingSystem string
	store        ClosureStore
}

func NewCodeClosure(codingSystem string, store ClosureStore) *CodeClosure {
	return &CodeClosure{codingSystem: codingSystem, store: store}
}

func (c *CodeClosure) Descendants(ctx context.Context, codes []string) (map[string][]SourceConcept, error) {
	codes = uniqueCodes(codes)
	if len(codes) == 0 {
		return map[string][]SourceConcept{}, nil
	}
	edges, err := c.store.CodeClosure(ctx, codes)
	if err != nil {
		return nil, DataAccess("query code closure descendants", err)
	}
	return groupEdges(c.codingSystem, edges), nil
}

// Function delegates the hierarchy walk to a function in the terminology
// database. It serves every coding system without a registered backend.
type Function struct {
	store FunctionStore
}

func NewFunction(store FunctionStore) *Function {
	return &Function{store: store}
}

func (f *Function) Descendants(ctx context.Context, codingSystem string, codes []string) (map[string][]SourceConcept, error) {
	codes = uniqueCodes(codes)
	if len(codes) == 0 {
		return map[string][]SourceConcept{}, nil
	}
	edges, err := f.store.DescendantCodes(ctx, codingSystem, codes)
	if err != nil {
		return nil, DataAccess("query descendant codes function", err)
	}
	return groupEdges(codingSystem, edges), nil
}

func groupEdges(codingSystem string, edges []Edge) map[string][]SourceConcept {
	res := make(map[string][]SourceConcept)
	for _, e := range edges {
		if e.Root == e.Descendant.Code {
			continue
		}
		d := e.Descendant
		if d.CodingSystem == "" {
			d.CodingSystem = codingSystem
		}
		res[e.Root] = append(res[e.Root], d)
	}
	return res
}
