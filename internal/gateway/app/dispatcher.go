package app

import (
	"fmt"

	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/gateway/config"
)

// TerminologyStore is everything the primary terminology database serves.
type TerminologyStore interface {
	descendants.AtomStore
	descendants.ClosureStore
	descendants.FunctionStore
	descendants.PrefixStore
}

type NonNativeStore interface {
	descendants.VocabularyCatalog
	descendants.PrefixStore
}

type Backends struct {
	Terminology TerminologyStore
	// NonNative may be nil.
	NonNative NonNativeStore
}

// NewDispatcher registers one backend per entry of the strategy table. The
// database function serves every other coding system of the terminology.
func NewDispatcher(table config.Descenders, b Backends, opts ...descendants.DispatcherOption) (*descendants.Dispatcher, error) {
	if b.Terminology == nil {
		return nil, fmt.Errorf("terminology store is required")
	}
	var nonNative descendants.NonNativeVocabularies
	if b.NonNative != nil {
		nonNative = descendants.NewNonNative(b.NonNative, b.NonNative, table.NonNative.Lexicographic)
	}
	d := descendants.NewDispatcher(descendants.NewFunction(b.Terminology).Descendants, nonNative, opts...)

	for _, e := range table.Descenders {
		var fn descendants.DescenderFunc
		switch e.Strategy {
		case config.StrategyCodeClosure:
			fn = descendants.NewCodeClosure(e.CodingSystem, b.Terminology).Descendants
		case config.StrategyAtomClosure:
			fn = descendants.NewAtomHierarchy(e.CodingSystem, b.Terminology, descendants.AtomClosure).Descendants
		case config.StrategyAtomWalk:
			fn = descendants.NewAtomHierarchy(e.CodingSystem, b.Terminology, descendants.AtomWalk).
				WithMaxDepth(table.MaxWalkDepth).Descendants
		case config.StrategyLexicographic:
			fn = descendants.NewLexicographic(e.CodingSystem, b.Terminology).Descendants
		default:
			return nil, fmt.Errorf("coding system %s: unknown strategy %q", e.CodingSystem, e.Strategy)
		}
		d.Register(e.CodingSystem, e.Strategy, fn)
	}
	return d, nil
}
