package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy names usable in the descenders table.
const (
	StrategyCodeClosure   = "code-closure"
	StrategyAtomClosure   = "atom-closure"
	StrategyAtomWalk      = "atom-walk"
	StrategyLexicographic = "lexicographic"
)

// Descenders is the strategy table: which backend serves which coding
// system. Systems not listed fall through to the non-native vocabularies
// and then to the database function.
type Descenders struct {
	Descenders []DescenderEntry `yaml:"descenders" validate:"dive"`
	NonNative  NonNativeConfig  `yaml:"non_native"`
	// MaxWalkDepth bounds atom-walk traversals. Zero means the default.
	MaxWalkDepth int `yaml:"max_walk_depth" validate:"gte=0"`
}

type DescenderEntry struct {
	CodingSystem string `yaml:"coding_system" validate:"required"`
	Strategy     string `yaml:"strategy" validate:"required,oneof=code-closure atom-closure atom-walk lexicographic"`
}

type NonNativeConfig struct {
	// Lexicographic lists non-native vocabularies whose hierarchy is
	// encoded in code prefixes.
	Lexicographic []string `yaml:"lexicographic" validate:"dive,required"`
}

func DefaultDescenders() Descenders {
	return Descenders{
		Descenders: []DescenderEntry{
			{CodingSystem: "SNOMEDCT_US", Strategy: StrategyCodeClosure},
			{CodingSystem: "MDR", Strategy: StrategyAtomClosure},
			{CodingSystem: "MTHSPL", Strategy: StrategyAtomWalk},
			{CodingSystem: "ICPC2EENG", Strategy: StrategyLexicographic},
		},
		NonNative: NonNativeConfig{Lexicographic: []string{"ICD10DA"}},
	}
}

// LoadDescenders reads the strategy table at path. An empty path gives the
// defaults.
func LoadDescenders(path string) (Descenders, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultDescenders(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Descenders{}, fmt.Errorf("read descenders config: %w", err)
	}
	return ParseDescenders(data)
}

func ParseDescenders(data []byte) (Descenders, error) {
	var d Descenders
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descenders{}, fmt.Errorf("parse descenders config: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Descenders{}, err
	}
	return d, nil
}

func (d Descenders) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid descenders config: %w", err)
	}
	seen := make(map[string]struct{}, len(d.Descenders))
	var errs []error
	for _, e := range d.Descenders {
		if _, ok := seen[e.CodingSystem]; ok {
			errs = append(errs, fmt.Errorf("coding system %s listed twice", e.CodingSystem))
		}
		seen[e.CodingSystem] = struct{}{}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid descenders config: %w", errors.Join(errs...))
	}
	return nil
}
