package nonnative

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
	"github.com/VAC4EU/Codemapper-sub000/internal/repository/terminology"
)

// Vocabulary is one non-native coding system in its latest imported version.
type Vocabulary struct {
	Abbreviation string `json:"abbreviation"`
	Name         string `json:"name"`
	Version      string `json:"version"`
}

// PostgresStore reads the non-native vocabulary tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Vocabularies(ctx context.Context) ([]Vocabulary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("non-native db is nil")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT abbr, full_name, ver FROM non_umls_latest_vocs ORDER BY abbr`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vocabulary
	for rows.Next() {
		var v Vocabulary
		var name, version sql.NullString
		if err := rows.Scan(&v.Abbreviation, &name, &version); err != nil {
			return nil, err
		}
		v.Name = name.String
		v.Version = version.String
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Is(ctx context.Context, codingSystem string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("non-native db is nil")
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM non_umls_latest_vocs WHERE abbr = $1)`, codingSystem).Scan(&ok)
	return ok, err
}

// Version returns the latest imported version of codingSystem, or "" when
// it is not a non-native vocabulary.
func (s *PostgresStore) Version(ctx context.Context, codingSystem string) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("non-native db is nil")
	}
	var version sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT ver FROM non_umls_latest_vocs WHERE abbr = $1 LIMIT 1`, codingSystem).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return version.String, nil
}

func (s *PostgresStore) CodesWithPrefixes(ctx context.Context, codingSystem string, prefixes []string) ([]descendants.SourceConcept, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("non-native db is nil")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT code, term, cui
FROM non_umls_latest_codes
WHERE voc_abbr = $1 AND code LIKE ANY($2)
`, codingSystem, terminology.LikePatterns(prefixes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descendants.SourceConcept
	for rows.Next() {
		c := descendants.SourceConcept{CodingSystem: codingSystem}
		var cui sql.NullString
		if err := rows.Scan(&c.Code, &c.PreferredTerm, &cui); err != nil {
			return nil, err
		}
		c.ConceptID = cui.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	_ descendants.VocabularyCatalog = (*PostgresStore)(nil)
	_ descendants.PrefixStore       = (*PostgresStore)(nil)
)
