package terminology

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

// PostgresStore reads the primary terminology database. All tables are
// read-only from here; the atom closure, the code closure and the
// descendant_codes function are maintained by the terminology import.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) check() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("terminology db is nil")
	}
	return nil
}

func (s *PostgresStore) AtomsForCodes(ctx context.Context, codingSystem string, codes []string) (map[string][]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.pairs(ctx, `SELECT code, aui FROM mrconso WHERE sab = $1 AND code = ANY($2)`, codingSystem, codes)
}

func (s *PostgresStore) DescendantAtoms(ctx context.Context, atoms []string) (map[string][]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.pairs(ctx, `SELECT sup, sub FROM transitiveclosure WHERE sup = ANY($1)`, atoms)
}

// ChildAtoms follows single-hop CHD relations; aui2 is the child of aui1.
func (s *PostgresStore) ChildAtoms(ctx context.Context, codingSystem string, atoms []string) (map[string][]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.pairs(ctx, `
SELECT DISTINCT aui1, aui2
FROM mrrel
WHERE rel = 'CHD' AND sab = $1 AND aui1 = ANY($2) AND aui2 IS NOT NULL
`, codingSystem, atoms)
}

func (s *PostgresStore) ConceptsForAtoms(ctx context.Context, atoms []string) (map[string][]descendants.SourceConcept, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT aui, cui, sab, code, str, tty FROM mrconso WHERE aui = ANY($1)`, atoms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]descendants.SourceConcept)
	for rows.Next() {
		var aui string
		var c descendants.SourceConcept
		if err := rows.Scan(&aui, &c.ConceptID, &c.CodingSystem, &c.Code, &c.PreferredTerm, &c.TermType); err != nil {
			return nil, err
		}
		out[aui] = append(out[aui], c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CodeClosure looks codes up in the numeric code-level closure. Codes that
// are not numeric ids cannot be in the table and are skipped.
func (s *PostgresStore) CodeClosure(ctx context.Context, codes []string) ([]descendants.Edge, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ids := numericIDs(codes)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT c.supertypeid, c.subtypeid, n.preferredname
FROM transitiveclosure AS c
INNER JOIN conceptpreferredname AS n ON c.subtypeid = n.conceptid
WHERE c.supertypeid = ANY($1) AND c.subtypeid <> c.supertypeid
`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descendants.Edge
	for rows.Next() {
		var sup, sub int64
		var name sql.NullString
		if err := rows.Scan(&sup, &sub, &name); err != nil {
			return nil, err
		}
		out = append(out, descendants.Edge{
			Root: strconv.FormatInt(sup, 10),
			Descendant: descendants.SourceConcept{
				Code:          strconv.FormatInt(sub, 10),
				PreferredTerm: name.String,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) DescendantCodes(ctx context.Context, codingSystem string, codes []string) ([]descendants.Edge, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT code0, code, str FROM descendant_codes($1, $2)`, codingSystem, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descendants.Edge
	for rows.Next() {
		var e descendants.Edge
		if err := rows.Scan(&e.Root, &e.Descendant.Code, &e.Descendant.PreferredTerm); err != nil {
			return nil, err
		}
		e.Descendant.CodingSystem = codingSystem
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) CodesWithPrefixes(ctx context.Context, codingSystem string, prefixes []string) ([]descendants.SourceConcept, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT cui, code, str
FROM mrconso
WHERE sab = $1 AND code LIKE ANY($2)
`, codingSystem, LikePatterns(prefixes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descendants.SourceConcept
	for rows.Next() {
		c := descendants.SourceConcept{CodingSystem: codingSystem}
		if err := rows.Scan(&c.ConceptID, &c.Code, &c.PreferredTerm); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Version returns the current release of codingSystem, or "" when the
// terminology database does not list it.
func (s *PostgresStore) Version(ctx context.Context, codingSystem string) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	var version sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT sver FROM mrsab WHERE rsab = $1 AND curver = 'Y' LIMIT 1`, codingSystem).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return version.String, nil
}

func (s *PostgresStore) pairs(ctx context.Context, query string, args ...any) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = append(out[key], value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func numericIDs(codes []string) []int64 {
	out := make([]int64, 0, len(codes))
	for _, c := range codes {
		id, err := strconv.ParseInt(strings.TrimSpace(c), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePatterns turns code prefixes into LIKE patterns matching every code
// that starts with one of them.
func LikePatterns(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, likeEscaper.Replace(p)+"%")
	}
	return out
}

var (
	_ descendants.AtomStore     = (*PostgresStore)(nil)
	_ descendants.ClosureStore  = (*PostgresStore)(nil)
	_ descendants.FunctionStore = (*PostgresStore)(nil)
	_ descendants.PrefixStore   = (*PostgresStore)(nil)
)
