package descendants

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	engine "github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

// PostgresStore keeps entries in the cached_descendants table. Write order
// comes from a sequence bumped on every upsert.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE SEQUENCE IF NOT EXISTS cached_descendants_seq;
CREATE TABLE IF NOT EXISTS cached_descendants (
    coding_system TEXT NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    code TEXT NOT NULL,
    descendants TEXT NOT NULL DEFAULT '',
    seq BIGINT NOT NULL DEFAULT nextval('cached_descendants_seq'),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    PRIMARY KEY (coding_system, version, code)
);
CREATE INDEX IF NOT EXISTS idx_cached_descendants_seq ON cached_descendants(seq);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Get(ctx context.Context, codingSystem, version string, codes []string) (map[string][]engine.Code, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if codingSystem == "" {
		return nil, fmt.Errorf("coding_system is required")
	}
	out := make(map[string][]engine.Code)
	if len(codes) == 0 {
		return out, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT code, descendants FROM cached_descendants
WHERE coding_system = $1 AND version = $2 AND code = ANY($3)
`, codingSystem, version, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code, payload string
		if err := rows.Scan(&code, &payload); err != nil {
			return nil, err
		}
		out[code] = decode(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Put(ctx context.Context, codingSystem, version, code string, descendants []engine.Code) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := validateKey(codingSystem, code); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cached_descendants (coding_system, version, code, descendants)
VALUES ($1, $2, $3, $4)
ON CONFLICT (coding_system, version, code)
DO UPDATE SET descendants=EXCLUDED.descendants, seq=nextval('cached_descendants_seq'), updated_at=NOW()
`, codingSystem, version, code, encode(descendants))
	return err
}

func (s *PostgresStore) Evict(ctx context.Context, n int) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("store is nil")
	}
	if err := validateEvict(n); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM cached_descendants
WHERE (coding_system, version, code) IN (
    SELECT coding_system, version, code FROM cached_descendants ORDER BY seq LIMIT $1
)
`, n)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("store is nil")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cached_descendants`).Scan(&n)
	return n, err
}
