package descendants

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	engine "github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

// BadgerConfig configures the embedded cache database.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	InMemory bool

	SyncWrites bool

	// Logger receives Badger's internal log lines. Nil silences them.
	Logger logrus.FieldLogger
}

func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

var (
	entryPrefix = []byte("e/")
	orderPrefix = []byte("o/")
	seqKey      = []byte("!seq")
)

const (
	seqBandwidth = 1000
	evictBatch   = 1000
	putRetries   = 3
)

// BadgerStore keeps entries in an embedded Badger database. Every entry has
// a companion order key "o/<seq>" so eviction is a prefix scan in write
// order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	seq, err := db.GetSequence(seqKey, seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open cache sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	relErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return err
	}
	return relErr
}

func entryKey(codingSystem, version, code string) []byte {
	k := make([]byte, 0, len(entryPrefix)+len(codingSystem)+len(version)+len(code)+2)
	k = append(k, entryPrefix...)
	k = append(k, codingSystem...)
	k = append(k, 0)
	k = append(k, version...)
	k = append(k, 0)
	return append(k, code...)
}

func orderKey(seq uint64) []byte {
	k := make([]byte, len(orderPrefix)+8)
	copy(k, orderPrefix)
	binary.BigEndian.PutUint64(k[len(orderPrefix):], seq)
	return k
}

func seqOf(value []byte) (uint64, bool) {
	if len(value) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(value[:8]), true
}

func (s *BadgerStore) Get(_ context.Context, codingSystem, version string, codes []string) (map[string][]engine.Code, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if codingSystem == "" {
		return nil, fmt.Errorf("coding_system is required")
	}
	out := make(map[string][]engine.Code)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, code := range codes {
			item, err := txn.Get(entryKey(codingSystem, version, code))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if _, ok := seqOf(val); !ok {
				continue
			}
			out[code] = decode(string(val[8:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Put(_ context.Context, codingSystem, version, code string, descendants []engine.Code) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	if err := validateKey(codingSystem, code); err != nil {
		return err
	}
	payload := encode(descendants)
	ek := entryKey(codingSystem, version, code)

	for attempt := 0; ; attempt++ {
		seq, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("next cache sequence: %w", err)
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(ek)
			switch {
			case err == nil:
				old, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if prev, ok := seqOf(old); ok {
					if err := txn.Delete(orderKey(prev)); err != nil {
						return err
					}
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			val := make([]byte, 8+len(payload))
			binary.BigEndian.PutUint64(val, seq)
			copy(val[8:], payload)
			if err := txn.Set(ek, val); err != nil {
				return err
			}
			return txn.Set(orderKey(seq), ek)
		})
		if errors.Is(err, badger.ErrConflict) && attempt+1 < putRetries {
			continue
		}
		return err
	}
}

func (s *BadgerStore) Evict(ctx context.Context, n int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is nil")
	}
	if err := validateEvict(n); err != nil {
		return 0, err
	}
	removed := 0
	for removed < n {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		got, scanned, err := s.evictBatch(min(n-removed, evictBatch))
		removed += got
		if err != nil {
			return removed, err
		}
		if scanned == 0 {
			break
		}
	}
	return removed, nil
}

// evictBatch deletes up to limit live entries, oldest first. Order keys
// whose entry was rewritten or removed are dropped without counting.
func (s *BadgerStore) evictBatch(limit int) (removed, scanned int, err error) {
	err = s.db.Update(func(txn *badger.Txn) error {
		removed, scanned = 0, 0
		var stale [][]byte
		collect := func() error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = orderPrefix
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid() && removed < limit; it.Next() {
				item := it.Item()
				ordKey := item.KeyCopy(nil)
				ek, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				scanned++
				stale = append(stale, ordKey)
				live, err := entryHasSeq(txn, ek, binary.BigEndian.Uint64(ordKey[len(orderPrefix):]))
				if err != nil {
					return err
				}
				if live {
					stale = append(stale, ek)
					removed++
				}
			}
			return nil
		}
		if err := collect(); err != nil {
			return err
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, scanned, nil
}

func entryHasSeq(txn *badger.Txn, ek []byte, seq uint64) (bool, error) {
	item, err := txn.Get(ek)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	got, ok := seqOf(val)
	return ok && got == seq, nil
}

func (s *BadgerStore) Len(_ context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is nil")
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
