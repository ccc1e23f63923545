package descendants

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	engine "github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

// Resolver computes descendants without a cache.
type Resolver interface {
	Resolve(ctx context.Context, codingSystem string, codes []string) (engine.Descendants, error)
}

// VersionSource reports the current version of a coding system. An unknown
// system has version "".
type VersionSource interface {
	Version(ctx context.Context, codingSystem string) (string, error)
}

// Versions asks each source in turn and returns the first non-empty version.
type Versions []VersionSource

func (vs Versions) Version(ctx context.Context, codingSystem string) (string, error) {
	for _, v := range vs {
		if v == nil {
			continue
		}
		version, err := v.Version(ctx, codingSystem)
		if err != nil {
			return "", err
		}
		if version != "" {
			return version, nil
		}
	}
	return "", nil
}

type CacheConfig struct {
	// HotEntries bounds the in-process tier in front of the store. Zero
	// disables it.
	HotEntries int
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{HotEntries: 4096}
}

type MetricsSnapshot struct {
	HotHits       uint64
	StoreHits     uint64
	Misses        uint64
	OriginCalls   uint64
	OriginErr     uint64
	StoreReadErr  uint64
	StoreWriteErr uint64
	Evicted       uint64
}

type Metrics struct {
	hotHits       atomic.Uint64
	storeHits     atomic.Uint64
	misses        atomic.Uint64
	originCalls   atomic.Uint64
	originErr     atomic.Uint64
	storeReadErr  atomic.Uint64
	storeWriteErr atomic.Uint64
	evicted       atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		HotHits:       m.hotHits.Load(),
		StoreHits:     m.storeHits.Load(),
		Misses:        m.misses.Load(),
		OriginCalls:   m.originCalls.Load(),
		OriginErr:     m.originErr.Load(),
		StoreReadErr:  m.storeReadErr.Load(),
		StoreWriteErr: m.storeWriteErr.Load(),
		Evicted:       m.evicted.Load(),
	}
}

// CachedResolver answers from the cache first, resolves the missing codes
// through the origin and writes every resolved code back, including codes
// without descendants. Cache failures are logged and never fail a request.
type CachedResolver struct {
	origin   Resolver
	store    Store
	versions VersionSource
	hot      *lru.Cache[string, []engine.Code]
	group    singleflight.Group
	logger   logrus.FieldLogger
	metrics  Metrics
	lookups  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewCachedResolver wraps origin. A nil store disables caching; a nil
// versions source keys every entry with the empty version.
func NewCachedResolver(origin Resolver, store Store, versions VersionSource, cfg CacheConfig) *CachedResolver {
	logger := cfg.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	r := &CachedResolver{
		origin:   origin,
		store:    store,
		versions: versions,
		logger:   logger,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codemapper",
			Subsystem: "descendants_cache",
			Name:      "lookups_total",
			Help:      "Cache lookups per root code by result.",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codemapper",
			Subsystem: "descendants_cache",
			Name:      "store_errors_total",
			Help:      "Failed cache store operations.",
		}, []string{"op"}),
	}
	if cfg.HotEntries > 0 {
		hot, err := lru.New[string, []engine.Code](cfg.HotEntries)
		if err == nil {
			r.hot = hot
		}
	}
	if cfg.Registerer != nil {
		cfg.Registerer.MustRegister(r.lookups, r.failures)
	}
	return r
}

func hotKey(codingSystem, version, code string) string {
	return codingSystem + "\x00" + version + "\x00" + code
}

// Resolve trims the coding system and codes once, so the origin, the
// version source and the store all see the same keys.
func (r *CachedResolver) Resolve(ctx context.Context, codingSystem string, codes []string) (engine.Descendants, error) {
	codingSystem = strings.TrimSpace(codingSystem)
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return engine.Descendants{}, nil
	}
	if r.store == nil || codingSystem == "" {
		return r.origin.Resolve(ctx, codingSystem, codes)
	}

	version := ""
	if r.versions != nil {
		v, err := r.versions.Version(ctx, codingSystem)
		if err != nil {
			r.metrics.storeReadErr.Add(1)
			r.failures.WithLabelValues("version").Inc()
			r.logger.WithFields(logrus.Fields{
				"coding_system": codingSystem,
				"codes":         len(codes),
			}).WithError(err).Warn("vocabulary version lookup failed, bypassing descendants cache")
			return r.origin.Resolve(ctx, codingSystem, codes)
		}
		version = v
	}

	found := make(map[string][]engine.Code, len(codes))
	missing := r.lookupHot(codingSystem, version, codes, found)
	missing = r.lookupStore(ctx, codingSystem, version, missing, found)

	if len(missing) > 0 {
		fresh, err := r.resolveMissing(ctx, codingSystem, version, missing)
		if err != nil {
			return nil, err
		}
		for _, code := range missing {
			found[code] = fresh[code]
		}
	}

	out := make(engine.Descendants, len(found))
	for code, descs := range found {
		if len(descs) == 0 {
			continue
		}
		out[code] = append([]engine.Code(nil), descs...)
	}
	return out, nil
}

func (r *CachedResolver) lookupHot(codingSystem, version string, codes []string, found map[string][]engine.Code) []string {
	if r.hot == nil {
		return codes
	}
	var missing []string
	for _, code := range codes {
		if descs, ok := r.hot.Get(hotKey(codingSystem, version, code)); ok {
			found[code] = descs
			r.metrics.hotHits.Add(1)
			r.lookups.WithLabelValues("hot").Inc()
			continue
		}
		missing = append(missing, code)
	}
	return missing
}

func (r *CachedResolver) lookupStore(ctx context.Context, codingSystem, version string, codes []string, found map[string][]engine.Code) []string {
	if len(codes) == 0 {
		return nil
	}
	hits, err := r.store.Get(ctx, codingSystem, version, codes)
	if err != nil {
		r.metrics.storeReadErr.Add(1)
		r.failures.WithLabelValues("get").Inc()
		r.logger.WithFields(logrus.Fields{
			"coding_system": codingSystem,
			"codes":         len(codes),
		}).WithError(err).Warn("descendants cache read failed")
		hits = nil
	}
	var missing []string
	for _, code := range codes {
		descs, ok := hits[code]
		if !ok {
			missing = append(missing, code)
			r.metrics.misses.Add(1)
			r.lookups.WithLabelValues("miss").Inc()
			continue
		}
		found[code] = descs
		r.metrics.storeHits.Add(1)
		r.lookups.WithLabelValues("store").Inc()
		if r.hot != nil {
			r.hot.Add(hotKey(codingSystem, version, code), descs)
		}
	}
	return missing
}

// resolveMissing calls the origin once per distinct (system, version, codes)
// among concurrent callers and writes the results back. The shared call
// does not inherit the cancellation of whichever caller started it; each
// caller stops waiting when its own context is done.
func (r *CachedResolver) resolveMissing(ctx context.Context, codingSystem, version string, codes []string) (engine.Descendants, error) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	key := codingSystem + "\x00" + version + "\x00" + strings.Join(sorted, "\x00")

	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		r.metrics.originCalls.Add(1)
		res, err := r.origin.Resolve(shared, codingSystem, sorted)
		if err != nil {
			r.metrics.originErr.Add(1)
			return nil, err
		}
		r.writeBack(shared, codingSystem, version, sorted, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(engine.Descendants), nil
	}
}

func (r *CachedResolver) writeBack(ctx context.Context, codingSystem, version string, codes []string, res engine.Descendants) {
	for _, code := range codes {
		descs := res[code]
		if descs == nil {
			descs = []engine.Code{}
		}
		if err := r.store.Put(ctx, codingSystem, version, code, descs); err != nil {
			r.metrics.storeWriteErr.Add(1)
			r.failures.WithLabelValues("put").Inc()
			r.logger.WithFields(logrus.Fields{
				"coding_system": codingSystem,
				"code":          code,
			}).WithError(err).Warn("descendants cache write failed")
			continue
		}
		if r.hot != nil {
			r.hot.Add(hotKey(codingSystem, version, code), descs)
		}
	}
}

// ResolveMany resolves each coding system in turn. The first failure aborts.
func (r *CachedResolver) ResolveMany(ctx context.Context, codesByCodingSystem map[string][]string) (map[string]engine.Descendants, error) {
	systems := make([]string, 0, len(codesByCodingSystem))
	for system := range codesByCodingSystem {
		systems = append(systems, system)
	}
	sort.Strings(systems)

	res := make(map[string]engine.Descendants, len(systems))
	for _, system := range systems {
		descs, err := r.Resolve(ctx, system, codesByCodingSystem[system])
		if err != nil {
			return nil, err
		}
		res[system] = descs
	}
	return res, nil
}

// Evict removes the n oldest persisted entries and clears the hot tier.
func (r *CachedResolver) Evict(ctx context.Context, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: evict count must not be negative", engine.ErrInvalidArgument)
	}
	if r.store == nil {
		return 0, nil
	}
	removed, err := r.store.Evict(ctx, n)
	if r.hot != nil {
		r.hot.Purge()
	}
	r.metrics.evicted.Add(uint64(removed))
	if err != nil {
		r.failures.WithLabelValues("evict").Inc()
		return removed, engine.DataAccess("evict cached descendants", err)
	}
	r.logger.WithFields(logrus.Fields{"requested": n, "removed": removed}).Info("evicted cached descendants")
	return removed, nil
}

// Len reports the number of persisted entries.
func (r *CachedResolver) Len(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	n, err := r.store.Len(ctx)
	if err != nil {
		return 0, engine.DataAccess("count cached descendants", err)
	}
	return n, nil
}

func (r *CachedResolver) Metrics() MetricsSnapshot {
	if r == nil {
		return MetricsSnapshot{}
	}
	return r.metrics.snapshot()
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
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
