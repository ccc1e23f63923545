package descendants

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DescenderFunc resolves descendants of codes within one coding system.
type DescenderFunc func(ctx context.Context, codes []string) (map[string][]SourceConcept, error)

// GeneralFunc resolves descendants of codes within any coding system.
type GeneralFunc func(ctx context.Context, codingSystem string, codes []string) (map[string][]SourceConcept, error)

// Strategy names reported by Dispatcher.Strategy.
const (
	StrategyNonNative = "non-native"
	StrategyFunction  = "function"
	StrategyNone      = "none"
)

type specificDescender struct {
	name string
	fn   DescenderFunc
}

// Dispatcher picks one backend per coding system: a registered specific
// descender, else the non-native vocabularies, else the general fallback.
// It holds no code data between calls. Register is meant for startup and
// must not race with Resolve.
type Dispatcher struct {
	specific  map[string]specificDescender
	nonNative NonNativeVocabularies
	general   GeneralFunc
	logger    logrus.FieldLogger
	metrics   *Metrics
	tracer    trace.Tracer
}

type DispatcherOption func(*Dispatcher)

func WithLogger(logger logrus.FieldLogger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// NewDispatcher creates a dispatcher. Either backend may be nil: a nil
// non-native store recognizes no system, a nil general fallback finds no
// descendants.
func NewDispatcher(general GeneralFunc, nonNative NonNativeVocabularies, opts ...DispatcherOption) *Dispatcher {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	d := &Dispatcher{
		specific:  make(map[string]specificDescender),
		nonNative: nonNative,
		general:   general,
		logger:    discard,
		tracer:    otel.Tracer("codemapper/descendants"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register makes fn the only backend for codingSystem. name labels the
// strategy in logs and metrics.
func (d *Dispatcher) Register(codingSystem, name string, fn DescenderFunc) {
	d.specific[codingSystem] = specificDescender{name: name, fn: fn}
}

// CodingSystems returns the coding systems with a specific descender.
func (d *Dispatcher) CodingSystems() []string {
	out := make([]string, 0, len(d.specific))
	for system := range d.specific {
		out = append(out, system)
	}
	sort.Strings(out)
	return out
}

// Strategy names the backend Resolve would use for codingSystem.
func (d *Dispatcher) Strategy(ctx context.Context, codingSystem string) (string, error) {
	if s, ok := d.specific[codingSystem]; ok {
		return "specific:" + s.name, nil
	}
	if d.nonNative != nil {
		ok, err := d.nonNative.Is(ctx, codingSystem)
		if err != nil {
			return "", err
		}
		if ok {
			return StrategyNonNative, nil
		}
	}
	if d.general != nil {
		return StrategyFunction, nil
	}
	return StrategyNone, nil
}

// Resolve returns the descendants of codes in codingSystem. An empty code
// set yields an empty result without any query. An unknown coding system
// also yields an empty result.
func (d *Dispatcher) Resolve(ctx context.Context, codingSystem string, codes []string) (Descendants, error) {
	codes = uniqueCodes(codes)
	if len(codes) == 0 {
		return Descendants{}, nil
	}

	strategy, err := d.Strategy(ctx, codingSystem)
	if err != nil {
		d.logFailure(codingSystem, "lookup", codes, err)
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "descendants.resolve", trace.WithAttributes(
		attribute.String("coding_system", codingSystem),
		attribute.String("strategy", strategy),
		attribute.Int("codes", len(codes)),
	))
	defer span.End()

	started := time.Now()
	res, err := d.resolveWith(ctx, strategy, codingSystem, codes)
	d.metrics.observe(strategy, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		d.logFailure(codingSystem, strategy, codes, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("roots_with_descendants", len(res)))
	return res, nil
}

func (d *Dispatcher) resolveWith(ctx context.Context, strategy, codingSystem string, codes []string) (Descendants, error) {
	switch strategy {
	case StrategyNonNative:
		return d.nonNative.Descendants(ctx, codingSystem, codes)
	case StrategyFunction:
		byRoot, err := d.general(ctx, codingSystem, codes)
		if err != nil {
			return nil, err
		}
		return FromSourceConcepts(byRoot), nil
	case StrategyNone:
		return Descendants{}, nil
	default:
		byRoot, err := d.specific[codingSystem].fn(ctx, codes)
		if err != nil {
			return nil, err
		}
		return FromSourceConcepts(byRoot), nil
	}
}

// ResolveMany resolves each coding system independently. The first failure
// aborts the whole call.
func (d *Dispatcher) ResolveMany(ctx context.Context, codesByCodingSystem map[string][]string) (map[string]Descendants, error) {
	systems := make([]string, 0, len(codesByCodingSystem))
	for system := range codesByCodingSystem {
		systems = append(systems, system)
	}
	sort.Strings(systems)

	res := make(map[string]Descendants, len(systems))
	for _, system := range systems {
		descs, err := d.Resolve(ctx, system, codesByCodingSystem[system])
		if err != nil {
			return nil, err
		}
		res[system] = descs
	}
	return res, nil
}

func (d *Dispatcher) logFailure(codingSystem, strategy string, codes []string, err error) {
	d.logger.WithFields(logrus.Fields{
		"coding_system": codingSystem,
		"strategy":      strategy,
		"codes":         len(codes),
	}).WithError(err).Error("cannot resolve descendants")
}
