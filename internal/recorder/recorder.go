package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/provenant/internal/canon"
	"github.com/roach88/provenant/internal/closure"
	"github.com/roach88/provenant/internal/commit"
	"github.com/roach88/provenant/internal/eventbus"
	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/store"
)

// Backend is the durable storage the recorder writes to.
// *store.Store implements it.
type Backend interface {
	WriteLMP(ctx context.Context, def ir.LMP, uses []string) (ir.LMP, bool, error)
	WriteUses(ctx context.Context, lmpID string, usesIDs []string) error
	GetLMP(ctx context.Context, lmpID string) (ir.LMP, error)
	GetLatest(ctx context.Context, name string) (ir.LMP, error)
	WriteInvocation(ctx context.Context, inv ir.Invocation) error
	FindByStateCacheKey(ctx context.Context, key string) (ir.Invocation, error)
}

var _ Backend = (*store.Store)(nil)

// Recorder tracks units and records their calls.
//
// Tracking state lives in side tables owned by the Recorder; nothing is
// attached to the caller's functions. The tables are written only by Track,
// so the call path takes at most a read lock, during version resolution.
type Recorder struct {
	backend   Backend
	analyzer  *closure.Analyzer
	canon     *canon.Canonicalizer
	blobs     canon.BlobPutter
	messenger *commit.Messenger
	bus       eventbus.EventBus
	providers *Providers
	ids       IDGenerator
	clock     Clock
	logger    *slog.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	metrics        *instruments

	defaultModel   string
	required       bool
	recordFailures bool

	mu       sync.RWMutex
	bySymbol map[string]*unit
	byName   map[string]*unit
}

// New creates a Recorder writing to backend.
func New(backend Backend, opts ...Option) *Recorder {
	r := &Recorder{
		backend:        backend,
		ids:            UUIDv7Generator{},
		clock:          systemClock{},
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		bySymbol:       make(map[string]*unit),
		byName:         make(map[string]*unit),
	}
	for _, opt := range opts {
		opt(r)
	}

	canonOpts := []canon.Option{canon.WithLogger(r.logger)}
	if r.blobs != nil {
		canonOpts = append(canonOpts, canon.WithBlobs(r.blobs))
	}
	r.canon = canon.New(canonOpts...)
	r.analyzer = closure.New(r, r.logger)
	r.tracer = r.tracerProvider.Tracer(instrumentationName)
	r.metrics = newInstruments(r.meterProvider)
	return r
}

// Resolve implements closure.Resolver over the tracked functions.
func (r *Recorder) Resolve(symbol string) (closure.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.bySymbol[symbol]
	if !ok {
		return nil, false
	}
	return u, true
}

// Names returns the names of all tracked units, sorted.
func (r *Recorder) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// register validates u and adds it to the side tables. The analyzer is
// consulted before the lock is taken because it resolves through r.
func (r *Recorder) register(fn any, u *unit, opts []UnitOption) error {
	symbol, err := closure.Symbol(fn)
	if err != nil {
		return &closure.AnalysisError{Unit: fmt.Sprintf("%T", fn), Err: err}
	}
	u.symbol = symbol
	u.name = symbol
	for _, opt := range opts {
		opt(u)
	}
	if u.name == "" {
		return fmt.Errorf("track %s: empty name", symbol)
	}

	if u.text != nil {
		u.code = closure.TextCode{Text: *u.text, Uses: u.uses}
	} else {
		u.code = closure.FuncCode{Fn: fn, Uses: u.uses}
	}
	if err := r.analyzer.Locate(u); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[u.name]; exists {
		return fmt.Errorf("track %s: %w", u.name, ErrDuplicateName)
	}
	r.byName[u.name] = u
	if _, exists := r.bySymbol[symbol]; !exists {
		r.bySymbol[symbol] = u
	}
	return nil
}

// registration tracks one call chain of ensureVersion.
type registration struct {
	// visiting holds the units whose registration is in progress.
	visiting map[*unit]bool
	// backEdges maps a unit in progress to the units that use it through a
	// cycle. Their edges are written once its id is known.
	backEdges map[*unit][]*unit
}

func newRegistration() *registration {
	return &registration{
		visiting:  make(map[*unit]bool),
		backEdges: make(map[*unit][]*unit),
	}
}

// ensureVersion returns the stored version of u, registering it (and its
// tracked dependencies first) on first use. A dependency still in progress
// on this chain is a cycle back-edge: its uses edge is written after the
// dependency is stored, so both directions of a cycle are recorded whichever
// unit is called first.
func (r *Recorder) ensureVersion(ctx context.Context, u *unit, reg *registration) (ir.LMP, error) {
	if v := u.version.Load(); v != nil {
		return *v, nil
	}
	reg.visiting[u] = true
	defer delete(reg.visiting, u)

	c, err := r.analyzer.Closure(u)
	if err != nil {
		return ir.LMP{}, err
	}

	uses := make([]string, 0, len(c.Uses))
	for _, dep := range c.Uses {
		du, ok := dep.(*unit)
		if !ok {
			continue
		}
		if reg.visiting[du] {
			reg.backEdges[du] = append(reg.backEdges[du], u)
			continue
		}
		dv, err := r.ensureVersion(ctx, du, reg)
		if err != nil {
			return ir.LMP{}, err
		}
		uses = append(uses, dv.ID)
	}

	freeVars, _ := r.canon.Object(ctx, u.freeVars)
	globalVars, _ := r.canon.Object(ctx, u.globals)
	apiParams, _ := r.canon.Object(ctx, u.params)

	id, err := ir.VersionID(u.name, c.Source, freeVars, globalVars, apiParams)
	if err != nil {
		return ir.LMP{}, fmt.Errorf("version id of %s: %w", u.name, err)
	}

	def := ir.LMP{
		ID:            id,
		Name:          u.name,
		Source:        c.Source,
		Dependencies:  c.Dependencies,
		Kind:          u.kind,
		IsLM:          u.kind == ir.KindPrompt,
		APIParams:     apiParams,
		FreeVars:      freeVars,
		GlobalVars:    globalVars,
		CommitMessage: r.commitMessage(ctx, u.name, id, c.Source),
		CreatedAt:     r.clock.Now(),
	}
	if def.IsLM {
		def.Model = r.modelOf(u)
	}

	stored, inserted, err := r.backend.WriteLMP(ctx, def, uses)
	if err != nil {
		return ir.LMP{}, err
	}
	for _, user := range reg.backEdges[u] {
		if uv := user.version.Load(); uv != nil {
			if err := r.backend.WriteUses(ctx, uv.ID, []string{stored.ID}); err != nil {
				return ir.LMP{}, err
			}
		}
	}
	delete(reg.backEdges, u)
	u.version.Store(&stored)

	if inserted {
		r.metrics.recordVersion(ctx, u.name)
		r.logger.Info("new lmp version",
			"lmp_name", stored.Name,
			"lmp_id", stored.ID,
			"version", stored.Version,
			"dependencies", len(stored.Dependencies),
		)
		r.publish(eventbus.TopicVersion, eventbus.VersionEvent{
			LMPID:   stored.ID,
			Name:    stored.Name,
			Version: stored.Version,
		})
	}
	return stored, nil
}

// commitMessage describes how source differs from the latest stored version
// of name. Versions already stored, such as a revert, get none. It never
// fails.
func (r *Recorder) commitMessage(ctx context.Context, name, id, source string) string {
	if !r.messenger.Enabled() {
		return ""
	}
	if _, err := r.backend.GetLMP(ctx, id); err == nil {
		return ""
	}
	latest, err := r.backend.GetLatest(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return ""
	}
	if err != nil {
		r.logger.Warn("commit message skipped", "lmp_name", name, "error", err)
		return ""
	}
	if latest.ID == id {
		return ""
	}
	return r.messenger.Message(ctx, latest.Source, source)
}

func (r *Recorder) modelOf(u *unit) string {
	if u.model != "" {
		return u.model
	}
	return r.defaultModel
}

// clientFor resolves a prompt unit's model client: call site, then unit,
// then providers by model, then the providers' default.
func (r *Recorder) clientFor(opts CallOptions, u *unit, model string) (ModelClient, error) {
	if opts.Client != nil {
		return opts.Client, nil
	}
	if u.client != nil {
		return u.client, nil
	}
	if c, ok := r.providers.ClientFor(model); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%s (model %q): %w", u.name, model, ErrNoClient)
}

func (r *Recorder) publish(topic string, payload any) {
	if r.bus != nil {
		r.bus.Publish(topic, payload)
	}
}

// trackingFailure handles a recoverable failure to register or record. It
// returns the error to hand to the caller, nil when tracking is optional.
func (r *Recorder) trackingFailure(ctx context.Context, u *unit, op string, required bool, err error) error {
	r.metrics.recordTrackingFailure(ctx, u.name, op)
	if errors.Is(err, store.ErrVersionNotCommitted) {
		return err
	}
	terr := &TrackingError{Op: op, Name: u.name, Err: err}
	if required || r.required {
		return terr
	}
	r.logger.Warn("tracking failed", "lmp_name", u.name, "op", op, "error", err)
	return nil
}
