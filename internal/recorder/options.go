package recorder

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/provenant/internal/canon"
	"github.com/roach88/provenant/internal/closure"
	"github.com/roach88/provenant/internal/commit"
	"github.com/roach88/provenant/internal/eventbus"
)

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBlobs stores []byte and canon.Blob values in b; canonical values then
// hold a blob reference instead of the bytes.
func WithBlobs(b canon.BlobPutter) Option {
	return func(r *Recorder) {
		r.blobs = b
	}
}

// WithMessenger enables commit messages for new versions of an existing name.
func WithMessenger(m *commit.Messenger) Option {
	return func(r *Recorder) {
		r.messenger = m
	}
}

// WithEventBus publishes version and invocation notifications on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(r *Recorder) {
		r.bus = bus
	}
}

// WithProviders sets the model client table used by prompt units.
func WithProviders(p *Providers) Option {
	return func(r *Recorder) {
		r.providers = p
	}
}

// WithDefaultModel sets the model of prompt units that do not name one.
func WithDefaultModel(model string) Option {
	return func(r *Recorder) {
		r.defaultModel = model
	}
}

// WithIDGenerator replaces the UUIDv7 invocation id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Recorder) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithTrackingRequired makes every tracking failure an error of the call.
func WithTrackingRequired(required bool) Option {
	return func(r *Recorder) {
		r.required = required
	}
}

// WithRecordFailures writes a failure record when a unit's body fails.
func WithRecordFailures(record bool) Option {
	return func(r *Recorder) {
		r.recordFailures = record
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Recorder) {
		if tp != nil {
			r.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Recorder) {
		if mp != nil {
			r.meterProvider = mp
		}
	}
}

// UnitOption configures a tracked unit.
type UnitOption func(*unit)

// WithName overrides the unit name. The default is the function's
// fully-qualified symbol.
func WithName(name string) UnitOption {
	return func(u *unit) {
		u.name = name
	}
}

// WithSource makes text the unit's source instead of the function's
// declaration on disk.
func WithSource(text string) UnitOption {
	return func(u *unit) {
		u.text = &text
	}
}

// WithUses declares tracked units reached in ways static analysis cannot
// see, such as calls through an interface or a variable set at run time.
func WithUses(deps ...Handle) UnitOption {
	return func(u *unit) {
		for _, d := range deps {
			if d != nil && d.tracked() != nil {
				u.uses = append(u.uses, d.tracked())
			}
		}
	}
}

// WithFreeVars captures live values the unit depends on. Values may be
// pointers to state that changes between calls; they are snapshotted at
// registration for the version id and at every call for the invocation.
func WithFreeVars(vars map[string]any) UnitOption {
	return func(u *unit) {
		u.freeVars = vars
	}
}

// WithGlobals captures package-level state like WithFreeVars.
func WithGlobals(vars map[string]any) UnitOption {
	return func(u *unit) {
		u.globals = vars
	}
}

// WithModel names the model of a prompt unit.
func WithModel(model string) UnitOption {
	return func(u *unit) {
		u.model = model
	}
}

// WithParams sets model request parameters. They are part of the version
// identity.
func WithParams(params map[string]any) UnitOption {
	return func(u *unit) {
		u.params = params
	}
}

// WithClient binds a model client to a prompt unit, ahead of the providers
// table.
func WithClient(c ModelClient) UnitOption {
	return func(u *unit) {
		u.client = c
	}
}

// CallOptions are request-scoped settings for tracked calls.
type CallOptions struct {
	// Client serves prompt units in this call chain, ahead of every other
	// client source.
	Client ModelClient

	// Params are merged over the unit's parameters for model requests.
	// They do not change the version id.
	Params map[string]any

	// Required turns tracking failures into call errors.
	Required bool

	// UseCache returns an earlier successful invocation with the same state
	// cache key instead of executing the unit.
	UseCache bool
}

type callOptionsKey struct{}

// WithCallOptions returns a context carrying opts for tracked calls made
// with it.
func WithCallOptions(ctx context.Context, opts CallOptions) context.Context {
	return context.WithValue(ctx, callOptionsKey{}, opts)
}

// CallOptionsFrom returns the options carried by ctx.
func CallOptionsFrom(ctx context.Context) CallOptions {
	opts, _ := ctx.Value(callOptionsKey{}).(CallOptions)
	return opts
}

// ensure closure.Unit is satisfied by the internal unit type.
var _ closure.Unit = (*unit)(nil)
