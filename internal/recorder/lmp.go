package recorder

import (
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/provenant/internal/canon"
	"github.com/roach88/provenant/internal/closure"
	"github.com/roach88/provenant/internal/eventbus"
	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/origin"
	"github.com/roach88/provenant/internal/store"
)

// unit is the recorder's side-table entry for one tracked function.
type unit struct {
	name   string
	symbol string
	kind   ir.Kind
	code   closure.Code
	text   *string
	uses   []closure.Unit

	freeVars map[string]any
	globals  map[string]any
	params   map[string]any
	model    string
	client   ModelClient

	version atomic.Pointer[ir.LMP]
}

func (u *unit) UnitName() string   { return u.name }
func (u *unit) Code() closure.Code { return u.code }

// Handle is implemented by every tracked LMP regardless of its signature.
type Handle interface {
	Name() string
	tracked() *unit
}

// LMP is a tracked unit with input In and output Out.
type LMP[In, Out any] struct {
	r    *Recorder
	u    *unit
	body func(ctx context.Context, in In) (Out, error)
	// prompt is set for prompt units; body is unused then.
	prompt func(ctx context.Context, in In) ([]Message, error)
}

// Name returns the unit name.
func (l *LMP[In, Out]) Name() string { return l.u.name }

// Kind returns the unit kind.
func (l *LMP[In, Out]) Kind() ir.Kind { return l.u.kind }

// Version returns the registered version, if the unit has been called.
func (l *LMP[In, Out]) Version() (ir.LMP, bool) {
	v := l.u.version.Load()
	if v == nil {
		return ir.LMP{}, false
	}
	return *v, true
}

func (l *LMP[In, Out]) tracked() *unit {
	if l == nil {
		return nil
	}
	return l.u
}

// Track tracks a plain function. The source of fn must be readable at run
// time; analysis errors are returned here.
func Track[In, Out any](r *Recorder, fn func(context.Context, In) (Out, error), opts ...UnitOption) (*LMP[In, Out], error) {
	return track(r, fn, ir.KindFunc, opts)
}

// TrackTool tracks a function exposed to models as a tool.
func TrackTool[In, Out any](r *Recorder, fn func(context.Context, In) (Out, error), opts ...UnitOption) (*LMP[In, Out], error) {
	return track(r, fn, ir.KindTool, opts)
}

// TrackPrompt tracks a prompt-producing function. Each call sends the
// returned messages to the resolved model client and returns its text tagged
// with the invocation id.
func TrackPrompt[In any](r *Recorder, fn func(context.Context, In) ([]Message, error), opts ...UnitOption) (*LMP[In, origin.String], error) {
	u := &unit{kind: ir.KindPrompt}
	if err := r.register(fn, u, opts); err != nil {
		return nil, err
	}
	return &LMP[In, origin.String]{r: r, u: u, prompt: fn}, nil
}

func track[In, Out any](r *Recorder, fn func(context.Context, In) (Out, error), kind ir.Kind, opts []UnitOption) (*LMP[In, Out], error) {
	u := &unit{kind: kind}
	if err := r.register(fn, u, opts); err != nil {
		return nil, err
	}
	return &LMP[In, Out]{r: r, u: u, body: fn}, nil
}

// MustTrack is like Track but panics on error. For package-level variables.
func MustTrack[In, Out any](r *Recorder, fn func(context.Context, In) (Out, error), opts ...UnitOption) *LMP[In, Out] {
	l, err := Track(r, fn, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// callState collects what one call records.
type callState struct {
	id       string
	args     ir.IRArray
	kwargs   ir.IRObject
	freeVars ir.IRObject
	globals  ir.IRObject
	origins  origin.Set
	usage    ir.Usage
}

// Call runs the unit and records the invocation.
//
// Errors from the body are returned unchanged. Tracking failures are logged
// and swallowed unless tracking is required, in which case a *TrackingError
// is returned together with the body's output.
func (l *LMP[In, Out]) Call(ctx context.Context, in In) (Out, error) {
	var zero Out
	if l == nil || l.u == nil {
		return zero, ErrNotTracked
	}
	r, u := l.r, l.u
	opts := CallOptionsFrom(ctx)

	ctx, span := r.tracer.Start(ctx, SpanInvoke, trace.WithAttributes(AttrLMPName.String(u.name)))
	defer span.End()

	version, err := r.ensureVersion(ctx, u, newRegistration())
	tracked := err == nil
	if err != nil {
		var aerr *closure.AnalysisError
		if errors.As(err, &aerr) {
			span.SetStatus(codes.Error, err.Error())
			return zero, err
		}
		if terr := r.trackingFailure(ctx, u, "register", opts.Required, err); terr != nil {
			span.SetStatus(codes.Error, terr.Error())
			return zero, terr
		}
	}

	st := &callState{id: r.ids.Generate(), origins: origin.NewSet()}
	span.SetAttributes(AttrInvocationID.String(st.id))
	if tracked {
		span.SetAttributes(AttrLMPID.String(version.ID))
	}
	l.captureInputs(ctx, in, st)

	var cacheKey string
	if tracked {
		cacheKey, err = ir.StateCacheKey(version.ID, st.args, st.kwargs, st.freeVars, st.globals)
		if err != nil {
			return zero, fmt.Errorf("state cache key of %s: %w", u.name, err)
		}
		if opts.UseCache {
			if out, ok := l.fromCache(ctx, cacheKey); ok {
				span.SetAttributes(AttrCached.Bool(true))
				r.metrics.recordCall(ctx, u.name, 0, false, true)
				return out, nil
			}
		}
	}

	start := r.clock.Now()
	out, bodyErr := l.run(ctx, in, opts, st)
	latency := r.clock.Now().Sub(start)
	r.metrics.recordCall(ctx, u.name, latency, bodyErr != nil, false)

	if bodyErr != nil {
		span.RecordError(bodyErr)
		span.SetStatus(codes.Error, bodyErr.Error())
		if tracked && r.recordFailures {
			inv := l.invocation(version.ID, cacheKey, st, ir.IRNull{}, start, latency)
			inv.Error = bodyErr.Error()
			if err := l.write(ctx, inv, opts); err != nil {
				return zero, errors.Join(bodyErr, err)
			}
		}
		return zero, bodyErr
	}

	result, outOrigins := r.canon.Canonicalize(ctx, out)
	st.origins.Union(outOrigins)
	out = tagOutput(out, st.id)

	if !tracked {
		return out, nil
	}
	inv := l.invocation(version.ID, cacheKey, st, result, start, latency)
	if err := l.write(ctx, inv, opts); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	return out, nil
}

// captureInputs canonicalizes the input and snapshots captured variables.
// Struct and map inputs become kwargs; anything else is the single
// positional argument.
func (l *LMP[In, Out]) captureInputs(ctx context.Context, in In, st *callState) {
	c := l.r.canon
	value, inOrigins := c.Canonicalize(ctx, in)
	st.origins.Union(inOrigins)
	if obj, ok := value.(ir.IRObject); ok && keywordInput(in) {
		st.args, st.kwargs = ir.IRArray{}, obj
	} else {
		st.args, st.kwargs = ir.IRArray{value}, ir.IRObject{}
	}

	var varOrigins origin.Set
	st.freeVars, varOrigins = c.Object(ctx, l.u.freeVars)
	st.origins.Union(varOrigins)
	st.globals, varOrigins = c.Object(ctx, l.u.globals)
	st.origins.Union(varOrigins)
}

// keywordInput reports whether in is a struct or map, possibly behind
// pointers. Other values that canonicalize to objects, like blob
// references, stay positional.
func keywordInput(in any) bool {
	v := reflect.ValueOf(in)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Struct, reflect.Map:
		if v.Type() == blobType {
			return false
		}
		return !v.Type().Implements(textMarshalerType) && !reflect.PointerTo(v.Type()).Implements(textMarshalerType)
	}
	return false
}

var (
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
	blobType          = reflect.TypeFor[canon.Blob]()
)

// run executes the body, or for prompt units builds the messages and calls
// the model client.
func (l *LMP[In, Out]) run(ctx context.Context, in In, opts CallOptions, st *callState) (Out, error) {
	if l.prompt == nil {
		return l.body(ctx, in)
	}

	var zero Out
	msgs, err := l.prompt(ctx, in)
	if err != nil {
		return zero, err
	}
	for _, m := range msgs {
		st.origins.Union(m.Content.OriginSet())
	}

	r, u := l.r, l.u
	model := r.modelOf(u)
	client, err := r.clientFor(opts, u, model)
	if err != nil {
		return zero, err
	}

	params, _ := r.canon.Object(ctx, u.params)
	callParams, _ := r.canon.Object(ctx, opts.Params)
	for k, v := range callParams {
		params[k] = v
	}

	resp, err := client.Complete(ctx, ModelRequest{Model: model, Messages: msgs, Params: params})
	if err != nil {
		return zero, fmt.Errorf("%s: model call: %w", u.name, err)
	}
	st.usage = resp.Usage

	out, ok := any(origin.Plain(resp.Text)).(Out)
	if !ok {
		return zero, fmt.Errorf("%s: prompt output type %T", u.name, zero)
	}
	return out, nil
}

// fromCache returns the output of an earlier successful invocation with the
// same state cache key, tagged with that invocation's id.
func (l *LMP[In, Out]) fromCache(ctx context.Context, key string) (Out, bool) {
	var out Out
	prior, err := l.r.backend.FindByStateCacheKey(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.r.logger.Warn("cache lookup failed", "lmp_name", l.u.name, "error", err)
		}
		return out, false
	}

	data, err := json.Marshal(ir.ToInterface(prior.Result))
	if err == nil {
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		l.r.logger.Debug("cached result not decodable", "lmp_name", l.u.name, "invocation_id", prior.ID, "error", err)
		var zero Out
		return zero, false
	}
	l.r.logger.Debug("cache hit", "lmp_name", l.u.name, "invocation_id", prior.ID)
	return tagOutput(out, prior.ID), true
}

func (l *LMP[In, Out]) invocation(lmpID, cacheKey string, st *callState, result ir.IRValue, start time.Time, latency time.Duration) ir.Invocation {
	consumes := make([]string, 0, len(st.origins))
	for _, id := range st.origins.Sorted() {
		if id != st.id {
			consumes = append(consumes, id)
		}
	}
	return ir.Invocation{
		ID:            st.id,
		LMPID:         lmpID,
		Args:          st.args,
		Kwargs:        st.kwargs,
		FreeVars:      st.freeVars,
		GlobalVars:    st.globals,
		Result:        result,
		Latency:       latency,
		Usage:         st.usage,
		StateCacheKey: cacheKey,
		CreatedAt:     start,
		Consumes:      consumes,
	}
}

// write stores inv and announces it.
func (l *LMP[In, Out]) write(ctx context.Context, inv ir.Invocation, opts CallOptions) error {
	r := l.r
	if err := r.backend.WriteInvocation(ctx, inv); err != nil {
		return r.trackingFailure(ctx, l.u, "record", opts.Required, err)
	}
	r.logger.Debug("invocation recorded",
		"lmp_name", l.u.name,
		"lmp_id", inv.LMPID,
		"invocation_id", inv.ID,
		"consumes", len(inv.Consumes),
	)
	r.publish(eventbus.TopicInvocation, eventbus.InvocationEvent{
		InvocationID: inv.ID,
		LMPID:        inv.LMPID,
		Failed:       inv.Failed(),
	})
	return nil
}
