package canon

import (
	"context"
	"encoding"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/origin"
)

// DefaultMaxDepth bounds pointer and container nesting.
const DefaultMaxDepth = 64

// BlobKey is the reserved object key marking a blob reference.
const BlobKey = "$blob"

// BlobPutter persists binary payloads by content address.
// Implemented by blob.Store.
type BlobPutter interface {
	Put(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Blob is a binary payload with an explicit MIME type.
// Plain []byte values are sniffed instead.
type Blob struct {
	Data     []byte
	MimeType string
}

// Canonicalizer converts Go values to IR values.
// Safe for concurrent use.
type Canonicalizer struct {
	blobs    BlobPutter
	logger   *slog.Logger
	maxDepth int
}

// Option configures a Canonicalizer.
type Option func(*Canonicalizer)

// WithBlobs stores binary payloads in b as they are canonicalized.
func WithBlobs(b BlobPutter) Option {
	return func(c *Canonicalizer) {
		c.blobs = b
	}
}

// WithLogger sets the logger used for placeholder and blob diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Canonicalizer) {
		c.logger = l
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(c *Canonicalizer) {
		c.maxDepth = depth
	}
}

// New creates a Canonicalizer.
func New(opts ...Option) *Canonicalizer {
	c := &Canonicalizer{
		logger:   slog.Default(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Canonicalize converts v and returns the union of origins found inside it.
// The returned set is never nil.
func (c *Canonicalizer) Canonicalize(ctx context.Context, v any) (ir.IRValue, origin.Set) {
	set := origin.Set{}
	if v == nil {
		return ir.IRNull{}, set
	}
	return c.value(ctx, reflect.ValueOf(v), 0, set), set
}

// Object is Canonicalize for a named set of values, such as captured
// variables. Keys are kept as given.
func (c *Canonicalizer) Object(ctx context.Context, vars map[string]any) (ir.IRObject, origin.Set) {
	set := origin.Set{}
	out := make(ir.IRObject, len(vars))
	for name, v := range vars {
		if v == nil {
			out[name] = ir.IRNull{}
			continue
		}
		out[name] = c.value(ctx, reflect.ValueOf(v), 0, set)
	}
	return out, set
}

var (
	marshalerType   = reflect.TypeFor[json.Marshaler]()
	textMarshalType = reflect.TypeFor[encoding.TextMarshaler]()
)

func (c *Canonicalizer) value(ctx context.Context, v reflect.Value, depth int, set origin.Set) ir.IRValue {
	if !v.IsValid() {
		return ir.IRNull{}
	}
	if depth > c.maxDepth {
		return c.placeholder(v.Type(), "depth limit exceeded")
	}

	if out, ok := c.special(ctx, v, set); ok {
		return out
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return ir.IRNull{}
		}
		return c.value(ctx, v.Elem(), depth+1, set)

	case reflect.Bool:
		return ir.IRBool(v.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ir.IRInt(v.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return ir.IRString(strconv.FormatUint(u, 10))
		}
		return ir.IRInt(int64(u))

	case reflect.Float32:
		// Re-parse the shortest float32 form so 0.1f stays 0.1 after widening.
		f, _ := strconv.ParseFloat(strconv.FormatFloat(v.Float(), 'g', -1, 32), 64)
		return floatValue(f)

	case reflect.Float64:
		return floatValue(v.Float())

	case reflect.String:
		return ir.IRString(v.String())

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return c.blob(ctx, v.Bytes(), "")
		}
		return c.array(ctx, v, depth, set)

	case reflect.Array:
		return c.array(ctx, v, depth, set)

	case reflect.Map:
		if isSetType(v.Type()) {
			return c.setValue(ctx, v, depth, set)
		}
		return c.mapValue(ctx, v, depth, set)

	case reflect.Struct:
		return c.structValue(ctx, v, depth, set)

	default:
		// Func, Chan, Complex, UnsafePointer
		return c.placeholder(v.Type(), "no canonical form")
	}
}

// special handles types with a fixed rendering regardless of kind.
// Pointers and interfaces are dereferenced by the caller first.
func (c *Canonicalizer) special(ctx context.Context, v reflect.Value, set origin.Set) (ir.IRValue, bool) {
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface || !v.CanInterface() {
		return nil, false
	}

	switch val := v.Interface().(type) {
	case ir.IRValue:
		return c.sanitize(val), true
	case origin.String:
		set.Union(val.OriginSet())
		return ir.IRString(val.Text()), true
	case Blob:
		return c.blob(ctx, val.Data, val.MimeType), true
	case time.Time:
		return ir.IRString(val.UTC().Format(time.RFC3339Nano)), true
	}

	if m, ok := asInterface[json.Marshaler](v, marshalerType); ok {
		data, err := m.MarshalJSON()
		if err != nil {
			return c.placeholder(v.Type(), err.Error()), true
		}
		out, err := ir.UnmarshalIRValue(data)
		if err != nil {
			return c.placeholder(v.Type(), err.Error()), true
		}
		return c.sanitize(out), true
	}

	if m, ok := asInterface[encoding.TextMarshaler](v, textMarshalType); ok {
		data, err := m.MarshalText()
		if err != nil {
			return c.placeholder(v.Type(), err.Error()), true
		}
		return ir.IRString(data), true
	}

	return nil, false
}

// asInterface finds an implementation of I on v or, when addressable, on &v.
func asInterface[I any](v reflect.Value, it reflect.Type) (I, bool) {
	var zero I
	if v.Type().Implements(it) {
		m, ok := v.Interface().(I)
		return m, ok
	}
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(it) {
		m, ok := v.Addr().Interface().(I)
		return m, ok
	}
	return zero, false
}

func (c *Canonicalizer) array(ctx context.Context, v reflect.Value, depth int, set origin.Set) ir.IRValue {
	out := make(ir.IRArray, v.Len())
	for i := range v.Len() {
		out[i] = c.value(ctx, v.Index(i), depth+1, set)
	}
	return out
}

func (c *Canonicalizer) mapValue(ctx context.Context, v reflect.Value, depth int, set origin.Set) ir.IRValue {
	out := make(ir.IRObject, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key := c.keyString(ctx, iter.Key(), depth, set)
		out[key] = c.value(ctx, iter.Value(), depth+1, set)
	}
	return out
}

// setValue renders map[K]struct{} as an array sorted by canonical JSON text.
func (c *Canonicalizer) setValue(ctx context.Context, v reflect.Value, depth int, set origin.Set) ir.IRValue {
	type member struct {
		key string
		val ir.IRValue
	}
	members := make([]member, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		val := c.value(ctx, iter.Key(), depth+1, set)
		members = append(members, member{key: canonicalText(val), val: val})
	}
	slices.SortFunc(members, func(a, b member) int {
		return strings.Compare(a.key, b.key)
	})

	out := make(ir.IRArray, len(members))
	for i, m := range members {
		out[i] = m.val
	}
	return out
}

// keyString renders a map key. Keys of a string type stay as they are, and
// other keys that render as text use that text. Keys of an interface type
// always use their canonical JSON, so 1 and "1" stay distinct.
func (c *Canonicalizer) keyString(ctx context.Context, k reflect.Value, depth int, set origin.Set) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	val := c.value(ctx, k, depth+1, set)
	if s, ok := val.(ir.IRString); ok && k.Kind() != reflect.Interface {
		return string(s)
	}
	return canonicalText(val)
}

func (c *Canonicalizer) structValue(ctx context.Context, v reflect.Value, depth int, set origin.Set) ir.IRValue {
	out := ir.IRObject{}
	c.structFields(ctx, v, depth, set, out)
	return out
}

// structFields follows encoding/json naming: exported fields, json tag names,
// "-" skipped, untagged embedded structs flattened.
func (c *Canonicalizer) structFields(ctx context.Context, v reflect.Value, depth int, set origin.Set, out ir.IRObject) {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			c.structFields(ctx, v.Field(i), depth+1, set, out)
			continue
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		out[name] = c.value(ctx, v.Field(i), depth+1, set)
	}
}

// blob replaces a binary payload with its content address.
func (c *Canonicalizer) blob(ctx context.Context, data []byte, mimeType string) ir.IRValue {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	id := ir.BlobID(data)
	if c.blobs != nil {
		if _, err := c.blobs.Put(ctx, data, mimeType); err != nil {
			c.logger.Warn("blob store put failed",
				"blob_id", id,
				"error", err,
			)
		}
	}
	return ir.IRObject{
		BlobKey:     ir.IRString(id),
		"mime_type": ir.IRString(mimeType),
		"size":      ir.IRInt(len(data)),
	}
}

// sanitize replaces non-finite floats inside an already-built IR value.
func (c *Canonicalizer) sanitize(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}
	case ir.IRFloat:
		return floatValue(float64(val))
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, elem := range val {
			out[i] = c.sanitize(elem)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, elem := range val {
			out[k] = c.sanitize(elem)
		}
		return out
	default:
		return v
	}
}

func (c *Canonicalizer) placeholder(t reflect.Type, reason string) ir.IRValue {
	c.logger.Debug("value replaced by placeholder",
		"type", t.String(),
		"reason", reason,
	)
	return ir.IRString(Placeholder(t))
}

// Placeholder returns the string recorded in place of a value of type t.
func Placeholder(t reflect.Type) string {
	return fmt.Sprintf("<unserializable:%s>", t)
}

func floatValue(f float64) ir.IRValue {
	switch {
	case math.IsNaN(f):
		return ir.IRString("NaN")
	case math.IsInf(f, 1):
		return ir.IRString("+Inf")
	case math.IsInf(f, -1):
		return ir.IRString("-Inf")
	}
	return ir.IRFloat(f)
}

func isSetType(t reflect.Type) bool {
	elem := t.Elem()
	return elem.Kind() == reflect.Struct && elem.NumField() == 0
}

func canonicalText(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
