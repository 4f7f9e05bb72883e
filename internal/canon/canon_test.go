package canon

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/origin"
)

type inner struct {
	Ratio float32 `json:"ratio"`
	Big   uint64
}

type profile struct {
	Name     string              `json:"name"`
	Age      int                 `json:"age"`
	Score    float64             `json:"score"`
	Tags     map[string]struct{} `json:"tags"`
	Meta     map[int]string      `json:"meta"`
	Secret   string              `json:"-"`
	Joined   time.Time           `json:"joined"`
	Avatar   []byte              `json:"avatar"`
	Callback func()              `json:"callback"`
	Nested   *inner              `json:"nested"`
	Missing  *inner              `json:"missing"`
	hidden   int
}

type recordingBlobs struct {
	mu   sync.Mutex
	puts map[string]string
	err  error
}

func (r *recordingBlobs) Put(_ context.Context, data []byte, mimeType string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	if r.puts == nil {
		r.puts = map[string]string{}
	}
	id := ir.BlobID(data)
	r.puts[id] = mimeType
	return id, nil
}

func canonicalJSON(t *testing.T, v ir.IRValue) string {
	t.Helper()
	data, err := ir.MarshalCanonical(v)
	require.NoError(t, err)
	return string(data)
}

func TestCanonicalizeGolden(t *testing.T) {
	blobs := &recordingBlobs{}
	c := New(WithBlobs(blobs))

	p := profile{
		Name:     "Ada",
		Age:      36,
		Score:    0.5,
		Tags:     map[string]struct{}{"b": {}, "a": {}},
		Meta:     map[int]string{2: "two", 10: "ten"},
		Secret:   "never recorded",
		Joined:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Avatar:   []byte("GIF89a"),
		Callback: func() {},
		Nested:   &inner{Ratio: 0.1, Big: math.MaxUint64},
		hidden:   7,
	}

	v, origins := c.Canonicalize(context.Background(), p)
	assert.Empty(t, origins.Sorted())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "profile", []byte(canonicalJSON(t, v)))

	assert.Equal(t, "image/gif", blobs.puts[ir.BlobID([]byte("GIF89a"))])
}

func TestCanonicalizeMapOrderIndependent(t *testing.T) {
	c := New()

	a := map[string]any{}
	a["x"] = 1
	a["y"] = []any{"p", map[string]int{"k": 1, "j": 2}}

	b := map[string]any{}
	b["y"] = []any{"p", map[string]int{"j": 2, "k": 1}}
	b["x"] = 1

	va, _ := c.Canonicalize(context.Background(), a)
	vb, _ := c.Canonicalize(context.Background(), b)
	assert.Equal(t, canonicalJSON(t, va), canonicalJSON(t, vb))
}

func TestCanonicalizeMixedKeyTypesStayDistinct(t *testing.T) {
	c := New()

	v, _ := c.Canonicalize(context.Background(), map[any]int{1: 10, "1": 20})
	assert.Equal(t, ir.IRObject{"1": ir.IRInt(10), `"1"`: ir.IRInt(20)}, v)
}

func TestCanonicalizeDistinctStringsGiveDistinctKeys(t *testing.T) {
	c := New()
	ctx := context.Background()

	cacheKey := func(s string) string {
		v, _ := c.Canonicalize(ctx, s)
		key, err := ir.StateCacheKey("lmp", ir.IRArray{v}, nil, nil, nil)
		require.NoError(t, err)
		return key
	}

	assert.NotEqual(t, cacheKey("caf\u00e9"), cacheKey("cafe\u0301"), "Unicode forms")
	assert.NotEqual(t, cacheKey("\xff"), cacheKey("\xfe"), "invalid UTF-8")
	assert.NotEqual(t, cacheKey("\xff"), cacheKey("\uFFFD"), "invalid UTF-8 vs replacement char")
}

func TestCanonicalizeSetsSorted(t *testing.T) {
	c := New()

	v, _ := c.Canonicalize(context.Background(), map[int]struct{}{3: {}, 1: {}, 2: {}})
	assert.Equal(t, ir.IRArray{ir.IRInt(1), ir.IRInt(2), ir.IRInt(3)}, v)
}

func TestCanonicalizePrimitives(t *testing.T) {
	c := New()
	ctx := context.Background()

	tests := []struct {
		name     string
		input    any
		expected ir.IRValue
	}{
		{"nil", nil, ir.IRNull{}},
		{"string", "hi", ir.IRString("hi")},
		{"int", 5, ir.IRInt(5)},
		{"uint8", uint8(7), ir.IRInt(7)},
		{"float", 1.5, ir.IRFloat(1.5)},
		{"bool", true, ir.IRBool(true)},
		{"nan", math.NaN(), ir.IRString("NaN")},
		{"inf", math.Inf(1), ir.IRString("+Inf")},
		{"neg inf", math.Inf(-1), ir.IRString("-Inf")},
		{"nil slice", []string(nil), ir.IRArray{}},
		{"nil pointer", (*inner)(nil), ir.IRNull{}},
		{"ir passthrough", ir.IRObject{"a": ir.IRInt(1)}, ir.IRObject{"a": ir.IRInt(1)}},
		{"duration", 2 * time.Second, ir.IRInt(2000000000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := c.Canonicalize(ctx, tt.input)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestCanonicalizeUnserializable(t *testing.T) {
	c := New()

	v, _ := c.Canonicalize(context.Background(), map[string]any{
		"ch": make(chan int),
		"z":  complex(1, 2),
	})
	obj := v.(ir.IRObject)
	assert.Equal(t, ir.IRString("<unserializable:chan int>"), obj["ch"])
	assert.Equal(t, ir.IRString("<unserializable:complex128>"), obj["z"])
}

type node struct {
	Next *node `json:"next"`
}

func TestCanonicalizeCycleTerminates(t *testing.T) {
	c := New(WithMaxDepth(8))

	n := &node{}
	n.Next = n

	v, _ := c.Canonicalize(context.Background(), n)
	assert.Contains(t, canonicalJSON(t, v), "<unserializable:")
}

type upper string

func (u upper) MarshalJSON() ([]byte, error) {
	return []byte(`{"value":"` + string(u) + `"}`), nil
}

func TestCanonicalizeHonorsJSONMarshaler(t *testing.T) {
	c := New()

	v, _ := c.Canonicalize(context.Background(), upper("X"))
	assert.Equal(t, ir.IRObject{"value": ir.IRString("X")}, v)
}

func TestCanonicalizeCollectsOrigins(t *testing.T) {
	c := New()

	type request struct {
		Question origin.String   `json:"question"`
		Context  []origin.String `json:"context"`
		Hint     *origin.String  `json:"hint"`
	}
	hint := origin.Tag("be brief", "inv-3")

	v, origins := c.Canonicalize(context.Background(), request{
		Question: origin.Tag("why?", "inv-1"),
		Context:  []origin.String{origin.Plain("lit"), origin.Tag("doc", "inv-2", "inv-1")},
		Hint:     &hint,
	})

	assert.Equal(t, []string{"inv-1", "inv-2", "inv-3"}, origins.Sorted())
	assert.Equal(t, ir.IRObject{
		"question": ir.IRString("why?"),
		"context":  ir.IRArray{ir.IRString("lit"), ir.IRString("doc")},
		"hint":     ir.IRString("be brief"),
	}, v)
}

func TestCanonicalizeBlobPutFailureStillReferences(t *testing.T) {
	c := New(WithBlobs(&recordingBlobs{err: errors.New("disk full")}))

	v, _ := c.Canonicalize(context.Background(), Blob{Data: []byte{1, 2, 3}, MimeType: "application/x-test"})
	obj := v.(ir.IRObject)
	assert.Equal(t, ir.IRString(ir.BlobID([]byte{1, 2, 3})), obj[BlobKey])
	assert.Equal(t, ir.IRString("application/x-test"), obj["mime_type"])
	assert.Equal(t, ir.IRInt(3), obj["size"])
}

func TestObjectSnapshot(t *testing.T) {
	c := New()
	temperature := 0.7

	obj, origins := c.Object(context.Background(), map[string]any{
		"temperature": &temperature,
		"prefix":      origin.Tag("Hello", "inv-8"),
		"unset":       nil,
	})

	assert.Equal(t, ir.IRObject{
		"temperature": ir.IRFloat(0.7),
		"prefix":      ir.IRString("Hello"),
		"unset":       ir.IRNull{},
	}, obj)
	assert.Equal(t, []string{"inv-8"}, origins.Sorted())
}
