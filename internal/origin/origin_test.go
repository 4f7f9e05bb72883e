package origin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainHasEmptyNonNilOrigins(t *testing.T) {
	s := Plain("hello")

	assert.Equal(t, "hello", s.Text())
	assert.NotNil(t, s.Origins())
	assert.Empty(t, s.Origins())
}

func TestZeroValueOrigins(t *testing.T) {
	var s String
	assert.NotNil(t, s.Origins())
	assert.Empty(t, s.Origins())
}

func TestTagSortsAndDeduplicates(t *testing.T) {
	s := Tag("x", "b", "a", "b", "")
	assert.Equal(t, []string{"a", "b"}, s.Origins())
}

func TestConcatUnionsOrigins(t *testing.T) {
	a := Tag("Hello, ", "inv-2")
	b := Plain("dear ")
	c := Tag("Ada", "inv-1", "inv-2")

	out := Concat(a, b, c)
	assert.Equal(t, "Hello, dear Ada", out.Text())
	assert.Equal(t, []string{"inv-1", "inv-2"}, out.Origins())
}

func TestJoinUnionsOrigins(t *testing.T) {
	out := Join([]String{Tag("a", "x"), Tag("b", "y"), Plain("c")}, ", ")
	assert.Equal(t, "a, b, c", out.Text())
	assert.Equal(t, []string{"x", "y"}, out.Origins())
}

func TestSprintfUnionsOrigins(t *testing.T) {
	name := Tag("Ada", "inv-1")
	ptr := Tag("Lovelace", "inv-3")

	out := Sprintf("%s %s is %d", name, &ptr, 36)
	assert.Equal(t, "Ada Lovelace is 36", out.Text())
	assert.Equal(t, []string{"inv-1", "inv-3"}, out.Origins())
}

func TestSlicePassesOriginsThrough(t *testing.T) {
	s := Tag("Hello world", "inv-9")

	out := s.Slice(0, 5)
	assert.Equal(t, "Hello", out.Text())
	assert.Equal(t, []string{"inv-9"}, out.Origins())
}

func TestRetagReplacesOrigins(t *testing.T) {
	s := Tag("text", "a", "b")

	out := Retag(s, "c")
	assert.Equal(t, "text", out.Text())
	assert.Equal(t, []string{"c"}, out.Origins())
}

func TestOriginsReturnsCopy(t *testing.T) {
	s := Tag("text", "a")
	got := s.Origins()
	got[0] = "mutated"

	assert.Equal(t, []string{"a"}, s.Origins())
}

func TestSetOperations(t *testing.T) {
	s := NewSet("b", "a")
	s.Union(NewSet("c", "a"))
	s.Add("")

	assert.True(t, s.Has("c"))
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b", "c"}, s.Sorted())
	assert.Equal(t, []string{}, Set{}.Sorted())
}

func TestStringJSONCarriesTextOnly(t *testing.T) {
	data, err := json.Marshal(map[string]String{"greeting": Tag("hi", "inv-1")})
	require.NoError(t, err)
	assert.Equal(t, `{"greeting":"hi"}`, string(data))

	var decoded map[string]String
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "hi", decoded["greeting"].Text())
	assert.Empty(t, decoded["greeting"].Origins())
}
