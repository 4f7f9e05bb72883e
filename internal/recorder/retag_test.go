package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/provenant/internal/origin"
)

type tagged struct {
	Answer origin.String
	Notes  []origin.String
	ByKey  map[string]origin.String
	Count  int
	hidden origin.String
}

func TestTagOutputString(t *testing.T) {
	out := tagOutput(origin.Tag("hi", "a", "b"), "inv")
	assert.Equal(t, "hi", out.Text())
	assert.Equal(t, []string{"inv"}, out.Origins())
}

func TestTagOutputStructCopiesContainers(t *testing.T) {
	notes := []origin.String{origin.Plain("n1")}
	byKey := map[string]origin.String{"k": origin.Tag("v", "old")}
	in := tagged{
		Answer: origin.Plain("yes"),
		Notes:  notes,
		ByKey:  byKey,
		Count:  3,
		hidden: origin.Tag("secret", "old"),
	}

	out := tagOutput(in, "inv")
	assert.Equal(t, []string{"inv"}, out.Answer.Origins())
	assert.Equal(t, []string{"inv"}, out.Notes[0].Origins())
	assert.Equal(t, []string{"inv"}, out.ByKey["k"].Origins())
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, []string{"old"}, out.hidden.Origins(), "unexported fields are left alone")

	assert.Empty(t, notes[0].Origins(), "the body's slice is not modified")
	assert.Equal(t, []string{"old"}, byKey["k"].Origins(), "the body's map is not modified")
}

func TestTagOutputInterface(t *testing.T) {
	var out any = []origin.String{origin.Plain("a"), origin.Plain("b")}
	out = tagOutput(out, "inv")

	got, ok := out.([]origin.String)
	assert.True(t, ok)
	for _, s := range got {
		assert.Equal(t, []string{"inv"}, s.Origins())
	}
}

func TestTagOutputIgnoresPointersAndPlainValues(t *testing.T) {
	s := origin.Plain("p")
	ptr := tagOutput(&s, "inv")
	assert.Empty(t, ptr.Origins())

	assert.Equal(t, 7, tagOutput(7, "inv"))
	assert.Equal(t, "x", tagOutput("x", "inv"))
}

func TestKeywordInput(t *testing.T) {
	type args struct{ Name string }
	name := args{Name: "Ada"}

	assert.True(t, keywordInput(name))
	assert.True(t, keywordInput(&name))
	assert.True(t, keywordInput(map[string]int{"n": 1}))
	assert.False(t, keywordInput("Ada"))
	assert.False(t, keywordInput([]byte("Ada")))
	assert.False(t, keywordInput((*args)(nil)))
	assert.False(t, keywordInput(nil))
	assert.False(t, keywordInput(origin.Plain("Ada")))
}
