package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(4.2)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysCaseOrder(t *testing.T) {
	obj := IRObject{"a": IRInt(1), "A": IRInt(2), "aa": IRInt(3), "AA": IRInt(4)}

	assert.Equal(t, []string{"A", "AA", "a", "aa"}, obj.SortedKeys())
}

func TestUnmarshalIRValueNumbers(t *testing.T) {
	tests := []struct {
		input    string
		expected IRValue
	}{
		{"5", IRInt(5)},
		{"-12", IRInt(-12)},
		{"5.0", IRFloat(5)},
		{"1e3", IRFloat(1000)},
		{"0.125", IRFloat(0.125)},
		{"null", IRNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := UnmarshalIRValue([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	obj := IRObject{
		"name":  IRString("Ada"),
		"score": IRFloat(0.75),
		"tags":  IRArray{IRString("x")},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ada","score":0.75,"tags":["x"]}`, string(data))

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, obj, decoded)
}

func TestToInterface(t *testing.T) {
	v := IRObject{
		"a": IRArray{IRInt(1), IRFloat(2.5)},
		"b": IRNull{},
	}

	plain := ToInterface(v)
	assert.Equal(t, map[string]any{
		"a": []any{int64(1), 2.5},
		"b": nil,
	}, plain)
}

func TestLMPJSONFieldNaming(t *testing.T) {
	data, err := json.Marshal(LMP{ID: "x", Name: "greet", IsLM: true})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"lmp_id"`)
	assert.Contains(t, string(data), `"is_lm"`)
	assert.Contains(t, string(data), `"global_vars"`)
	assert.NotContains(t, string(data), `"IsLM"`)
}

func TestUsageTotal(t *testing.T) {
	assert.Equal(t, int64(15), Usage{PromptTokens: 10, CompletionTokens: 5}.Total())
}
