package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/provenant/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT. Nil is "{}".
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalArray converts an IRArray to canonical JSON TEXT. Nil is "[]".
func marshalArray(arr ir.IRArray) (string, error) {
	if arr == nil {
		return "[]", nil
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalValue converts any IRValue to canonical JSON TEXT. Nil is "null".
func marshalValue(v ir.IRValue) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	data, err := json.Marshal(ss)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT into an IRObject.
// Uses ir.IRObject.UnmarshalJSON which keeps integers and floats distinct.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

func unmarshalArray(data string) (ir.IRArray, error) {
	if data == "" || data == "[]" {
		return ir.IRArray{}, nil
	}
	var arr ir.IRArray
	if err := json.Unmarshal([]byte(data), &arr); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return arr, nil
}

func unmarshalValue(data string) (ir.IRValue, error) {
	if data == "" {
		return ir.IRNull{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

func unmarshalStrings(data string) ([]string, error) {
	out := []string{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return out, nil
}

// nanos stores t as Unix nanoseconds, substituting now for the zero time.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
