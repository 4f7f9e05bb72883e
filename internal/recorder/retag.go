package recorder

import (
	"reflect"

	"github.com/roach88/provenant/internal/origin"
)

// maxTagDepth bounds the walk over an output value.
const maxTagDepth = 32

var originStringType = reflect.TypeFor[origin.String]()

// tagOutput returns out with every reachable origin.String retagged with id.
// Slices and maps are copied before they are changed so the body's own
// values are left alone; pointers are not followed.
func tagOutput[Out any](out Out, id string) Out {
	v := reflect.ValueOf(&out).Elem()
	retag(v, id, 0)
	return out
}

func retag(v reflect.Value, id string, depth int) {
	if depth > maxTagDepth || !v.IsValid() {
		return
	}
	if v.Type() == originStringType {
		if v.CanSet() && v.CanInterface() {
			v.Set(reflect.ValueOf(origin.Retag(v.Interface().(origin.String), id)))
		}
		return
	}
	if !containsOriginString(v.Type(), 0) {
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() || !v.CanSet() {
			return
		}
		inner := reflect.New(v.Elem().Type()).Elem()
		inner.Set(v.Elem())
		retag(inner, id, depth+1)
		v.Set(inner)

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				retag(f, id, depth+1)
			}
		}

	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			retag(v.Index(i), id, depth+1)
		}

	case reflect.Slice:
		if v.IsNil() || !v.CanSet() {
			return
		}
		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(cp, v)
		for i := 0; i < cp.Len(); i++ {
			retag(cp.Index(i), id, depth+1)
		}
		v.Set(cp)

	case reflect.Map:
		if v.IsNil() || !v.CanSet() {
			return
		}
		cp := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem := reflect.New(v.Type().Elem()).Elem()
			elem.Set(iter.Value())
			retag(elem, id, depth+1)
			cp.SetMapIndex(iter.Key(), elem)
		}
		v.Set(cp)
	}
}

// containsOriginString reports whether values of t can hold an
// origin.String outside of a pointer.
func containsOriginString(t reflect.Type, depth int) bool {
	if depth > maxTagDepth {
		return false
	}
	if t == originStringType {
		return true
	}
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Array, reflect.Slice:
		return containsOriginString(t.Elem(), depth+1)
	case reflect.Map:
		return containsOriginString(t.Elem(), depth+1)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if f := t.Field(i); f.IsExported() && containsOriginString(f.Type, depth+1) {
				return true
			}
		}
	}
	return false
}
