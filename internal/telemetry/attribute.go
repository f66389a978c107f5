package telemetry

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/constraints"
)

// Attr is a telemetry attribute.
type Attr struct {
	typ attrType
	key string
	str string
	num uint64
}

// String returns a string attribute.
func String[T ~string](k string, v T) Attr {
	return Attr{
		typ: attrTypeString,
		key: k,
		str: string(v),
	}
}

// Stringer returns a string attribute. The value is the result of calling
// v.String().
func Stringer(k string, v fmt.Stringer) Attr {
	return String(k, v.String())
}

// Type returns a string attribute set to the name of T.
func Type[T any](k string, v T) Attr {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return String(k, t.String())
}

// Bool returns a boolean attribute.
func Bool[T ~bool](k string, v T) Attr {
	var n uint64
	if v {
		n = 1
	}

	return Attr{
		typ: attrTypeBool,
		key: k,
		num: n,
	}
}

// Int returns an int64 attribute.
func Int[T constraints.Integer](k string, v T) Attr {
	return Attr{
		typ: attrTypeInt64,
		key: k,
		num: uint64(v),
	}
}

// Float returns a float64 attribute.
func Float[T constraints.Float](k string, v T) Attr {
	return Attr{
		typ: attrTypeFloat64,
		key: k,
		num: math.Float64bits(float64(v)),
	}
}

// If returns attr if cond is true, otherwise it returns an empty attribute that
// is ignored.
func If(cond bool, attr Attr) Attr {
	if cond {
		return attr
	}
	return Attr{}
}

func (a Attr) asAttrKeyValue(ns string) (attribute.KeyValue, bool) {
	k := ns + "." + a.key

	switch a.typ {
	case attrTypeNone:
		return attribute.KeyValue{}, false
	case attrTypeString:
		return attribute.String(k, a.str), true
	case attrTypeBool:
		return attribute.Bool(k, a.num != 0), true
	case attrTypeInt64:
		return attribute.Int64(k, int64(a.num)), true
	case attrTypeFloat64:
		return attribute.Float64(k, math.Float64frombits(a.num)), true
	default:
		panic("unknown attribute type")
	}
}

func (a Attr) asSlogAttr() (slog.Attr, bool) {
	switch a.typ {
	case attrTypeNone:
		return slog.Attr{}, false
	case attrTypeString:
		return slog.String(a.key, a.str), true
	case attrTypeBool:
		return slog.Bool(a.key, a.num != 0), true
	case attrTypeInt64:
		return slog.Int64(a.key, int64(a.num)), true
	case attrTypeFloat64:
		return slog.Float64(a.key, math.Float64frombits(a.num)), true
	default:
		panic("unknown attribute type")
	}
}

type attrType uint8

const (
	attrTypeNone attrType = iota
	attrTypeString
	attrTypeBool
	attrTypeInt64
	attrTypeFloat64
)

// attrSet is a set of attributes that belong to a specific namespace.
type attrSet struct {
	Namespace string
	Attrs     []Attr
}

// ForSpan returns the attributes in the form expected by OpenTelemetry
// tracing, with each key qualified by the namespace.
func (s attrSet) ForSpan() []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(s.Attrs))

	for _, attr := range s.Attrs {
		if kv, ok := attr.asAttrKeyValue(s.Namespace); ok {
			kvs = append(kvs, kv)
		}
	}

	return kvs
}

// ForLogger returns the attributes grouped under the namespace, in the form
// expected by [slog.Logger].
func (s attrSet) ForLogger(extra ...slog.Attr) []any {
	attrs := make([]any, 0, len(s.Attrs))

	for _, attr := range s.Attrs {
		if a, ok := attr.asSlogAttr(); ok {
			attrs = append(attrs, a)
		}
	}

	if len(attrs) == 0 && len(extra) == 0 {
		return nil
	}

	args := []any{slog.Group(s.Namespace, attrs...)}
	for _, a := range extra {
		args = append(args, a)
	}

	return args
}
