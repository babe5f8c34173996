package vm

import "fmt"

// Handle is a stable index into the heap arena. Handle 0 is the null
// reference.
type Handle uint32

// NullHandle is the null object/array reference.
const NullHandle Handle = 0

// Kind tags a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt    // 32-bit integer
	KindLong   // 64-bit integer
	KindBool   // boolean (field and array storage only)
	KindObject // object reference
	KindArray  // array reference
	KindString // immutable string constant from a class-file pool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is the tagged union flowing through operand stacks, locals,
// fields and array elements. There is no implicit coercion between
// tags; the interpreter converts only where an instruction defines a
// conversion (widening/narrowing ops, boolean field storage).
type Value struct {
	Kind Kind
	Int  int32
	Long int64
	Bool bool
	Ref  Handle
	Str  string
}

// IntValue creates a 32-bit integer Value.
func IntValue(v int32) Value {
	return Value{Kind: KindInt, Int: v}
}

// LongValue creates a 64-bit integer Value.
func LongValue(v int64) Value {
	return Value{Kind: KindLong, Long: v}
}

// BoolValue creates a boolean Value.
func BoolValue(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// ObjectValue creates an object reference Value.
func ObjectValue(h Handle) Value {
	if h == NullHandle {
		return NullValue()
	}
	return Value{Kind: KindObject, Ref: h}
}

// ArrayValue creates an array reference Value.
func ArrayValue(h Handle) Value {
	if h == NullHandle {
		return NullValue()
	}
	return Value{Kind: KindArray, Ref: h}
}

// StringValue creates a string-constant Value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// NullValue creates a null reference Value.
func NullValue() Value {
	return Value{Kind: KindNull}
}

// IsNull reports whether the value is a null reference: either the
// null tag or a reference holding the null handle.
func (v Value) IsNull() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindObject, KindArray:
		return v.Ref == NullHandle
	}
	return false
}

// IsReference reports whether the value carries a reference tag
// (object, array, string or null).
func (v Value) IsReference() bool {
	switch v.Kind {
	case KindNull, KindObject, KindArray, KindString:
		return true
	}
	return false
}

// SameRef reports reference identity: both null, the same handle, or
// the same string constant.
func (v Value) SameRef(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}
	if v.Kind == KindString && o.Kind == KindString {
		return v.Str == o.Str
	}
	return v.Kind == o.Kind && v.Ref == o.Ref
}
