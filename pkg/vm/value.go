package vm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unsafe"
)

// cleanExponentialFormat removes leading zeros from exponent to match JS format
// e.g., "1e-07" -> "1e-7", "1e+25" -> "1e+25"
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				j := i + 2
				for j < len(s) && s[j] == '0' {
					j++
				}
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull

	TypeString
	TypeNumber
	TypeBoolean

	TypeNativeFunction

	TypeObject
	TypeArray
	TypeHostObject
)

// String returns a human-readable string representation of the ValueType
func (vt ValueType) String() string {
	switch vt {
	case TypeNull:
		return "null"
	case TypeUndefined:
		return "undefined"
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeNativeFunction:
		return "native function"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeHostObject:
		return "host object"
	default:
		return "unknown"
	}
}

type StringObject struct {
	value string
}

// Value is the engine-side representation of every script value. Primitive
// payloads live inline; heap values are referenced through obj.
type Value struct {
	typ     ValueType
	payload uint64
	obj     unsafe.Pointer
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = Value{typ: TypeNumber, payload: math.Float64bits(math.NaN())}
)

func NumberValue(value float64) Value {
	return Value{typ: TypeNumber, payload: math.Float64bits(value)}
}

func BooleanValue(value bool) Value {
	if value {
		return True
	}
	return False
}

func NewString(value string) Value {
	return Value{typ: TypeString, obj: unsafe.Pointer(&StringObject{value: value})}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNumber() bool    { return v.typ == TypeNumber }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsArray() bool     { return v.typ == TypeArray }
func (v Value) IsCallable() bool  { return v.typ == TypeNativeFunction }

// IsObject reports whether v is a plain object.
func (v Value) IsObject() bool { return v.typ == TypeObject }

// IsHostObject reports whether v is backed by a HostObject.
func (v Value) IsHostObject() bool { return v.typ == TypeHostObject }

// IsObjectLike reports whether v is any heap object that can carry
// properties: plain objects, arrays, functions and host objects.
func (v Value) IsObjectLike() bool {
	switch v.typ {
	case TypeObject, TypeArray, TypeNativeFunction, TypeHostObject:
		return true
	}
	return false
}

// TypeName returns the result of the typeof operator for v.
func (v Value) TypeName() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeNativeFunction:
		return "function"
	default:
		return "object"
	}
}

func (v Value) AsFloat() float64 {
	if v.typ != TypeNumber {
		panic("value is not a number")
	}
	return math.Float64frombits(v.payload)
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		panic("value is not a string")
	}
	return (*StringObject)(v.obj).value
}

func (v Value) AsBoolean() bool {
	if v.typ != TypeBoolean {
		panic("value is not a boolean")
	}
	return v.payload == 1
}

func (v Value) AsPlainObject() *PlainObject {
	if v.typ != TypeObject {
		panic("value is not an object")
	}
	return (*PlainObject)(v.obj)
}

func (v Value) AsArray() *ArrayObject {
	if v.typ != TypeArray {
		panic("value is not an array")
	}
	return (*ArrayObject)(v.obj)
}

func (v Value) AsNativeFunction() *NativeFunctionObject {
	if v.typ != TypeNativeFunction {
		panic("value is not a native function")
	}
	return (*NativeFunctionObject)(v.obj)
}

func (v Value) ToString() string {
	switch v.typ {
	case TypeString:
		return (*StringObject)(v.obj).value
	case TypeNumber:
		f := v.AsFloat()
		if math.IsNaN(f) {
			return "NaN"
		}
		if math.IsInf(f, 1) {
			return "Infinity"
		}
		if math.IsInf(f, -1) {
			return "-Infinity"
		}
		if f == 0 && math.Signbit(f) {
			return "0"
		}
		absF := math.Abs(f)
		if absF != 0 && (absF < 1e-6 || absF >= 1e21) {
			return cleanExponentialFormat(strconv.FormatFloat(f, 'e', -1, 64))
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case TypeBoolean:
		if v.AsBoolean() {
			return "true"
		}
		return "false"
	case TypeNativeFunction:
		nativeFn := (*NativeFunctionObject)(v.obj)
		if nativeFn.Name != "" {
			return fmt.Sprintf("<native function %s>", nativeFn.Name)
		}
		return "<native function>"
	case TypeObject, TypeHostObject:
		return "[object Object]"
	case TypeArray:
		arr := v.AsArray()
		parts := make([]string, len(arr.elements))
		for i, el := range arr.elements {
			if el.typ == TypeUndefined || el.typ == TypeNull {
				continue
			}
			parts[i] = el.ToString()
		}
		return strings.Join(parts, ",")
	case TypeNull:
		return "null"
	case TypeUndefined:
		return "undefined"
	}
	return fmt.Sprintf("<unknown type %d>", v.typ)
}

// ToFloat converts v to a number following the usual script coercions.
func (v Value) ToFloat() float64 {
	switch v.typ {
	case TypeNumber:
		return v.AsFloat()
	case TypeBoolean:
		if v.AsBoolean() {
			return 1
		}
		return 0
	case TypeNull:
		return 0
	case TypeString:
		s := strings.TrimSpace(v.AsString())
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func (v Value) IsFalsey() bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return !v.AsBoolean()
	case TypeNumber:
		f := v.AsFloat()
		return f == 0 || math.IsNaN(f)
	case TypeString:
		return v.AsString() == ""
	default:
		return false
	}
}

func (v Value) IsTruthy() bool { return !v.IsFalsey() }

// Inspect returns a developer-facing rendering of v. Host objects are shown
// by type; use Runtime.Inspect to list their properties.
func (v Value) Inspect() string {
	return v.inspectWithDepth(nil, false, 0, 16)
}

func (v Value) inspectWithDepth(rt *Runtime, nested bool, depth int, maxDepth int) string {
	if depth >= maxDepth {
		return "<…>"
	}
	switch v.typ {
	case TypeString:
		if nested {
			return strconv.Quote(v.AsString())
		}
		return v.AsString()
	case TypeNativeFunction:
		nativeFn := (*NativeFunctionObject)(v.obj)
		if nativeFn.Name != "" {
			return fmt.Sprintf("[Function: %s]", nativeFn.Name)
		}
		return "[Function (anonymous)]"
	case TypeObject:
		obj := v.AsPlainObject()
		keys := obj.OwnKeys()
		if len(keys) == 0 {
			return "{}"
		}
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			val, _ := obj.GetOwn(k)
			parts = append(parts, k+": "+val.inspectWithDepth(rt, true, depth+1, maxDepth))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case TypeArray:
		arr := v.AsArray()
		parts := make([]string, len(arr.elements))
		for i, el := range arr.elements {
			parts[i] = el.inspectWithDepth(rt, true, depth+1, maxDepth)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeHostObject:
		if rt != nil {
			if out, ok := rt.inspectHost(v, depth, maxDepth); ok {
				return out
			}
		}
		return fmt.Sprintf("[HostObject %T]", v.AsHostObject())
	default:
		return v.ToString()
	}
}

// Is implements SameValueZero: NaN equals NaN, objects compare by identity.
func (v Value) Is(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return v.payload == other.payload
	case TypeNumber:
		vf, of := v.AsFloat(), other.AsFloat()
		if math.IsNaN(vf) && math.IsNaN(of) {
			return true
		}
		return vf == of
	case TypeString:
		return v.AsString() == other.AsString()
	case TypeHostObject:
		return v.AsHostObject() == other.AsHostObject()
	default:
		return v.obj == other.obj
	}
}

// StrictlyEquals compares two values using `===`. NaN !== NaN.
func (v Value) StrictlyEquals(other Value) bool {
	if v.typ == TypeNumber && other.typ == TypeNumber {
		vf, of := v.AsFloat(), other.AsFloat()
		if math.IsNaN(vf) || math.IsNaN(of) {
			return false
		}
		return vf == of
	}
	return v.Is(other)
}

// sortedIndexKeys orders keys that look like array indices numerically.
func sortedIndexKeys(keys []int) []string {
	sort.Ints(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strconv.Itoa(k)
	}
	return out
}
