package vm

import (
	"sort"
	"strconv"
	"unsafe"
)

type ArrayObject struct {
	elements   []Value
	properties map[string]Value // Named properties that are not indices
}

func NewArray() Value {
	return Value{typ: TypeArray, obj: unsafe.Pointer(&ArrayObject{})}
}

func NewArrayWithArgs(args []Value) Value {
	elements := make([]Value, len(args))
	copy(elements, args)
	return Value{typ: TypeArray, obj: unsafe.Pointer(&ArrayObject{elements: elements})}
}

func (a *ArrayObject) Length() int {
	return len(a.elements)
}

// SetLength truncates or extends the array; new slots are undefined.
func (a *ArrayObject) SetLength(newLength int) {
	if newLength < 0 {
		return
	}
	if newLength <= len(a.elements) {
		a.elements = a.elements[:newLength]
		return
	}
	for len(a.elements) < newLength {
		a.elements = append(a.elements, Undefined)
	}
}

func (a *ArrayObject) Get(index int) Value {
	if index < 0 || index >= len(a.elements) {
		return Undefined
	}
	return a.elements[index]
}

func (a *ArrayObject) Set(index int, value Value) {
	if index < 0 {
		return
	}
	if index >= len(a.elements) {
		a.SetLength(index + 1)
	}
	a.elements[index] = value
}

func (a *ArrayObject) Append(value Value) {
	a.elements = append(a.elements, value)
}

// Elements returns a copy of the array's elements.
func (a *ArrayObject) Elements() []Value {
	out := make([]Value, len(a.elements))
	copy(out, a.elements)
	return out
}

func (a *ArrayObject) GetOwn(name string) (Value, bool) {
	if name == "length" {
		return NumberValue(float64(len(a.elements))), true
	}
	if idx, ok := tryParseArrayIndex(name); ok {
		if idx < len(a.elements) {
			return a.elements[idx], true
		}
		return Undefined, false
	}
	v, ok := a.properties[name]
	return v, ok
}

func (a *ArrayObject) SetOwn(name string, value Value) {
	if name == "length" {
		a.SetLength(int(value.ToFloat()))
		return
	}
	if idx, ok := tryParseArrayIndex(name); ok {
		a.Set(idx, value)
		return
	}
	if a.properties == nil {
		a.properties = make(map[string]Value)
	}
	a.properties[name] = value
}

// OwnKeys returns the indices followed by named properties in sorted order.
func (a *ArrayObject) OwnKeys() []string {
	keys := make([]string, 0, len(a.elements)+len(a.properties))
	for i := range a.elements {
		keys = append(keys, strconv.Itoa(i))
	}
	named := make([]string, 0, len(a.properties))
	for k := range a.properties {
		named = append(named, k)
	}
	sort.Strings(named)
	return append(keys, named...)
}
