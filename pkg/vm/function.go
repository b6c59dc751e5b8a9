package vm

import "unsafe"

// NativeFunctionObject is a function implemented in Go.
type NativeFunctionObject struct {
	Arity    int
	Variadic bool
	Name     string
	Fn       func(args []Value) (Value, error)
}

func NewNativeFunction(arity int, variadic bool, name string, fn func(args []Value) (Value, error)) Value {
	return Value{typ: TypeNativeFunction, obj: unsafe.Pointer(&NativeFunctionObject{
		Arity:    arity,
		Variadic: variadic,
		Name:     name,
		Fn:       fn,
	})}
}
