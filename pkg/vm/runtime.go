package vm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lazyhost/pkg/errors"
)

// Runtime is the execution context handed to host objects and initializers.
// It owns the global object and implements generic property access over
// every value kind. A Runtime is not safe for concurrent use.
type Runtime struct {
	id     uuid.UUID
	global Value
}

// NewRuntime creates a runtime with an empty, prototype-less global object.
func NewRuntime() *Runtime {
	return &Runtime{
		id:     uuid.New(),
		global: NewObject(Null),
	}
}

// ID identifies the runtime in logs.
func (rt *Runtime) ID() string { return rt.id.String() }

func (rt *Runtime) Global() Value { return rt.global }

func (rt *Runtime) SetGlobal(name string, value Value) {
	rt.global.AsPlainObject().SetOwn(name, value)
}

func (rt *Runtime) GetGlobal(name string) (Value, bool) {
	return rt.global.AsPlainObject().GetOwn(name)
}

// GetProperty reads name from obj. Host objects are asked directly; plain
// objects consult their prototype chain. Reading from undefined or null is a
// TypeError, reading from other primitives yields undefined.
func (rt *Runtime) GetProperty(obj Value, name PropNameID) (Value, error) {
	switch obj.typ {
	case TypeHostObject:
		return obj.AsHostObject().Get(rt, name)
	case TypeObject:
		v, _ := obj.AsPlainObject().Get(name.Text())
		return v, nil
	case TypeArray:
		v, _ := obj.AsArray().GetOwn(name.Text())
		return v, nil
	case TypeNativeFunction:
		fn := obj.AsNativeFunction()
		switch name.Text() {
		case "name":
			return NewString(fn.Name), nil
		case "length":
			return NumberValue(float64(fn.Arity)), nil
		}
		return Undefined, nil
	case TypeString:
		if name.Text() == "length" {
			return NumberValue(float64(len([]rune(obj.AsString())))), nil
		}
		return Undefined, nil
	case TypeUndefined, TypeNull:
		return Undefined, &errors.TypeError{Msg: fmt.Sprintf("Cannot read properties of %s (reading '%s')", obj.ToString(), name.Text())}
	default:
		return Undefined, nil
	}
}

// SetProperty writes value to name on obj. Writes to primitives other than
// undefined and null are silently dropped.
func (rt *Runtime) SetProperty(obj Value, name PropNameID, value Value) error {
	switch obj.typ {
	case TypeHostObject:
		return obj.AsHostObject().Set(rt, name, value)
	case TypeObject:
		obj.AsPlainObject().SetOwn(name.Text(), value)
		return nil
	case TypeArray:
		obj.AsArray().SetOwn(name.Text(), value)
		return nil
	case TypeUndefined, TypeNull:
		return &errors.TypeError{Msg: fmt.Sprintf("Cannot set properties of %s (setting '%s')", obj.ToString(), name.Text())}
	default:
		return nil
	}
}

// GetPropertyNames returns an array holding the enumerable property names
// of obj, including inherited ones, the same set a for-in loop visits.
func (rt *Runtime) GetPropertyNames(obj Value) (Value, error) {
	switch obj.typ {
	case TypeHostObject:
		ids, err := obj.AsHostObject().GetPropertyNames(rt)
		if err != nil {
			return Undefined, err
		}
		return PropNameIDsToArray(ids), nil
	case TypeObject:
		seen := make(map[string]bool)
		var names []Value
		for cur := obj; cur.typ == TypeObject; cur = cur.AsPlainObject().GetPrototype() {
			po := cur.AsPlainObject()
			for _, k := range po.OwnKeys() {
				if seen[k] {
					continue
				}
				seen[k] = true
				names = append(names, NewString(k))
			}
		}
		return NewArrayWithArgs(names), nil
	case TypeArray:
		keys := obj.AsArray().OwnKeys()
		names := make([]Value, len(keys))
		for i, k := range keys {
			names[i] = NewString(k)
		}
		return NewArrayWithArgs(names), nil
	case TypeUndefined, TypeNull:
		return Undefined, &errors.TypeError{Msg: fmt.Sprintf("Cannot convert %s to object", obj.ToString())}
	default:
		return NewArray(), nil
	}
}

// Inspect renders v like Value.Inspect, but lists host object properties
// through the host. This may materialize lazy hosts.
func (rt *Runtime) Inspect(v Value) string {
	return v.inspectWithDepth(rt, false, 0, 16)
}

func (rt *Runtime) inspectHost(v Value, depth, maxDepth int) (string, bool) {
	names, err := rt.GetPropertyNames(v)
	if err != nil {
		return "", false
	}
	ids := ArrayToPropNameIDs(names)
	if len(ids) == 0 {
		return "{}", true
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		val, err := rt.GetProperty(v, id)
		if err != nil {
			return "", false
		}
		parts = append(parts, id.Text()+": "+val.inspectWithDepth(rt, true, depth+1, maxDepth))
	}
	return "{ " + strings.Join(parts, ", ") + " }", true
}

// Call invokes fn with args. Errors returned by native code are passed
// through unchanged.
func (rt *Runtime) Call(fn Value, args ...Value) (Value, error) {
	if fn.typ != TypeNativeFunction {
		return Undefined, &errors.TypeError{Msg: fmt.Sprintf("%s is not a function", fn.Inspect())}
	}
	return fn.AsNativeFunction().Fn(args)
}
