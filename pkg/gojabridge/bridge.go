// Package gojabridge exposes host values to scripts running in goja.
//
// Host objects (lazy proxies included) become goja dynamic objects whose
// property traffic is routed back to the HostObject methods, so a lazy
// proxy materializes exactly when a script first touches it. Plain objects
// get the same live treatment; arrays are copied.
package gojabridge

import (
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"lazyhost/pkg/vm"
)

// Bridge converts values between a vm.Runtime and a goja.Runtime. Both
// runtimes must be driven from the same goroutine.
type Bridge struct {
	JS *goja.Runtime
	RT *vm.Runtime

	objects map[interface{}]*goja.Object
}

func New(js *goja.Runtime, rt *vm.Runtime) *Bridge {
	return &Bridge{
		JS:      js,
		RT:      rt,
		objects: make(map[interface{}]*goja.Object),
	}
}

// Install sets a global in the goja runtime.
func (b *Bridge) Install(name string, value vm.Value) error {
	return b.JS.Set(name, b.ToGoja(value))
}

// ToGoja converts v for use by scripts. The same host or plain object
// always maps to the same goja object.
func (b *Bridge) ToGoja(v vm.Value) goja.Value {
	switch v.Type() {
	case vm.TypeUndefined:
		return goja.Undefined()
	case vm.TypeNull:
		return goja.Null()
	case vm.TypeString:
		return b.JS.ToValue(v.AsString())
	case vm.TypeNumber:
		return b.JS.ToValue(v.AsFloat())
	case vm.TypeBoolean:
		return b.JS.ToValue(v.AsBoolean())
	case vm.TypeArray:
		elems := v.AsArray().Elements()
		items := make([]interface{}, len(elems))
		for i, el := range elems {
			items[i] = b.ToGoja(el)
		}
		return b.JS.NewArray(items...)
	case vm.TypeNativeFunction:
		return b.wrapFunction(v)
	case vm.TypeObject:
		return b.dynamic(v, v)
	case vm.TypeHostObject:
		host := v.AsHostObject()
		if reflect.TypeOf(host).Kind() == reflect.Ptr {
			return b.dynamic(host, v)
		}
		return b.JS.NewDynamicObject(&adapter{b: b, value: v})
	default:
		return goja.Undefined()
	}
}

func (b *Bridge) dynamic(key interface{}, v vm.Value) *goja.Object {
	if obj, ok := b.objects[key]; ok {
		return obj
	}
	obj := b.JS.NewDynamicObject(&adapter{b: b, value: v})
	b.objects[key] = obj
	return obj
}

func (b *Bridge) wrapFunction(fn vm.Value) goja.Value {
	return b.JS.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]vm.Value, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = b.FromGoja(a)
		}
		res, err := b.RT.Call(fn, args...)
		if err != nil {
			panic(b.JS.NewGoError(err))
		}
		return b.ToGoja(res)
	})
}

// FromGoja converts a script value into the host value model. Objects that
// came from ToGoja convert back to the original value.
func (b *Bridge) FromGoja(v goja.Value) vm.Value {
	return b.fromGoja(v, make(map[*goja.Object]vm.Value))
}

func (b *Bridge) fromGoja(v goja.Value, seen map[*goja.Object]vm.Value) vm.Value {
	if v == nil || goja.IsUndefined(v) {
		return vm.Undefined
	}
	if goja.IsNull(v) {
		return vm.Null
	}
	obj, isObject := v.(*goja.Object)
	if !isObject {
		switch x := v.Export().(type) {
		case string:
			return vm.NewString(x)
		case int64:
			return vm.NumberValue(float64(x))
		case float64:
			return vm.NumberValue(x)
		case bool:
			return vm.BooleanValue(x)
		default:
			return vm.NewString(v.String())
		}
	}

	if a, ok := obj.Export().(*adapter); ok {
		return a.value
	}
	if prev, ok := seen[obj]; ok {
		return prev
	}
	if fn, ok := goja.AssertFunction(obj); ok {
		return b.importFunction(obj, fn)
	}
	if obj.ClassName() == "Array" {
		out := vm.NewArray()
		seen[obj] = out
		arr := out.AsArray()
		n := int(obj.Get("length").ToInteger())
		for i := 0; i < n; i++ {
			arr.Append(b.fromGoja(obj.Get(strconv.Itoa(i)), seen))
		}
		return out
	}

	out := vm.NewObject(vm.Undefined)
	seen[obj] = out
	po := out.AsPlainObject()
	for _, k := range obj.Keys() {
		po.SetOwn(k, b.fromGoja(obj.Get(k), seen))
	}
	return out
}

func (b *Bridge) importFunction(obj *goja.Object, fn goja.Callable) vm.Value {
	name := ""
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	arity := 0
	if l := obj.Get("length"); l != nil {
		arity = int(l.ToInteger())
	}
	return vm.NewNativeFunction(arity, false, name, func(args []vm.Value) (vm.Value, error) {
		jsArgs := make([]goja.Value, len(args))
		for i, a := range args {
			jsArgs[i] = b.ToGoja(a)
		}
		res, err := fn(goja.Undefined(), jsArgs...)
		if err != nil {
			return vm.Undefined, err
		}
		return b.FromGoja(res), nil
	})
}
