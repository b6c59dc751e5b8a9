package gojabridge

import (
	"github.com/dop251/goja"

	"lazyhost/pkg/vm"
)

// adapter implements goja.DynamicObject over any value the vm.Runtime can
// address. Errors from the host are thrown into the script.
type adapter struct {
	b     *Bridge
	value vm.Value
}

func (a *adapter) Get(key string) goja.Value {
	v, err := a.b.RT.GetProperty(a.value, vm.NewPropNameID(key))
	if err != nil {
		panic(a.b.JS.NewGoError(err))
	}
	// nil lets goja fall through to Object.prototype for toString and friends
	if v.IsUndefined() {
		return nil
	}
	return a.b.ToGoja(v)
}

func (a *adapter) Set(key string, val goja.Value) bool {
	if err := a.b.RT.SetProperty(a.value, vm.NewPropNameID(key), a.b.FromGoja(val)); err != nil {
		panic(a.b.JS.NewGoError(err))
	}
	return true
}

func (a *adapter) Has(key string) bool {
	for _, k := range a.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Delete is unsupported; host objects have no delete operation.
func (a *adapter) Delete(key string) bool {
	return false
}

func (a *adapter) Keys() []string {
	names, err := a.b.RT.GetPropertyNames(a.value)
	if err != nil {
		panic(a.b.JS.NewGoError(err))
	}
	ids := vm.ArrayToPropNameIDs(names)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.Text()
	}
	return keys
}
