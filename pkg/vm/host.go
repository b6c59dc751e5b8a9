package vm

import "unsafe"

// HostObject is implemented by Go types that want to appear to scripts as
// ordinary objects. The runtime routes every property read, write and
// enumeration on the wrapping value to these methods.
//
// All calls happen on the goroutine that drives the Runtime.
type HostObject interface {
	Get(rt *Runtime, name PropNameID) (Value, error)
	Set(rt *Runtime, name PropNameID, value Value) error
	GetPropertyNames(rt *Runtime) ([]PropNameID, error)
}

type hostObjectBox struct {
	host HostObject
}

// NewHostObject wraps host in a script value. Every value created from the
// same host shares it; the host lives as long as any of them.
func NewHostObject(host HostObject) Value {
	if host == nil {
		return Undefined
	}
	return Value{typ: TypeHostObject, obj: unsafe.Pointer(&hostObjectBox{host: host})}
}

func (v Value) AsHostObject() HostObject {
	if v.typ != TypeHostObject {
		panic("value is not a host object")
	}
	return (*hostObjectBox)(v.obj).host
}

// IsHostObjectOf reports whether v is a host object backed by a T.
func IsHostObjectOf[T HostObject](v Value) bool {
	_, ok := GetHostObject[T](v)
	return ok
}

// GetHostObject returns the T backing v, if v is a host object of that kind.
func GetHostObject[T HostObject](v Value) (T, bool) {
	var zero T
	if v.typ != TypeHostObject {
		return zero, false
	}
	host, ok := (*hostObjectBox)(v.obj).host.(T)
	if !ok {
		return zero, false
	}
	return host, true
}
