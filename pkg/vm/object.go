package vm

import (
	"sync"
	"unsafe"
)

type Field struct {
	offset     int
	name       string
	writable   bool
	enumerable bool
}

// Shape describes the ordered layout of a PlainObject's own properties.
// Objects that add the same properties in the same order share shapes.
type Shape struct {
	parent      *Shape
	fields      []Field
	transitions map[string]*Shape
	mu          sync.RWMutex // Protects transitions map
	version     uint32       // Bumped on any layout/flags change
}

func (s *Shape) lookup(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.name == name {
			return f, true
		}
	}
	return Field{}, false
}

// transition returns the child shape that appends field name with the given
// flags, creating and caching it on first use.
func (s *Shape) transition(name string, enumerable bool) *Shape {
	key := name
	if !enumerable {
		key = "\x00" + name
	}
	s.mu.RLock()
	next, ok := s.transitions[key]
	s.mu.RUnlock()
	if ok {
		return next
	}
	fld := Field{offset: len(s.fields), name: name, writable: true, enumerable: enumerable}
	newFields := make([]Field, len(s.fields)+1)
	copy(newFields, s.fields)
	newFields[len(s.fields)] = fld
	next = &Shape{parent: s, fields: newFields, transitions: make(map[string]*Shape), version: s.version + 1}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, exists := s.transitions[key]; exists {
		return existing
	}
	s.transitions[key] = next
	return next
}

type PlainObject struct {
	shape      *Shape
	prototype  Value
	properties []Value
	// Extensible flag - when false, no new properties can be added
	extensible bool
}

// GetOwn looks up a direct (own) property by name. Returns (value, true) if present.
func (o *PlainObject) GetOwn(name string) (Value, bool) {
	f, ok := o.shape.lookup(name)
	if !ok {
		return Undefined, false
	}
	if f.offset < len(o.properties) {
		return o.properties[f.offset], true
	}
	return Undefined, true
}

func (o *PlainObject) HasOwn(name string) bool {
	_, ok := o.shape.lookup(name)
	return ok
}

// SetOwn sets or defines an own property. Creates a new shape on first definition.
// Existing non-writable properties and new properties on a non-extensible
// object are left untouched.
func (o *PlainObject) SetOwn(name string, v Value) {
	o.setOwn(name, v, true)
}

// SetOwnNonEnumerable defines an own property that is skipped by OwnKeys.
func (o *PlainObject) SetOwnNonEnumerable(name string, v Value) {
	o.setOwn(name, v, false)
}

func (o *PlainObject) setOwn(name string, v Value, enumerable bool) {
	if f, ok := o.shape.lookup(name); ok {
		if f.writable {
			o.properties[f.offset] = v
		}
		return
	}
	if !o.extensible {
		return
	}
	o.shape = o.shape.transition(name, enumerable)
	o.properties = append(o.properties, v)
}

// DeleteOwn removes an own property if present. Returns true if the
// property no longer exists afterwards.
func (o *PlainObject) DeleteOwn(name string) bool {
	f, ok := o.shape.lookup(name)
	if !ok {
		return true
	}
	newFields := make([]Field, 0, len(o.shape.fields)-1)
	for _, fld := range o.shape.fields {
		if fld.name == name {
			continue
		}
		if fld.offset > f.offset {
			fld.offset--
		}
		newFields = append(newFields, fld)
	}
	newProps := make([]Value, 0, len(o.properties)-1)
	newProps = append(newProps, o.properties[:f.offset]...)
	newProps = append(newProps, o.properties[f.offset+1:]...)
	// Deleted layouts are not shared, so the new shape starts without transitions
	o.shape = &Shape{parent: o.shape.parent, fields: newFields, transitions: make(map[string]*Shape), version: o.shape.version + 1}
	o.properties = newProps
	return true
}

// OwnKeys returns the enumerable own property names: integer-like keys in
// ascending order, then the remaining keys in insertion order.
func (o *PlainObject) OwnKeys() []string {
	var indices []int
	var names []string
	for _, f := range o.shape.fields {
		if !f.enumerable {
			continue
		}
		if idx, isInt := tryParseArrayIndex(f.name); isInt {
			indices = append(indices, idx)
		} else {
			names = append(names, f.name)
		}
	}
	return append(sortedIndexKeys(indices), names...)
}

// tryParseArrayIndex checks if a string represents a valid array index.
func tryParseArrayIndex(key string) (int, bool) {
	if key == "" || len(key) > 10 {
		return 0, false
	}
	if len(key) > 1 && key[0] == '0' {
		return 0, false
	}
	idx := 0
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		idx = idx*10 + int(c-'0')
	}
	if idx >= 1<<32-1 {
		return 0, false
	}
	return idx, true
}

// Get looks up a property by name, walking the prototype chain if necessary.
func (o *PlainObject) Get(name string) (Value, bool) {
	if value, exists := o.GetOwn(name); exists {
		return value, true
	}
	current := o.prototype
	for current.typ == TypeObject {
		proto := current.AsPlainObject()
		if value, exists := proto.GetOwn(name); exists {
			return value, true
		}
		current = proto.prototype
	}
	return Undefined, false
}

func (o *PlainObject) GetPrototype() Value {
	return o.prototype
}

func (o *PlainObject) IsExtensible() bool {
	return o.extensible
}

func (o *PlainObject) SetExtensible(extensible bool) {
	o.extensible = extensible
}

// DefaultObjectPrototype is the prototype given to objects created with an
// undefined prototype. It has no enumerable properties.
var DefaultObjectPrototype Value
var RootShape *Shape

func init() {
	RootShape = &Shape{
		fields:      []Field{},
		transitions: make(map[string]*Shape),
	}
	protoObj := &PlainObject{prototype: Null, shape: RootShape}
	DefaultObjectPrototype = Value{typ: TypeObject, obj: unsafe.Pointer(protoObj)}
}

// NewObject creates an empty extensible object. An object proto is used as
// the prototype, Null gives a prototype-less object and anything else
// selects DefaultObjectPrototype.
func NewObject(proto Value) Value {
	prototype := DefaultObjectPrototype
	if proto.IsObject() || proto.IsNull() {
		prototype = proto
	}
	plainObj := &PlainObject{prototype: prototype, shape: RootShape, extensible: true}
	return Value{typ: TypeObject, obj: unsafe.Pointer(plainObj)}
}

// NewObjectFromMap builds an object whose properties are the entries of
// props, added in the order given by keys.
func NewObjectFromMap(keys []string, props map[string]Value) Value {
	obj := NewObject(Undefined)
	po := obj.AsPlainObject()
	for _, k := range keys {
		po.SetOwn(k, props[k])
	}
	return obj
}
