// Package lazy provides host objects whose backing object is built on first
// use.
//
// An Object looks like an ordinary object to scripts. The first property
// read, write or enumeration runs its Initializer and from then on every
// operation is forwarded to the object the initializer produced. This lets an
// embedder register many expensive objects (one per native module, say) while
// only paying for the ones a script actually touches.
package lazy

import (
	"go.uber.org/zap"

	"lazyhost/pkg/vm"
)

// TypeofProbe is the property UI reconciliation frameworks read to tell
// special wrapper objects apart. Reading it never materializes an Object.
const TypeofProbe = "$$typeof"

// Initializer builds the backing object. Returning a value that is not an
// object (undefined, null or a primitive) leaves the proxy permanently
// empty. A returned error is passed to the caller of the access that
// triggered initialization.
type Initializer func(rt *vm.Runtime) (vm.Value, error)

// State is the materialization state of an Object.
type State uint8

const (
	StateUninitialized State = iota
	// StateMaterializing is held while the initializer runs.
	StateMaterializing
	StateMaterialized
	// StateDegenerate means the initializer produced no object or failed.
	StateDegenerate
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateMaterializing:
		return "materializing"
	case StateMaterialized:
		return "materialized"
	case StateDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Object is a lazily materialized host object. It is not safe for
// concurrent use; like every host object it is driven from the goroutine
// that owns the runtime.
//
// An initializer must not touch the Object it is building. Such re-entrant
// access sees an empty object and does not run the initializer again.
// An initializer whose result leads back to the Object itself, directly or
// through other lazy Objects, leaves it degenerate.
type Object struct {
	name        string
	initializer Initializer
	backing     vm.Value
	state       State
}

// Option configures an Object.
type Option func(*Object)

// WithName labels the object in log output.
func WithName(name string) Option {
	return func(o *Object) { o.name = name }
}

// New creates an Object that runs initializer on first use.
func New(initializer Initializer, opts ...Option) *Object {
	o := &Object{initializer: initializer, backing: vm.Undefined}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewValue creates an Object and wraps it as a script value.
func NewValue(initializer Initializer, opts ...Option) vm.Value {
	return vm.NewHostObject(New(initializer, opts...))
}

// Name returns the label set with WithName.
func (o *Object) Name() string { return o.name }

// State reports how far materialization has progressed.
func (o *Object) State() State { return o.state }

// Get implements vm.HostObject.
func (o *Object) Get(rt *vm.Runtime, name vm.PropNameID) (vm.Value, error) {
	if o.state == StateUninitialized {
		if name.Text() == TypeofProbe {
			return vm.Undefined, nil
		}
		if err := o.materialize(rt); err != nil {
			return vm.Undefined, err
		}
	}
	if o.state != StateMaterialized {
		return vm.Undefined, nil
	}
	return rt.GetProperty(o.backing, name)
}

// Set implements vm.HostObject.
func (o *Object) Set(rt *vm.Runtime, name vm.PropNameID, value vm.Value) error {
	if o.state == StateUninitialized {
		if err := o.materialize(rt); err != nil {
			return err
		}
	}
	if o.state != StateMaterialized {
		return nil
	}
	return rt.SetProperty(o.backing, name, value)
}

// GetPropertyNames implements vm.HostObject. The result is a fresh snapshot.
func (o *Object) GetPropertyNames(rt *vm.Runtime) ([]vm.PropNameID, error) {
	if o.state == StateUninitialized {
		if err := o.materialize(rt); err != nil {
			return nil, err
		}
	}
	if o.state != StateMaterialized {
		return []vm.PropNameID{}, nil
	}
	names, err := rt.GetPropertyNames(o.backing)
	if err != nil {
		return nil, err
	}
	return vm.ArrayToPropNameIDs(names), nil
}

// materialize runs the initializer exactly once and records the outcome.
func (o *Object) materialize(rt *vm.Runtime) error {
	initFn := o.initializer
	o.initializer = nil
	if initFn == nil {
		o.state = StateDegenerate
		return nil
	}
	o.state = StateMaterializing

	backing, err := initFn(rt)
	if err != nil {
		o.state = StateDegenerate
		Logger().Warn("lazy object initializer failed",
			zap.String("object", o.name),
			zap.String("runtime", rt.ID()),
			zap.Error(err))
		return err
	}
	if !backing.IsObjectLike() {
		o.state = StateDegenerate
		Logger().Debug("lazy object initializer produced no object",
			zap.String("object", o.name),
			zap.Stringer("result", backing.Type()))
		return nil
	}
	if leadsTo(backing, o) {
		o.state = StateDegenerate
		Logger().Warn("lazy object initializer returned a cycle",
			zap.String("object", o.name))
		return nil
	}
	o.backing = backing
	o.state = StateMaterialized
	Logger().Debug("lazy object materialized",
		zap.String("object", o.name),
		zap.String("runtime", rt.ID()))
	return nil
}

// leadsTo reports whether following materialized lazy Objects from v
// reaches target.
func leadsTo(v vm.Value, target *Object) bool {
	seen := make(map[*Object]bool)
	for {
		next, ok := vm.GetHostObject[*Object](v)
		if !ok {
			return false
		}
		if next == target {
			return true
		}
		if seen[next] || next.state != StateMaterialized {
			return false
		}
		seen[next] = true
		v = next.backing
	}
}

// emptyBacking is returned by Unwrap for degenerate objects. It has no
// prototype and rejects new properties.
var emptyBacking = func() vm.Value {
	v := vm.NewObject(vm.Null)
	v.AsPlainObject().SetExtensible(false)
	return v
}()

// Unwrap returns the backing object of obj when obj is a lazy Object,
// materializing it first if needed. Any other value is returned unchanged.
// A degenerate Object unwraps to a shared empty, non-extensible object.
// Backing objects that are themselves lazy are unwrapped too, so the result
// is never a lazy Object. A chain that revisits an Object unwraps to the
// empty object.
func Unwrap(rt *vm.Runtime, obj vm.Value) (vm.Value, error) {
	seen := make(map[*Object]bool)
	for {
		lazyObj, ok := vm.GetHostObject[*Object](obj)
		if !ok {
			return obj, nil
		}
		if seen[lazyObj] {
			return emptyBacking, nil
		}
		seen[lazyObj] = true
		if lazyObj.state == StateUninitialized {
			if err := lazyObj.materialize(rt); err != nil {
				return emptyBacking, err
			}
		}
		if lazyObj.state != StateMaterialized {
			return emptyBacking, nil
		}
		obj = lazyObj.backing
	}
}
