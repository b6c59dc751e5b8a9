package lazy

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"lazyhost/pkg/vm"
)

// countingInit returns an initializer that builds a fresh object from props
// and counts its invocations.
func countingInit(props map[string]vm.Value, keys ...string) (Initializer, *int) {
	calls := 0
	return func(rt *vm.Runtime) (vm.Value, error) {
		calls++
		return vm.NewObjectFromMap(keys, props), nil
	}, &calls
}

func noObjectInit(calls *int) Initializer {
	return func(rt *vm.Runtime) (vm.Value, error) {
		*calls++
		return vm.Undefined, nil
	}
}

func prop(name string) vm.PropNameID { return vm.NewPropNameID(name) }

func TestGetMaterializesOnce(t *testing.T) {
	rt := vm.NewRuntime()
	initFn, calls := countingInit(map[string]vm.Value{"a": vm.NumberValue(1)}, "a")
	obj := New(initFn)

	v, err := obj.Get(rt, prop("a"))
	if err != nil {
		t.Fatalf("Get(a): %v", err)
	}
	if v.AsFloat() != 1 {
		t.Errorf("Get(a) = %s, want 1", v.Inspect())
	}
	for i := 0; i < 2; i++ {
		if _, err := obj.Get(rt, prop("a")); err != nil {
			t.Fatalf("Get(a): %v", err)
		}
	}
	if *calls != 1 {
		t.Errorf("initializer called %d times, want 1", *calls)
	}
	if obj.State() != StateMaterialized {
		t.Errorf("state = %s, want materialized", obj.State())
	}
}

func TestTypeofProbeDoesNotMaterialize(t *testing.T) {
	rt := vm.NewRuntime()
	initFn, calls := countingInit(map[string]vm.Value{TypeofProbe: vm.NewString("backing")}, TypeofProbe)
	obj := New(initFn)

	v, err := obj.Get(rt, prop(TypeofProbe))
	if err != nil {
		t.Fatalf("Get(%s): %v", TypeofProbe, err)
	}
	if !v.IsUndefined() {
		t.Errorf("probe returned %s, want undefined", v.Inspect())
	}
	if *calls != 0 || obj.State() != StateUninitialized {
		t.Fatalf("probe materialized the object (calls=%d, state=%s)", *calls, obj.State())
	}

	// Any other property materializes
	if _, err := obj.Get(rt, prop("other")); err != nil {
		t.Fatalf("Get(other): %v", err)
	}
	if *calls != 1 || obj.State() != StateMaterialized {
		t.Fatalf("expected materialization (calls=%d, state=%s)", *calls, obj.State())
	}

	// Once materialized the probe is forwarded like any other property
	v, _ = obj.Get(rt, prop(TypeofProbe))
	if !v.IsString() || v.AsString() != "backing" {
		t.Errorf("probe after materialization = %s, want \"backing\"", v.Inspect())
	}
}

func TestSetMaterializes(t *testing.T) {
	for _, name := range []string{"x", TypeofProbe} {
		t.Run(name, func(t *testing.T) {
			rt := vm.NewRuntime()
			initFn, calls := countingInit(map[string]vm.Value{})
			obj := New(initFn)

			if err := obj.Set(rt, prop(name), vm.NumberValue(3)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if *calls != 1 {
				t.Fatalf("initializer called %d times, want 1", *calls)
			}
			v, _ := obj.Get(rt, prop(name))
			if v.AsFloat() != 3 {
				t.Errorf("Get after Set = %s, want 3", v.Inspect())
			}
		})
	}
}

func TestGetPropertyNamesMaterializes(t *testing.T) {
	rt := vm.NewRuntime()
	initFn, calls := countingInit(map[string]vm.Value{
		"b": vm.True,
		"a": vm.False,
	}, "b", "a")
	obj := New(initFn)

	names, err := obj.GetPropertyNames(rt)
	if err != nil {
		t.Fatalf("GetPropertyNames: %v", err)
	}
	if *calls != 1 {
		t.Errorf("initializer called %d times, want 1", *calls)
	}
	if len(names) != 2 || names[0].Text() != "b" || names[1].Text() != "a" {
		t.Errorf("names = %v, want [b a]", names)
	}

	// Snapshots are independent of later writes
	_ = obj.Set(rt, prop("c"), vm.True)
	if len(names) != 2 {
		t.Errorf("earlier snapshot changed: %v", names)
	}
	again, _ := obj.GetPropertyNames(rt)
	if len(again) != 3 {
		t.Errorf("names after write = %v, want 3 entries", again)
	}
}

func TestDegenerateInitializer(t *testing.T) {
	results := map[string]vm.Value{
		"undefined": vm.Undefined,
		"null":      vm.Null,
		"number":    vm.NumberValue(1),
		"string":    vm.NewString("not an object"),
	}
	for label, result := range results {
		t.Run(label, func(t *testing.T) {
			rt := vm.NewRuntime()
			calls := 0
			obj := New(func(rt *vm.Runtime) (vm.Value, error) {
				calls++
				return result, nil
			})

			for i := 0; i < 3; i++ {
				v, err := obj.Get(rt, prop("anything"))
				if err != nil || !v.IsUndefined() {
					t.Fatalf("Get = %s, %v; want undefined", v.Inspect(), err)
				}
				if err := obj.Set(rt, prop("anything"), vm.True); err != nil {
					t.Fatalf("Set: %v", err)
				}
				names, err := obj.GetPropertyNames(rt)
				if err != nil || len(names) != 0 {
					t.Fatalf("GetPropertyNames = %v, %v; want empty", names, err)
				}
			}
			if calls != 1 {
				t.Errorf("initializer called %d times, want 1", calls)
			}
			if obj.State() != StateDegenerate {
				t.Errorf("state = %s, want degenerate", obj.State())
			}
		})
	}
}

func TestNilInitializerIsDegenerate(t *testing.T) {
	rt := vm.NewRuntime()
	obj := New(nil)
	if v, err := obj.Get(rt, prop("a")); err != nil || !v.IsUndefined() {
		t.Errorf("Get = %s, %v", v.Inspect(), err)
	}
	if obj.State() != StateDegenerate {
		t.Errorf("state = %s, want degenerate", obj.State())
	}
}

func TestInitializerErrorPropagatesOnce(t *testing.T) {
	rt := vm.NewRuntime()
	boom := errors.New("boom")
	calls := 0
	obj := New(func(rt *vm.Runtime) (vm.Value, error) {
		calls++
		return vm.Undefined, boom
	})

	if _, err := obj.Get(rt, prop("a")); !errors.Is(err, boom) {
		t.Fatalf("Get error = %v, want %v", err, boom)
	}
	// Subsequent accesses behave as an empty object without retrying
	if v, err := obj.Get(rt, prop("a")); err != nil || !v.IsUndefined() {
		t.Errorf("second Get = %s, %v", v.Inspect(), err)
	}
	if err := obj.Set(rt, prop("a"), vm.True); err != nil {
		t.Errorf("Set after failure: %v", err)
	}
	if calls != 1 {
		t.Errorf("initializer called %d times, want 1", calls)
	}
}

func TestForwardingFidelity(t *testing.T) {
	rt := vm.NewRuntime()
	backing := vm.NewObject(vm.Undefined)
	backing.AsPlainObject().SetOwn("x", vm.NumberValue(10))
	backing.AsPlainObject().SetOwn("y", vm.NewString("why"))
	obj := New(func(rt *vm.Runtime) (vm.Value, error) { return backing, nil })

	for _, name := range []string{"x", "y", "missing"} {
		direct, _ := rt.GetProperty(backing, prop(name))
		proxied, err := obj.Get(rt, prop(name))
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if !direct.Is(proxied) {
			t.Errorf("Get(%s) = %s, direct = %s", name, proxied.Inspect(), direct.Inspect())
		}
	}

	if err := obj.Set(rt, prop("z"), vm.True); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := backing.AsPlainObject().GetOwn("z"); !ok || !v.AsBoolean() {
		t.Errorf("write was not forwarded to the backing object")
	}

	directNames, _ := rt.GetPropertyNames(backing)
	want := vm.ArrayToPropNameIDs(directNames)
	got, _ := obj.GetPropertyNames(rt)
	if len(got) != len(want) {
		t.Fatalf("names = %v, direct = %v", got, want)
	}
	for i := range want {
		if !got[i].Equals(want[i]) {
			t.Errorf("names[%d] = %s, direct = %s", i, got[i], want[i])
		}
	}
}

func TestUnwrap(t *testing.T) {
	rt := vm.NewRuntime()
	backing := vm.NewObject(vm.Undefined)
	calls := 0
	proxy := NewValue(func(rt *vm.Runtime) (vm.Value, error) {
		calls++
		return backing, nil
	})

	got, err := Unwrap(rt, proxy)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !got.Is(backing) {
		t.Errorf("Unwrap did not return the backing object")
	}
	again, _ := Unwrap(rt, got)
	if !again.Is(got) {
		t.Errorf("Unwrap is not idempotent")
	}
	if _, _ = Unwrap(rt, proxy); calls != 1 {
		t.Errorf("initializer called %d times, want 1", calls)
	}

	plain := vm.NewObject(vm.Undefined)
	if v, _ := Unwrap(rt, plain); !v.Is(plain) {
		t.Errorf("plain object should pass through Unwrap unchanged")
	}
	if v, _ := Unwrap(rt, vm.NumberValue(4)); v.AsFloat() != 4 {
		t.Errorf("primitive should pass through Unwrap unchanged")
	}
}

func TestUnwrapNested(t *testing.T) {
	rt := vm.NewRuntime()
	backing := vm.NewObject(vm.Undefined)
	inner := NewValue(func(rt *vm.Runtime) (vm.Value, error) { return backing, nil })
	outer := NewValue(func(rt *vm.Runtime) (vm.Value, error) { return inner, nil })

	got, err := Unwrap(rt, outer)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !got.Is(backing) {
		t.Errorf("nested lazy objects should unwrap to the innermost backing object")
	}
}

func TestUnwrapDegenerate(t *testing.T) {
	rt := vm.NewRuntime()
	calls := 0
	proxy := NewValue(noObjectInit(&calls))

	first, err := Unwrap(rt, proxy)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	second, _ := Unwrap(rt, proxy)
	if !first.Is(second) {
		t.Errorf("degenerate unwrap should be stable")
	}
	if again, _ := Unwrap(rt, first); !again.Is(first) {
		t.Errorf("Unwrap is not idempotent for degenerate objects")
	}
	if first.AsPlainObject().IsExtensible() {
		t.Errorf("degenerate backing should not be extensible")
	}
	names, _ := rt.GetPropertyNames(first)
	if len(vm.ArrayToPropNameIDs(names)) != 0 {
		t.Errorf("degenerate backing should have no properties")
	}
	_ = rt.SetProperty(first, prop("leak"), vm.True)
	if v, _ := rt.GetProperty(first, prop("leak")); !v.IsUndefined() {
		t.Errorf("degenerate backing accepted a write")
	}
	if calls != 1 {
		t.Errorf("initializer called %d times, want 1", calls)
	}
}

func TestSelfReferentialInitializer(t *testing.T) {
	rt := vm.NewRuntime()
	calls := 0
	var self vm.Value
	self = NewValue(func(rt *vm.Runtime) (vm.Value, error) {
		calls++
		return self, nil
	})

	got, err := Unwrap(rt, self)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !got.Is(emptyBacking) {
		t.Errorf("Unwrap = %s, want the empty object", got.Inspect())
	}
	if v, err := rt.GetProperty(self, prop("a")); err != nil || !v.IsUndefined() {
		t.Errorf("Get(a) = %s, %v; want undefined", v.Inspect(), err)
	}
	obj, _ := vm.GetHostObject[*Object](self)
	if obj.State() != StateDegenerate {
		t.Errorf("state = %s, want degenerate", obj.State())
	}
	if calls != 1 {
		t.Errorf("initializer called %d times, want 1", calls)
	}
}

func TestMutuallyReferentialInitializers(t *testing.T) {
	rt := vm.NewRuntime()
	var a, b vm.Value
	a = NewValue(func(rt *vm.Runtime) (vm.Value, error) { return b, nil })
	b = NewValue(func(rt *vm.Runtime) (vm.Value, error) { return a, nil })

	if v, err := rt.GetProperty(a, prop("x")); err != nil || !v.IsUndefined() {
		t.Errorf("a.x = %s, %v; want undefined", v.Inspect(), err)
	}
	for _, v := range []vm.Value{a, b} {
		got, err := Unwrap(rt, v)
		if err != nil {
			t.Fatalf("Unwrap: %v", err)
		}
		if !got.Is(emptyBacking) {
			t.Errorf("Unwrap = %s, want the empty object", got.Inspect())
		}
	}
	bObj, _ := vm.GetHostObject[*Object](b)
	if bObj.State() != StateDegenerate {
		t.Errorf("b state = %s, want degenerate", bObj.State())
	}
}

func TestReentrantAccessDoesNotReinitialize(t *testing.T) {
	rt := vm.NewRuntime()
	calls := 0
	var self vm.Value
	self = NewValue(func(rt *vm.Runtime) (vm.Value, error) {
		calls++
		// Touching the proxy while it is being built sees an empty object
		v, err := rt.GetProperty(self, prop("a"))
		if err != nil || !v.IsUndefined() {
			t.Errorf("re-entrant Get = %s, %v", v.Inspect(), err)
		}
		return vm.NewObjectFromMap([]string{"a"}, map[string]vm.Value{"a": vm.True}), nil
	})

	v, err := rt.GetProperty(self, prop("a"))
	if err != nil || !v.AsBoolean() {
		t.Fatalf("Get(a) = %s, %v", v.Inspect(), err)
	}
	if calls != 1 {
		t.Errorf("initializer called %d times, want 1", calls)
	}
}

func TestMaterializationLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	rt := vm.NewRuntime()
	initFn, _ := countingInit(map[string]vm.Value{})
	obj := New(initFn, WithName("math"))
	if _, err := obj.Get(rt, prop("pi")); err != nil {
		t.Fatalf("Get: %v", err)
	}

	entries := logs.FilterMessage("lazy object materialized").All()
	if len(entries) != 1 {
		t.Fatalf("got %d materialization log entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["object"]; got != "math" {
		t.Errorf("logged object = %v, want math", got)
	}
}
