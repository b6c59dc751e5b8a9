package driver

import (
	stderrors "errors"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"lazyhost/pkg/errors"
	"lazyhost/pkg/lazy"
	"lazyhost/pkg/vm"
)

func emptyModule(m *ModuleBuilder) error {
	m.Const("ok", true)
	return nil
}

func TestRequireSuggestsCloseName(t *testing.T) {
	reg := NewRegistry()
	reg.DeclareModule("math", emptyModule)
	reg.DeclareModule("text", emptyModule)

	_, err := reg.Require("maht")
	var modErr *errors.ModuleError
	if !stderrors.As(err, &modErr) {
		t.Fatalf("error = %v, want ModuleError", err)
	}
	if modErr.Suggestion != "math" {
		t.Errorf("suggestion = %q, want math", modErr.Suggestion)
	}
	if !strings.Contains(err.Error(), `did you mean "math"?`) {
		t.Errorf("error text = %q", err.Error())
	}

	_, err = reg.Require("zzzzzzzz")
	if !stderrors.As(err, &modErr) || modErr.Suggestion != "" {
		t.Errorf("unrelated name should have no suggestion, got %v", err)
	}
}

func TestModulesObjectDoesNotBuildModules(t *testing.T) {
	reg := NewRegistry()
	reg.DeclareModule("b", emptyModule)
	reg.DeclareModule("a", emptyModule)
	rt := vm.NewRuntime()
	modules := reg.ModulesObject()

	names, err := rt.GetPropertyNames(modules)
	if err != nil {
		t.Fatal(err)
	}
	ids := vm.ArrayToPropNameIDs(names)
	if len(ids) != 2 || ids[0].Text() != "a" || ids[1].Text() != "b" {
		t.Errorf("names = %v, want [a b]", names.Inspect())
	}

	a := getProp(t, rt, modules, "a")
	if !vm.IsHostObjectOf[*lazy.Object](a) {
		t.Fatalf("modules.a = %s, want the module proxy", a.Inspect())
	}
	if missing := getProp(t, rt, modules, "c"); !missing.IsUndefined() {
		t.Errorf("modules.c = %s, want undefined", missing.Inspect())
	}
	if s := reg.Stats(); s.Materialized != 0 || s.Pending() != 2 {
		t.Errorf("stats = %+v, want nothing built", s)
	}

	err = rt.SetProperty(modules, vm.NewPropNameID("a"), vm.Null)
	var typeErr *errors.TypeError
	if !stderrors.As(err, &typeErr) {
		t.Errorf("write to modules = %v, want TypeError", err)
	}
}

func TestInstallDefinesGlobals(t *testing.T) {
	reg := NewRegistry()
	reg.DeclareModule("math", emptyModule)
	rt := vm.NewRuntime()
	reg.Install(rt)

	require, ok := rt.GetGlobal("require")
	if !ok || !require.IsCallable() {
		t.Fatal("require global missing")
	}
	if _, ok := rt.GetGlobal("modules"); !ok {
		t.Fatal("modules global missing")
	}

	mod, err := rt.Call(require, vm.NewString("math"))
	if err != nil {
		t.Fatalf("require(math): %v", err)
	}
	if nm, _ := reg.Module("math"); nm.State() != lazy.StateUninitialized {
		t.Error("require should not build the module")
	}
	if !getProp(t, rt, mod, "ok").AsBoolean() {
		t.Error("math.ok should be true")
	}

	if _, err := rt.Call(require); err == nil {
		t.Error("require() without a name should fail")
	}
}

func TestPreloadAndStats(t *testing.T) {
	reg := NewRegistry()
	reg.DeclareModule("good", emptyModule)
	reg.DeclareModule("bad", func(m *ModuleBuilder) error { return stderrors.New("boom") })
	reg.DeclareModule("idle", emptyModule)
	rt := vm.NewRuntime()

	err := reg.Preload(rt, "good", "bad", "missing")
	if err == nil {
		t.Fatal("expected preload errors")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("got %d errors, want 2: %v", n, err)
	}

	s := reg.Stats()
	if s.Declared != 3 || s.Materialized != 1 || s.Degenerate != 1 || s.Pending() != 1 {
		t.Errorf("stats = %+v (pending %d)", s, s.Pending())
	}
}

func TestCloseRunsCleanupInReverseOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	reg.DeclareModule("res", func(m *ModuleBuilder) error {
		m.OnClose(func() error { order = append(order, "first"); return nil })
		m.OnClose(func() error { order = append(order, "second"); return stderrors.New("flush failed") })
		return nil
	})
	never := false
	reg.DeclareModule("unused", func(m *ModuleBuilder) error {
		m.OnClose(func() error { never = true; return nil })
		return nil
	})

	rt := vm.NewRuntime()
	if err := reg.Preload(rt, "res"); err != nil {
		t.Fatal(err)
	}
	err := reg.Close()
	if err == nil || !strings.Contains(err.Error(), "flush failed") {
		t.Errorf("Close error = %v, want flush failure", err)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("cleanup order = %v", order)
	}
	if never {
		t.Error("unbuilt module should not run cleanup")
	}

	// A second Close has nothing left to do.
	if err := reg.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestCloseFollowsReverseDeclarationOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	for _, name := range []string{"b", "a", "c"} {
		name := name
		reg.DeclareModule(name, func(m *ModuleBuilder) error {
			m.OnClose(func() error { order = append(order, name); return nil })
			return nil
		})
	}

	if err := reg.Preload(vm.NewRuntime(), "a", "b", "c"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ","); got != "c,a,b" {
		t.Errorf("close order = %s, want c,a,b", got)
	}
}

func TestRedeclareClosesBuiltModule(t *testing.T) {
	reg := NewRegistry()
	closed := 0
	reg.DeclareModule("res", func(m *ModuleBuilder) error {
		m.OnClose(func() error { closed++; return stderrors.New("already closed") })
		return nil
	})
	reg.DeclareModule("other", emptyModule)
	if err := reg.Preload(vm.NewRuntime(), "res"); err != nil {
		t.Fatal(err)
	}

	replacement := reg.DeclareModule("res", emptyModule)
	if closed != 1 {
		t.Fatalf("replaced module cleanup ran %d times, want 1", closed)
	}
	if nm, _ := reg.Module("res"); nm != replacement || nm.State() != lazy.StateUninitialized {
		t.Error("res should now be the unbuilt replacement")
	}
	if got := strings.Join(reg.Names(), ","); got != "other,res" {
		t.Errorf("names = %s", got)
	}

	if err := reg.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
	if closed != 1 {
		t.Errorf("cleanup ran %d times after Close, want 1", closed)
	}
}
