package driver

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lazyhost/pkg/errors"
	"lazyhost/pkg/lazy"
	"lazyhost/pkg/vm"
)

// Registry holds the native modules available to scripts. Every module is
// exposed through its own lazy proxy, so declaring a module costs nothing
// until a script reads from it.
type Registry struct {
	modules map[string]*NativeModule
	order   []string
}

// Stats summarizes module materialization.
type Stats struct {
	Declared     int
	Materialized int
	Degenerate   int
}

func (s Stats) Pending() int {
	return s.Declared - s.Materialized - s.Degenerate
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*NativeModule)}
}

// DeclareModule registers a module built by builder on first use.
// Redeclaring a name replaces the previous module, running its cleanup if
// it was already built.
func (r *Registry) DeclareModule(name string, builder func(m *ModuleBuilder) error) *NativeModule {
	if existing, exists := r.modules[name]; exists {
		Logger().Warn("native module redeclared", zap.String("module", name))
		if existing.State() == lazy.StateMaterialized {
			for _, err := range existing.close() {
				Logger().Warn("closing replaced module", zap.String("module", name), zap.Error(err))
			}
		}
		r.forget(name)
	}
	nm := newNativeModule(name, builder)
	r.modules[name] = nm
	r.order = append(r.order, name)
	Logger().Debug("native module declared", zap.String("module", name))
	return nm
}

func (r *Registry) forget(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Registry) Module(name string) (*NativeModule, bool) {
	nm, ok := r.modules[name]
	return nm, ok
}

// Names returns the declared module names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require returns the proxy value for name. It never builds the module.
func (r *Registry) Require(name string) (vm.Value, error) {
	if nm, ok := r.modules[name]; ok {
		return nm.Value(), nil
	}
	return vm.Undefined, &errors.ModuleError{
		Module:     name,
		Msg:        "module not found",
		Suggestion: r.suggest(name),
	}
}

// suggest returns the declared name closest to name, if it is close enough
// to be a plausible typo.
func (r *Registry) suggest(name string) string {
	best, bestDist := "", -1
	for _, candidate := range r.Names() {
		d := levenshtein.ComputeDistance(name, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	limit := len(name) / 2
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}

// RequireFunction returns a native require(name) function for scripts.
func (r *Registry) RequireFunction() vm.Value {
	return vm.NewNativeFunction(1, false, "require", func(args []vm.Value) (vm.Value, error) {
		if len(args) == 0 || !args[0].IsString() {
			return vm.Undefined, &errors.TypeError{Msg: "require expects a module name"}
		}
		return r.Require(args[0].AsString())
	})
}

// ModulesObject returns a read-only object whose properties are the
// declared modules. Listing or reading it does not build any module.
func (r *Registry) ModulesObject() vm.Value {
	return vm.NewHostObject(&modulesHost{r: r})
}

// Install defines the require and modules globals on rt.
func (r *Registry) Install(rt *vm.Runtime) {
	rt.SetGlobal("require", r.RequireFunction())
	rt.SetGlobal("modules", r.ModulesObject())
}

// Preload builds the named modules now instead of on first use. Every name
// is attempted; failures are combined into the returned error.
func (r *Registry) Preload(rt *vm.Runtime, names ...string) error {
	var errs error
	for _, name := range names {
		v, err := r.Require(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := lazy.Unwrap(rt, v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("preload %s: %w", name, err))
		}
	}
	return errs
}

func (r *Registry) Stats() Stats {
	s := Stats{Declared: len(r.modules)}
	for _, nm := range r.modules {
		switch nm.State() {
		case lazy.StateMaterialized:
			s.Materialized++
		case lazy.StateDegenerate:
			s.Degenerate++
		}
	}
	return s
}

// Close runs the cleanup registered by every built module, last declared
// first.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		nm := r.modules[name]
		if len(nm.closers) == 0 {
			continue
		}
		errs = append(errs, nm.close()...)
		Logger().Debug("native module closed", zap.String("module", name))
	}
	return multierr.Combine(errs...)
}

type modulesHost struct {
	r *Registry
}

func (h *modulesHost) Get(rt *vm.Runtime, name vm.PropNameID) (vm.Value, error) {
	if nm, ok := h.r.modules[name.Text()]; ok {
		return nm.Value(), nil
	}
	return vm.Undefined, nil
}

func (h *modulesHost) Set(rt *vm.Runtime, name vm.PropNameID, value vm.Value) error {
	return &errors.TypeError{Msg: fmt.Sprintf("Cannot assign to read only property '%s' of modules", name.Text())}
}

func (h *modulesHost) GetPropertyNames(rt *vm.Runtime) ([]vm.PropNameID, error) {
	return vm.PropNameIDsFromStrings(h.r.Names()), nil
}
