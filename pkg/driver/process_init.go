package driver

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"lazyhost/pkg/lazy"
	"lazyhost/pkg/vm"
)

// ProcessInitializer builds the Node.js-style process global. The object is
// lazy: nothing below runs until a script reads from process.
type ProcessInitializer struct {
	Argv    []string
	Version string
	Stdout  io.Writer
	Stderr  io.Writer
	// Exit is called by process.exit. Defaults to os.Exit.
	Exit func(code int)
}

// NewProcessInitializer creates a new ProcessInitializer with the given argv
func NewProcessInitializer(argv []string) *ProcessInitializer {
	return &ProcessInitializer{
		Argv:    argv,
		Version: "v0.1.0",
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Exit:    os.Exit,
	}
}

func (p *ProcessInitializer) Name() string {
	return "process"
}

// Value returns the lazy process object.
func (p *ProcessInitializer) Value() vm.Value {
	return lazy.NewValue(p.build, lazy.WithName(p.Name()))
}

func (p *ProcessInitializer) build(rt *vm.Runtime) (vm.Value, error) {
	argv := make([]vm.Value, len(p.Argv))
	for i, a := range p.Argv {
		argv[i] = vm.NewString(a)
	}

	env := vm.NewObject(vm.Undefined)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env.AsPlainObject().SetOwn(key, vm.NewString(value))
		}
	}

	process := vm.NewObject(vm.Undefined)
	obj := process.AsPlainObject()
	obj.SetOwn("argv", vm.NewArrayWithArgs(argv))
	obj.SetOwn("platform", vm.NewString(runtime.GOOS))
	obj.SetOwn("arch", vm.NewString(runtime.GOARCH))
	obj.SetOwn("version", vm.NewString(p.Version))
	obj.SetOwn("pid", vm.NumberValue(float64(os.Getpid())))
	obj.SetOwn("runtimeId", vm.NewString(rt.ID()))
	obj.SetOwn("env", env)
	obj.SetOwn("stdout", writerObject(p.Stdout))
	obj.SetOwn("stderr", writerObject(p.Stderr))

	// process.cwd()
	obj.SetOwn("cwd", vm.NewNativeFunction(0, false, "cwd", func(args []vm.Value) (vm.Value, error) {
		cwd, err := os.Getwd()
		if err != nil {
			return vm.NewString(""), nil
		}
		return vm.NewString(cwd), nil
	}))

	// process.exit(code)
	obj.SetOwn("exit", vm.NewNativeFunction(1, false, "exit", func(args []vm.Value) (vm.Value, error) {
		code := 0
		if len(args) > 0 && args[0].IsNumber() {
			code = int(args[0].ToFloat())
		}
		p.Exit(code)
		return vm.Undefined, nil
	}))

	obj.SetOwn("memoryUsage", vm.NewNativeFunction(0, false, "memoryUsage", func(args []vm.Value) (vm.Value, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return vm.NewObjectFromMap([]string{"heapUsed", "heapTotal", "rss"}, map[string]vm.Value{
			"heapUsed":  vm.NumberValue(float64(m.HeapAlloc)),
			"heapTotal": vm.NumberValue(float64(m.HeapSys)),
			"rss":       vm.NumberValue(float64(m.Sys)),
		}), nil
	}))

	return process, nil
}

func writerObject(w io.Writer) vm.Value {
	return vm.NewObjectFromMap([]string{"write"}, map[string]vm.Value{
		"write": vm.NewNativeFunction(1, false, "write", func(args []vm.Value) (vm.Value, error) {
			if len(args) > 0 {
				if _, err := fmt.Fprint(w, args[0].ToString()); err != nil {
					return vm.False, err
				}
			}
			return vm.True, nil
		}),
	})
}
