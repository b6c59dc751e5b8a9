package driver

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"lazyhost/pkg/config"
	"lazyhost/pkg/errors"
	"lazyhost/pkg/gojabridge"
	"lazyhost/pkg/vm"
)

// Session ties a host runtime, its module registry and a goja engine
// together. Scripts see require, modules, process and console globals.
type Session struct {
	cfg      config.Config
	registry *Registry
	rt       *vm.Runtime
	bridge   *gojabridge.Bridge
	stdout   io.Writer
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStdout redirects console output.
func WithStdout(w io.Writer) SessionOption {
	return func(s *Session) { s.stdout = w }
}

// WithRegistry uses reg instead of a registry of builtin modules.
func WithRegistry(reg *Registry) SessionOption {
	return func(s *Session) { s.registry = reg }
}

// NewSession creates a session. argv becomes process.argv. No module is
// built here; that happens on first use or through Preload.
func NewSession(cfg config.Config, argv []string, opts ...SessionOption) (*Session, error) {
	s := &Session{cfg: cfg, stdout: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
		RegisterBuiltinModules(s.registry, cfg)
	}

	s.rt = vm.NewRuntime()
	s.registry.Install(s.rt)
	process := NewProcessInitializer(argv)
	process.Stdout = s.stdout
	s.rt.SetGlobal(process.Name(), process.Value())
	s.rt.SetGlobal("console", consoleObject(s.rt, s.stdout))

	s.bridge = gojabridge.New(goja.New(), s.rt)
	global := s.rt.Global().AsPlainObject()
	for _, name := range global.OwnKeys() {
		v, _ := global.GetOwn(name)
		if err := s.bridge.Install(name, v); err != nil {
			return nil, fmt.Errorf("install global %s: %w", name, err)
		}
	}

	Logger().Debug("session created",
		zap.String("runtime", s.rt.ID()),
		zap.Strings("modules", s.registry.Names()))
	return s, nil
}

func (s *Session) Registry() *Registry { return s.registry }

func (s *Session) Runtime() *vm.Runtime { return s.rt }

func (s *Session) Bridge() *gojabridge.Bridge { return s.bridge }

// Preload builds the configured preload modules plus names.
func (s *Session) Preload(names ...string) error {
	all := append(append([]string{}, s.cfg.Modules.Preload...), names...)
	if len(all) == 0 {
		return nil
	}
	return s.registry.Preload(s.rt, all...)
}

// RunString evaluates source and returns its completion value.
func (s *Session) RunString(source string) (vm.Value, error) {
	return s.run("<eval>", source)
}

// RunFile evaluates the script at filename.
func (s *Session) RunFile(filename string) (vm.Value, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return vm.Undefined, fmt.Errorf("read script: %w", err)
	}
	return s.run(filename, string(source))
}

func (s *Session) run(name, source string) (vm.Value, error) {
	res, err := s.bridge.JS.RunScript(name, source)
	if err != nil {
		var hostErr errors.HostError
		if stderrors.As(err, &hostErr) {
			return vm.Undefined, hostErr
		}
		return vm.Undefined, err
	}
	return s.bridge.FromGoja(res), nil
}

// DisplayResult prints value, or err if set, and reports success.
func (s *Session) DisplayResult(w io.Writer, value vm.Value, err error) bool {
	if err != nil {
		errors.DisplayErrors(w, []error{err})
		return false
	}
	if value.IsUndefined() {
		return true
	}
	fmt.Fprintln(w, s.rt.Inspect(value))
	return true
}

// Close releases resources held by built modules.
func (s *Session) Close() error {
	return s.registry.Close()
}

func consoleObject(rt *vm.Runtime, w io.Writer) vm.Value {
	logFn := func(prefix string) vm.Value {
		return vm.NewNativeFunction(0, true, "log", func(args []vm.Value) (vm.Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = rt.Inspect(a)
			}
			fmt.Fprintln(w, prefix+strings.Join(parts, " "))
			return vm.Undefined, nil
		})
	}
	return vm.NewObjectFromMap([]string{"log", "warn", "error"}, map[string]vm.Value{
		"log":   logFn(""),
		"warn":  logFn("warn: "),
		"error": logFn("error: "),
	})
}
