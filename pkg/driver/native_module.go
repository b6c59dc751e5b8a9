package driver

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"lazyhost/pkg/errors"
	"lazyhost/pkg/lazy"
	"lazyhost/pkg/vm"
)

// exportSet collects named values in declaration order.
type exportSet struct {
	keys   []string
	values map[string]vm.Value
}

func newExportSet() exportSet {
	return exportSet{values: make(map[string]vm.Value)}
}

func (e *exportSet) set(name string, value vm.Value) {
	if _, exists := e.values[name]; !exists {
		e.keys = append(e.keys, name)
	}
	e.values[name] = value
}

func (e *exportSet) object() vm.Value {
	return vm.NewObjectFromMap(e.keys, e.values)
}

// ModuleBuilder provides the declarative API for building native modules.
// A builder only runs when a script first touches the module.
type ModuleBuilder struct {
	exportSet
	name    string
	rt      *vm.Runtime
	closers []func() error
}

// NamespaceBuilder provides API for building namespaces within modules
type NamespaceBuilder struct {
	exportSet
}

// NativeModule represents a module declared in Go code. Scripts see it
// through a lazy proxy, so its builder runs at most once and only on
// first use.
type NativeModule struct {
	name    string
	builder func(m *ModuleBuilder) error
	proxy   *lazy.Object
	value   vm.Value
	exports []string
	closers []func() error
}

func newNativeModule(name string, builder func(m *ModuleBuilder) error) *NativeModule {
	nm := &NativeModule{name: name, builder: builder}
	nm.proxy = lazy.New(nm.initialize, lazy.WithName(name))
	nm.value = vm.NewHostObject(nm.proxy)
	return nm
}

func (nm *NativeModule) Name() string { return nm.name }

// Value returns the script value for the module. Handing it out does not
// build the module.
func (nm *NativeModule) Value() vm.Value { return nm.value }

func (nm *NativeModule) State() lazy.State { return nm.proxy.State() }

// Exports returns the exported names once the module has been built.
func (nm *NativeModule) Exports() []string {
	out := make([]string, len(nm.exports))
	copy(out, nm.exports)
	return out
}

// initialize is the lazy.Initializer for the module proxy.
func (nm *NativeModule) initialize(rt *vm.Runtime) (vm.Value, error) {
	Logger().Debug("building native module", zap.String("module", nm.name))
	builder := &ModuleBuilder{
		exportSet: newExportSet(),
		name:      nm.name,
		rt:        rt,
	}
	if err := nm.builder(builder); err != nil {
		for i := len(builder.closers) - 1; i >= 0; i-- {
			if closeErr := builder.closers[i](); closeErr != nil {
				Logger().Warn("native module cleanup failed",
					zap.String("module", nm.name),
					zap.Error(closeErr))
			}
		}
		return vm.Undefined, (&errors.ModuleError{Module: nm.name, Msg: "initialization failed"}).CausedBy(err)
	}
	nm.exports = builder.keys
	nm.closers = builder.closers
	Logger().Info("native module ready",
		zap.String("module", nm.name),
		zap.Int("exports", len(builder.keys)))
	return builder.object(), nil
}

// close runs the module's cleanup functions in reverse registration order.
func (nm *NativeModule) close() []error {
	var errs []error
	for i := len(nm.closers) - 1; i >= 0; i-- {
		if err := nm.closers[i](); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", nm.name, err))
		}
	}
	nm.closers = nil
	return errs
}

// Name returns the module being built.
func (m *ModuleBuilder) Name() string { return m.name }

// Runtime returns the runtime the module is being built for.
func (m *ModuleBuilder) Runtime() *vm.Runtime { return m.rt }

// Const adds a constant to the module
func (m *ModuleBuilder) Const(name string, value interface{}) *ModuleBuilder {
	m.set(name, goValueToVM(value))
	return m
}

// Function adds a function to the module
func (m *ModuleBuilder) Function(name string, fn interface{}) *ModuleBuilder {
	m.set(name, goFunctionToVM(name, fn))
	return m
}

// Value adds an already converted value to the module
func (m *ModuleBuilder) Value(name string, value vm.Value) *ModuleBuilder {
	m.set(name, value)
	return m
}

// Namespace creates a namespace within the module
func (m *ModuleBuilder) Namespace(name string, builder func(ns *NamespaceBuilder)) *ModuleBuilder {
	ns := &NamespaceBuilder{exportSet: newExportSet()}
	builder(ns)
	m.set(name, ns.object())
	return m
}

// LazyNamespace creates a namespace that is itself built on first access.
func (m *ModuleBuilder) LazyNamespace(name string, builder func(ns *NamespaceBuilder)) *ModuleBuilder {
	label := m.name + "." + name
	m.set(name, lazy.NewValue(func(rt *vm.Runtime) (vm.Value, error) {
		ns := &NamespaceBuilder{exportSet: newExportSet()}
		builder(ns)
		return ns.object(), nil
	}, lazy.WithName(label)))
	return m
}

// OnClose registers fn to run when the owning registry is closed.
func (m *ModuleBuilder) OnClose(fn func() error) *ModuleBuilder {
	m.closers = append(m.closers, fn)
	return m
}

func (ns *NamespaceBuilder) Const(name string, value interface{}) *NamespaceBuilder {
	ns.set(name, goValueToVM(value))
	return ns
}

func (ns *NamespaceBuilder) Function(name string, fn interface{}) *NamespaceBuilder {
	ns.set(name, goFunctionToVM(name, fn))
	return ns
}

func (ns *NamespaceBuilder) Value(name string, value vm.Value) *NamespaceBuilder {
	ns.set(name, value)
	return ns
}

// Global helper functions for type/value conversion

var (
	valueType = reflect.TypeOf(vm.Value{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// goValueToVM converts a Go value to a VM value
func goValueToVM(value interface{}) vm.Value {
	if value == nil {
		return vm.Null
	}
	if v, ok := value.(vm.Value); ok {
		return v
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Func {
		return goFunctionToVM("", value)
	}
	return reflectValueToVM(rv)
}

// goFunctionToVM converts a Go function to a VM native function using reflection.
// A trailing error result is returned to the caller as a RuntimeError.
func goFunctionToVM(name string, fn interface{}) vm.Value {
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()
	if fnType.Kind() != reflect.Func {
		return vm.Undefined
	}
	returnsError := fnType.NumOut() > 0 && fnType.Out(fnType.NumOut()-1) == errorType

	return vm.NewNativeFunction(fnType.NumIn(), fnType.IsVariadic(), name, func(args []vm.Value) (vm.Value, error) {
		goArgs := make([]reflect.Value, 0, len(args))
		for i := 0; i < fnType.NumIn(); i++ {
			paramType := fnType.In(i)
			if fnType.IsVariadic() && i == fnType.NumIn()-1 {
				elemType := paramType.Elem()
				for j := i; j < len(args); j++ {
					goArgs = append(goArgs, vmValueToReflectValue(args[j], elemType))
				}
				break
			}
			if i < len(args) {
				goArgs = append(goArgs, vmValueToReflectValue(args[i], paramType))
			} else {
				// Add missing arguments as zero values
				goArgs = append(goArgs, reflect.Zero(paramType))
			}
		}

		results := fnValue.Call(goArgs)

		if returnsError {
			if errVal := results[len(results)-1]; !errVal.IsNil() {
				err := errVal.Interface().(error)
				return vm.Undefined, (&errors.RuntimeError{Msg: fmt.Sprintf("%s failed", displayName(name))}).CausedBy(err)
			}
			results = results[:len(results)-1]
		}
		if len(results) > 0 {
			return reflectValueToVM(results[0]), nil
		}
		return vm.Undefined, nil
	})
}

func displayName(name string) string {
	if name == "" {
		return "native function"
	}
	return name
}

// vmValueToReflectValue converts a VM value to a reflect.Value for function calls
func vmValueToReflectValue(vmVal vm.Value, targetType reflect.Type) reflect.Value {
	if targetType == valueType {
		return reflect.ValueOf(vmVal)
	}
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(vmVal.ToString()).Convert(targetType)
	case reflect.Float64, reflect.Float32,
		reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8,
		reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8:
		f := vmVal.ToFloat()
		if f != f { // NaN converts to the zero value
			f = 0
		}
		return reflect.ValueOf(f).Convert(targetType)
	case reflect.Bool:
		return reflect.ValueOf(vmVal.IsTruthy()).Convert(targetType)
	case reflect.Slice:
		if !vmVal.IsArray() {
			return reflect.Zero(targetType)
		}
		arr := vmVal.AsArray()
		out := reflect.MakeSlice(targetType, arr.Length(), arr.Length())
		for i := 0; i < arr.Length(); i++ {
			out.Index(i).Set(vmValueToReflectValue(arr.Get(i), targetType.Elem()))
		}
		return out
	case reflect.Map:
		if targetType.Key().Kind() != reflect.String || !vmVal.IsObject() {
			return reflect.Zero(targetType)
		}
		obj := vmVal.AsPlainObject()
		out := reflect.MakeMap(targetType)
		for _, k := range obj.OwnKeys() {
			v, _ := obj.GetOwn(k)
			out.SetMapIndex(reflect.ValueOf(k).Convert(targetType.Key()), vmValueToReflectValue(v, targetType.Elem()))
		}
		return out
	case reflect.Interface:
		exported := exportValue(vmVal)
		if exported == nil {
			return reflect.Zero(targetType)
		}
		rv := reflect.ValueOf(exported)
		if !rv.Type().AssignableTo(targetType) {
			return reflect.Zero(targetType)
		}
		return rv
	default:
		return reflect.Zero(targetType)
	}
}

// exportValue converts a VM value to the natural Go representation.
func exportValue(v vm.Value) interface{} {
	switch v.Type() {
	case vm.TypeUndefined, vm.TypeNull:
		return nil
	case vm.TypeString:
		return v.AsString()
	case vm.TypeNumber:
		return v.AsFloat()
	case vm.TypeBoolean:
		return v.AsBoolean()
	case vm.TypeArray:
		arr := v.AsArray()
		out := make([]interface{}, arr.Length())
		for i := range out {
			out[i] = exportValue(arr.Get(i))
		}
		return out
	case vm.TypeObject:
		obj := v.AsPlainObject()
		out := make(map[string]interface{})
		for _, k := range obj.OwnKeys() {
			val, _ := obj.GetOwn(k)
			out[k] = exportValue(val)
		}
		return out
	default:
		return v
	}
}

// reflectValueToVM converts a reflect.Value to a VM value
func reflectValueToVM(reflectVal reflect.Value) vm.Value {
	if !reflectVal.IsValid() {
		return vm.Undefined
	}
	if reflectVal.Type() == valueType {
		return reflectVal.Interface().(vm.Value)
	}

	switch reflectVal.Kind() {
	case reflect.String:
		return vm.NewString(reflectVal.String())
	case reflect.Float64, reflect.Float32:
		return vm.NumberValue(reflectVal.Float())
	case reflect.Int, reflect.Int64, reflect.Int32, reflect.Int16, reflect.Int8:
		return vm.NumberValue(float64(reflectVal.Int()))
	case reflect.Uint, reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8:
		return vm.NumberValue(float64(reflectVal.Uint()))
	case reflect.Bool:
		return vm.BooleanValue(reflectVal.Bool())
	case reflect.Slice, reflect.Array:
		if reflectVal.Kind() == reflect.Slice && reflectVal.IsNil() {
			return vm.Null
		}
		elems := make([]vm.Value, reflectVal.Len())
		for i := range elems {
			elems[i] = reflectValueToVM(reflectVal.Index(i))
		}
		return vm.NewArrayWithArgs(elems)
	case reflect.Map:
		if reflectVal.IsNil() {
			return vm.Null
		}
		keys := make([]string, 0, reflectVal.Len())
		props := make(map[string]vm.Value, reflectVal.Len())
		for _, key := range reflectVal.MapKeys() {
			keyStr := reflectValueToVM(key).ToString()
			keys = append(keys, keyStr)
			props[keyStr] = reflectValueToVM(reflectVal.MapIndex(key))
		}
		sort.Strings(keys)
		return vm.NewObjectFromMap(keys, props)
	case reflect.Func:
		if reflectVal.IsNil() {
			return vm.Null
		}
		return goFunctionToVM("", reflectVal.Interface())
	case reflect.Interface, reflect.Ptr:
		if reflectVal.IsNil() {
			return vm.Null
		}
		return reflectValueToVM(reflectVal.Elem())
	case reflect.Struct:
		return structToVM(reflectVal)
	default:
		return vm.Undefined
	}
}

// structToVM snapshots the exported fields of a struct, honouring json tags.
func structToVM(structVal reflect.Value) vm.Value {
	structType := structVal.Type()
	exports := newExportSet()
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		propName := jsonPropertyName(field)
		if propName == "" {
			continue
		}
		exports.set(propName, reflectValueToVM(structVal.Field(i)))
	}
	return exports.object()
}

// jsonPropertyName extracts the property name from JSON tags or uses the field name
func jsonPropertyName(field reflect.StructField) string {
	if jsonTag := field.Tag.Get("json"); jsonTag != "" {
		name := strings.TrimSpace(strings.Split(jsonTag, ",")[0])
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	}
	return field.Name
}

// ValueConverter handles conversion between Go values and VM values for
// embedders that build module values by hand.
type ValueConverter struct{}

func NewValueConverter() *ValueConverter {
	return &ValueConverter{}
}

func (vc *ValueConverter) ToVM(goValue interface{}) vm.Value {
	return goValueToVM(goValue)
}

// Export converts v into plain Go data: nil, string, float64, bool,
// []interface{} and map[string]interface{}. Other values are returned as is.
func (vc *ValueConverter) Export(v vm.Value) interface{} {
	return exportValue(v)
}
