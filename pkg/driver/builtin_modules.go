package driver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"lazyhost/pkg/config"
	"lazyhost/pkg/store"
	"lazyhost/pkg/vm"
)

// RegisterBuiltinModules declares the standard modules that are not listed
// in cfg.Modules.Disabled.
func RegisterBuiltinModules(reg *Registry, cfg config.Config) {
	builtins := []struct {
		name    string
		builder func(m *ModuleBuilder) error
	}{
		{"math", mathModule},
		{"text", textModule},
		{"uuid", uuidModule},
		{"kv", kvModule(cfg.KV.Path)},
	}
	for _, b := range builtins {
		if !cfg.ModuleEnabled(b.name) {
			Logger().Debug("builtin module disabled", zap.String("module", b.name))
			continue
		}
		reg.DeclareModule(b.name, b.builder)
	}
}

// mathModule defines numeric helpers
func mathModule(m *ModuleBuilder) error {
	m.Const("PI", math.Pi)
	m.Const("E", math.E)
	m.Const("SQRT2", math.Sqrt2)

	m.Function("abs", math.Abs)
	m.Function("floor", math.Floor)
	m.Function("ceil", math.Ceil)
	m.Function("sqrt", math.Sqrt)
	m.Function("pow", math.Pow)
	m.Function("round", func(x float64, places int) float64 {
		scale := math.Pow(10, float64(places))
		return math.Round(x*scale) / scale
	})
	m.Function("clamp", func(x, lo, hi float64) float64 {
		return math.Min(math.Max(x, lo), hi)
	})
	m.Function("min", func(values ...float64) float64 {
		if len(values) == 0 {
			return math.Inf(1)
		}
		out := values[0]
		for _, v := range values[1:] {
			out = math.Min(out, v)
		}
		return out
	})
	m.Function("max", func(values ...float64) float64 {
		if len(values) == 0 {
			return math.Inf(-1)
		}
		out := values[0]
		for _, v := range values[1:] {
			out = math.Max(out, v)
		}
		return out
	})
	m.Function("sum", func(values []float64) float64 {
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	})
	return nil
}

// textModule defines string helpers. Patterns use ECMAScript regex syntax.
func textModule(m *ModuleBuilder) error {
	compiled := make(map[string]*regexp2.Regexp)
	compile := func(pattern string) (*regexp2.Regexp, error) {
		if re, ok := compiled[pattern]; ok {
			return re, nil
		}
		re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		compiled[pattern] = re
		return re, nil
	}

	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	title := cases.Title(language.Und)

	m.Function("upper", func(s string) string { return upper.String(s) })
	m.Function("lower", func(s string) string { return lower.String(s) })
	m.Function("title", func(s string) string { return title.String(s) })
	m.Function("split", func(s, sep string) []string { return strings.Split(s, sep) })
	m.Function("distance", func(a, b string) int { return levenshtein.ComputeDistance(a, b) })

	m.Function("normalize", func(s, form string) (string, error) {
		switch strings.ToUpper(form) {
		case "", "NFC":
			return norm.NFC.String(s), nil
		case "NFD":
			return norm.NFD.String(s), nil
		case "NFKC":
			return norm.NFKC.String(s), nil
		case "NFKD":
			return norm.NFKD.String(s), nil
		default:
			return "", fmt.Errorf("unknown normalization form %q", form)
		}
	})

	m.Function("test", func(pattern, s string) (bool, error) {
		re, err := compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s)
	})

	m.Function("replace", func(pattern, s, replacement string) (string, error) {
		re, err := compile(pattern)
		if err != nil {
			return "", err
		}
		return re.Replace(s, replacement, -1, -1)
	})

	m.Function("findAll", func(pattern, s string) ([]string, error) {
		re, err := compile(pattern)
		if err != nil {
			return nil, err
		}
		matches := []string{}
		match, err := re.FindStringMatch(s)
		for match != nil && err == nil {
			matches = append(matches, match.String())
			match, err = re.FindNextMatch(match)
		}
		return matches, err
	})
	return nil
}

func uuidModule(m *ModuleBuilder) error {
	m.Const("NIL", uuid.Nil.String())
	m.Function("v4", func() string { return uuid.NewString() })
	m.Function("v7", func() (string, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	})
	m.Function("parse", func(s string) (string, error) {
		id, err := uuid.Parse(s)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	})
	m.Function("valid", func(s string) bool {
		return uuid.Validate(s) == nil
	})
	m.Function("version", func(s string) (int, error) {
		id, err := uuid.Parse(s)
		if err != nil {
			return 0, err
		}
		return int(id.Version()), nil
	})
	return nil
}

// kvModule opens the sqlite store at path when a script first uses kv.
func kvModule(path string) func(m *ModuleBuilder) error {
	return func(m *ModuleBuilder) error {
		kv, err := store.OpenKV(path)
		if err != nil {
			return err
		}
		m.OnClose(kv.Close)

		ctx := context.Background()
		m.Const("path", kv.Path())
		m.Function("get", func(key string) (vm.Value, error) {
			value, ok, err := kv.Get(ctx, key)
			if err != nil || !ok {
				return vm.Null, err
			}
			return vm.NewString(value), nil
		})
		m.Function("set", func(key, value string) error {
			return kv.Set(ctx, key, value)
		})
		m.Function("delete", func(key string) (bool, error) {
			return kv.Delete(ctx, key)
		})
		m.Function("keys", func() ([]string, error) {
			return kv.Keys(ctx)
		})
		return nil
	}
}
