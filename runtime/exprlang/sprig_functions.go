package exprlang

import (
	"github.com/Masterminds/sprig/v3"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// sprigBridge exposes a curated, side-effect-free subset of sprig's string
// and list helpers as CEL functions, so the template dialect's {{ expr }}
// spans can call them without introducing a second function-call grammar
// (sprig.FuncMap() itself targets text/template pipelines, not CEL
// expressions — this bridges the real sprig implementations into CEL's
// function-registration mechanism rather than hand-rewriting them).
//
// Only pure string/list helpers are bridged: no "env", "expandenv", "date"
// (wall-clock), or filesystem helpers, since evaluation must stay
// side-effect-free and deterministic for replay.
var sprigBridge = buildSprigBridge()

func buildSprigBridge() cel.EnvOption {
	fm := sprig.FuncMap()

	upper := fm["upper"].(func(string) string)
	lower := fm["lower"].(func(string) string)
	trim := fm["trim"].(func(string) string)
	title := fm["title"].(func(string) string)
	trunc := fm["trunc"].(func(int, string) string)
	replace := fm["replace"].(func(string, string, string) string)
	defaultFn := fm["default"].(func(any, ...any) any)

	return cel.Lib(&sprigLib{
		funcs: map[string]func([]ref.Val) ref.Val{
			"upper": func(args []ref.Val) ref.Val { return types.String(upper(str(args[0]))) },
			"lower": func(args []ref.Val) ref.Val { return types.String(lower(str(args[0]))) },
			"trim":  func(args []ref.Val) ref.Val { return types.String(trim(str(args[0]))) },
			"title": func(args []ref.Val) ref.Val { return types.String(title(str(args[0]))) },
			"trunc": func(args []ref.Val) ref.Val {
				n := int(args[0].(types.Int))
				return types.String(trunc(n, str(args[1])))
			},
			"replace": func(args []ref.Val) ref.Val {
				return types.String(replace(str(args[0]), str(args[1]), str(args[2])))
			},
			"default": func(args []ref.Val) ref.Val {
				d := args[0].Value()
				v := args[1].Value()
				return types.DefaultTypeAdapter.NativeToValue(defaultFn(d, v))
			},
		},
	})
}

func str(v ref.Val) string {
	s, _ := v.Value().(string)
	return s
}

// sprigLib registers the bridged functions with the CEL environment as a
// single library so mustBuildEnv can add them with one cel.Library call.
type sprigLib struct {
	funcs map[string]func([]ref.Val) ref.Val
}

func (l *sprigLib) CompileOptions() []cel.EnvOption {
	opts := make([]cel.EnvOption, 0, len(l.funcs))
	sig := func(argc int) []*cel.Type {
		out := make([]*cel.Type, argc)
		for i := range out {
			out[i] = cel.DynType
		}
		return out
	}
	arities := map[string]int{
		"upper": 1, "lower": 1, "trim": 1, "title": 1,
		"trunc": 2, "replace": 3, "default": 2,
	}
	for name, fn := range l.funcs {
		fn := fn
		opts = append(opts, cel.Function(name,
			cel.Overload(name+"_overload", sig(arities[name]), cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return fn(args)
				}),
			),
		))
	}
	return opts
}

func (l *sprigLib) ProgramOptions() []cel.ProgramOption { return nil }
