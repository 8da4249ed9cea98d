package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/nslaift/nslaift/internal/core/protocol"
)

// RunLisp evaluates src in a zygomys sandbox. The builtins map onto the
// command verbs:
//
//	(create "name" "kind" ["params"])
//	(manipulate "name" "action" ["params"])
//	(render [iterations])
//	(delete "name")
//	(material "name" "type")
//	(background r g b)
//	(clear)
//
// The first failing builtin aborts the program.
func (r *Runner) RunLisp(ctx context.Context, src string) (Report, error) {
	var report Report
	if strings.TrimSpace(src) == "" {
		return report, nil
	}

	env := zygo.NewZlispSandbox()
	defer env.Stop()

	run := func(cmd protocol.Command) (zygo.Sexp, error) {
		report.Executed++
		if err := r.executor.Run(ctx, cmd); err != nil {
			code := protocol.GetErrorCode(err)
			report.Failures = append(report.Failures, Failure{Command: cmd.String(), Code: code})
			return zygo.SexpNull, fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		return zygo.SexpNull, nil
	}

	env.AddFunction("create", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := stringArgs(name, args, 2, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		cmd := protocol.Command{Verb: protocol.VerbCreateObject, Target: s[0], Action: s[1]}
		if len(s) == 3 {
			cmd.Params = s[2]
		}
		return run(cmd)
	})

	env.AddFunction("manipulate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := stringArgs(name, args, 2, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		cmd := protocol.Command{Verb: protocol.VerbManipulateObject, Target: s[0], Action: s[1]}
		if len(s) == 3 {
			cmd.Params = s[2]
		}
		return run(cmd)
	})

	env.AddFunction("render", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		iterations := 1
		switch len(args) {
		case 0:
		case 1:
			n, ok := args[0].(*zygo.SexpInt)
			if !ok || n.Val < 1 {
				return zygo.SexpNull, fmt.Errorf("render: iterations must be a positive integer, got %s", args[0].SexpString(nil))
			}
			iterations = int(n.Val)
		default:
			return zygo.SexpNull, fmt.Errorf("render takes at most one argument")
		}
		return run(protocol.Command{Verb: protocol.VerbRender, Iterations: iterations})
	})

	env.AddFunction("delete", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := stringArgs(name, args, 1, 1)
		if err != nil {
			return zygo.SexpNull, err
		}
		return run(protocol.Command{Verb: protocol.VerbDeleteObject, Target: s[0]})
	})

	env.AddFunction("material", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := stringArgs(name, args, 2, 2)
		if err != nil {
			return zygo.SexpNull, err
		}
		return run(protocol.Command{Verb: protocol.VerbSetMaterial, Target: s[0], Params: s[1]})
	})

	env.AddFunction("background", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("background requires r g b")
		}
		parts := make([]string, 3)
		for i, a := range args {
			v, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("background: %w", err)
			}
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return run(protocol.Command{Verb: protocol.VerbSetBackgroundColor, Params: strings.Join(parts, ",")})
	})

	env.AddFunction("clear", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return zygo.SexpNull, fmt.Errorf("clear takes no arguments")
		}
		return run(protocol.Command{Verb: protocol.VerbClear})
	})

	if err := env.LoadString(src); err != nil {
		return report, fmt.Errorf("load script: %w", err)
	}
	if _, err := env.Run(); err != nil {
		return report, fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}
	return report, nil
}

// stringArgs converts between lo and hi arguments to Go strings. Numbers
// are accepted and formatted so that (create "s" "sphere" 0.5) works.
func stringArgs(name string, args []zygo.Sexp, lo, hi int) ([]string, error) {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return nil, fmt.Errorf("%s takes %d arguments, got %d", name, lo, len(args))
		}
		return nil, fmt.Errorf("%s takes %d to %d arguments, got %d", name, lo, hi, len(args))
	}
	out := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *zygo.SexpStr:
			out[i] = v.S
		case *zygo.SexpInt:
			out[i] = strconv.FormatInt(v.Val, 10)
		case *zygo.SexpFloat:
			out[i] = strconv.FormatFloat(v.Val, 'g', -1, 64)
		default:
			return nil, fmt.Errorf("%s: argument %d: expected string, got %T (%s)", name, i+1, a, a.SexpString(nil))
		}
	}
	return out, nil
}

// toFloat64 extracts a float64 from a SexpInt or SexpFloat.
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}
