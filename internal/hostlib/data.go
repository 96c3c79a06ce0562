package hostlib

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

func jsonModule() *Module {
	return &Module{Name: "json", Funcs: map[string]Func{
		"encode": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 1, 2); err != nil {
				return nil, err
			}
			var (
				b   []byte
				err error
			)
			if len(args) == 2 && args[1] == true {
				b, err = json.MarshalIndent(args[0], "", "  ")
			} else {
				b, err = json.Marshal(args[0])
			}
			if err != nil {
				return nil, err
			}
			return string(b), nil
		},
		"decode": stringFunc(func(s string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, err
			}
			return v, nil
		}),
	}}
}

func yamlModule() *Module {
	return &Module{Name: "yaml", Funcs: map[string]Func{
		"encode": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 1, 1); err != nil {
				return nil, err
			}
			b, err := yaml.Marshal(args[0])
			if err != nil {
				return nil, err
			}
			return string(b), nil
		},
		"decode": stringFunc(func(s string) (any, error) {
			var v any
			if err := yaml.Unmarshal([]byte(s), &v); err != nil {
				return nil, err
			}
			return normalize(v), nil
		}),
	}}
}

// normalize maps decoded YAML onto the plain value set.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func compile(args []any, i int) (*regexp.Regexp, error) {
	pattern, err := str(args, i)
	if err != nil {
		return nil, err
	}
	return regexp.Compile(pattern)
}

// regexFunc adapts func(re, text, rest) for (pattern, text, ...) calls.
func regexFunc(n int, fn func(re *regexp.Regexp, text string, args []any) (any, error)) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, n, n); err != nil {
			return nil, err
		}
		re, err := compile(args, 0)
		if err != nil {
			return nil, err
		}
		text, err := str(args, 1)
		if err != nil {
			return nil, err
		}
		return fn(re, text, args[2:])
	}
}

func regexModule() *Module {
	return &Module{Name: "regex", Funcs: map[string]Func{
		"match": regexFunc(2, func(re *regexp.Regexp, text string, _ []any) (any, error) {
			return re.MatchString(text), nil
		}),
		"find": regexFunc(2, func(re *regexp.Regexp, text string, _ []any) (any, error) {
			m := re.FindString(text)
			if m == "" && !re.MatchString(text) {
				return nil, nil
			}
			return m, nil
		}),
		"find_all": regexFunc(2, func(re *regexp.Regexp, text string, _ []any) (any, error) {
			out := []any{}
			for _, m := range re.FindAllString(text, -1) {
				out = append(out, m)
			}
			return out, nil
		}),
		"groups": regexFunc(2, func(re *regexp.Regexp, text string, _ []any) (any, error) {
			m := re.FindStringSubmatch(text)
			if m == nil {
				return nil, nil
			}
			out := make([]any, len(m))
			for i, g := range m {
				out[i] = g
			}
			return out, nil
		}),
		"replace": regexFunc(3, func(re *regexp.Regexp, text string, rest []any) (any, error) {
			repl, ok := rest[0].(string)
			if !ok {
				return nil, fmt.Errorf("argument 3 must be a string, got %T", rest[0])
			}
			return re.ReplaceAllString(text, repl), nil
		}),
	}}
}
