package hostlib

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

func timeModule() *Module {
	return &Module{Name: "time", Funcs: map[string]Func{
		"now": func(context.Context, []any) (any, error) {
			return float64(time.Now().UnixMilli()) / 1000, nil
		},
		"iso": func(context.Context, []any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
		// format(seconds, layout) uses Go reference-time layouts.
		"format": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 1, 2); err != nil {
				return nil, err
			}
			secs, err := num(args, 0)
			if err != nil {
				return nil, err
			}
			layout := time.RFC3339
			if len(args) == 2 {
				if layout, err = str(args, 1); err != nil {
					return nil, err
				}
			}
			return unixTime(secs).UTC().Format(layout), nil
		},
		"ago": numberStringFunc(func(secs float64) string {
			return humanize.Time(unixTime(secs))
		}),
		"bytes": numberStringFunc(func(n float64) string {
			return humanize.Bytes(uint64(math.Max(n, 0)))
		}),
	}}
}

func unixTime(secs float64) time.Time {
	return time.UnixMilli(int64(secs * 1000))
}

func numberStringFunc(fn func(float64) string) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		f, err := num(args, 0)
		if err != nil {
			return nil, err
		}
		return fn(f), nil
	}
}

func mathModule() *Module {
	extreme := func(pick func(a, b float64) float64) Func {
		return func(_ context.Context, args []any) (any, error) {
			if len(args) == 1 {
				if l, ok := args[0].([]any); ok {
					args = l
				}
			}
			if len(args) == 0 {
				return nil, fmt.Errorf("expected at least one number")
			}
			best, err := num(args, 0)
			if err != nil {
				return nil, err
			}
			for i := 1; i < len(args); i++ {
				f, err := num(args, i)
				if err != nil {
					return nil, err
				}
				best = pick(best, f)
			}
			return best, nil
		}
	}
	return &Module{Name: "math", Funcs: map[string]Func{
		"abs":   numberFunc(math.Abs),
		"floor": numberFunc(math.Floor),
		"ceil":  numberFunc(math.Ceil),
		"round": numberFunc(math.Round),
		"sqrt":  numberFunc(math.Sqrt),
		"log":   numberFunc(math.Log),
		"pow": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 2, 2); err != nil {
				return nil, err
			}
			x, err := num(args, 0)
			if err != nil {
				return nil, err
			}
			y, err := num(args, 1)
			if err != nil {
				return nil, err
			}
			return math.Pow(x, y), nil
		},
		"min": extreme(math.Min),
		"max": extreme(math.Max),
		"pi":  func(context.Context, []any) (any, error) { return math.Pi, nil },
	}}
}

const (
	alphanumeric    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	passwordCharset = alphanumeric + "!@#$%^&*()"
)

// maxRandomLength bounds random.password and random.token.
const maxRandomLength = 1 << 20

func randomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("empty range")
	}
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(i.Int64()), nil
}

func randomString(charset string, n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		j, err := randomIndex(len(charset))
		if err != nil {
			return "", err
		}
		out[i] = charset[j]
	}
	return string(out), nil
}

func randomModule() *Module {
	return &Module{Name: "random", Funcs: map[string]Func{
		// int(min, max) is inclusive on both ends.
		"int": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 2, 2); err != nil {
				return nil, err
			}
			lo, err := num(args, 0)
			if err != nil {
				return nil, err
			}
			hi, err := num(args, 1)
			if err != nil {
				return nil, err
			}
			if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
				return nil, fmt.Errorf("bounds must be finite")
			}
			if hi < lo {
				return nil, fmt.Errorf("empty range [%v, %v]", lo, hi)
			}
			span := math.Floor(hi - lo)
			if span >= math.MaxInt64 {
				return nil, fmt.Errorf("range [%v, %v] is too wide", lo, hi)
			}
			i, err := randomIndex(int(span) + 1)
			if err != nil {
				return nil, err
			}
			return lo + float64(i), nil
		},
		"choice": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 1, 1); err != nil {
				return nil, err
			}
			l, ok := args[0].([]any)
			if !ok || len(l) == 0 {
				return nil, fmt.Errorf("expected a non-empty list")
			}
			i, err := randomIndex(len(l))
			if err != nil {
				return nil, err
			}
			return l[i], nil
		},
		"password": numberErrFunc(func(n float64) (any, error) {
			return randomString(passwordCharset, int(n))
		}),
		"token": numberErrFunc(func(n float64) (any, error) {
			return randomString(alphanumeric, int(n))
		}),
	}}
}

func numberErrFunc(fn func(float64) (any, error)) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		f, err := num(args, 0)
		if err != nil {
			return nil, err
		}
		if f < 0 {
			return nil, fmt.Errorf("length must not be negative")
		}
		if f > maxRandomLength || math.IsNaN(f) {
			return nil, fmt.Errorf("length must be at most %d", maxRandomLength)
		}
		return fn(f)
	}
}

func uuidModule() *Module {
	return &Module{Name: "uuid", Funcs: map[string]Func{
		"new": func(context.Context, []any) (any, error) {
			return uuid.NewString(), nil
		},
		"valid": stringFunc(func(s string) (any, error) {
			return uuid.Validate(s) == nil, nil
		}),
	}}
}
