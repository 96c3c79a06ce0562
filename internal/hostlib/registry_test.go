package hostlib

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		module, fn string
		args       []any
		want       any
	}{
		{"crypto", "sha256", []any{"abc"}, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"crypto", "md5", []any{""}, "d41d8cd98f00b204e9800998ecf8427e"},
		{"encoding", "base64_encode", []any{"aegis"}, "YWVnaXM="},
		{"encoding", "base64_decode", []any{"YWVnaXM="}, "aegis"},
		{"encoding", "hex_encode", []any{"hi"}, "6869"},
		{"json", "encode", []any{map[string]any{"a": []any{1.0, "x"}}}, `{"a":[1,"x"]}`},
		{"json", "decode", []any{`{"n": 2, "l": [true, null]}`}, map[string]any{"n": 2.0, "l": []any{true, nil}}},
		{"yaml", "decode", []any{"port: 22\nhosts: [a, b]\n"}, map[string]any{"port": 22.0, "hosts": []any{"a", "b"}}},
		{"regex", "match", []any{`^\d+$`, "123"}, true},
		{"regex", "find_all", []any{`\d`, "a1b2"}, []any{"1", "2"}},
		{"regex", "replace", []any{`\s+`, "a  b", " "}, "a b"},
		{"regex", "groups", []any{`(\w+)@(\w+)`, "me@host"}, []any{"me@host", "me", "host"}},
		{"math", "max", []any{[]any{1.0, 5.0, 3.0}}, 5.0},
		{"math", "pow", []any{2.0, 10.0}, 1024.0},
		{"time", "format", []any{0.0, "2006-01-02"}, "1970-01-01"},
		{"time", "bytes", []any{2048.0}, "2.0 kB"},
		{"net", "is_private_ip", []any{"192.168.1.5"}, true},
		{"net", "is_private_ip", []any{"8.8.8.8"}, false},
		{"net", "in_cidr", []any{"10.1.2.3", "10.0.0.0/8"}, true},
		{"net", "detect_attack", []any{"1 OR 1=1"}, "sql_injection"},
		{"net", "detect_attack", []any{"hello"}, nil},
		{"net", "password_strength", []any{"Tr0ub4dor&3xyz"}, 6.0},
	}
	for _, tt := range tests {
		t.Run(tt.module+"."+tt.fn, func(t *testing.T) {
			got, err := r.Invoke(context.Background(), tt.module, tt.fn, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvokeErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", "x", nil)
	assert.EqualError(t, err, "unknown module 'nope'")

	_, err = r.Invoke(context.Background(), "crypto", "rot13", nil)
	assert.EqualError(t, err, "module 'crypto' has no function 'rot13'")

	_, err = r.Invoke(context.Background(), "crypto", "sha256", []any{1.0})
	assert.EqualError(t, err, "crypto.sha256: argument 1 must be a string, got float64")

	_, err = r.Invoke(context.Background(), "encoding", "base64_decode", []any{"!!"})
	assert.ErrorContains(t, err, "encoding.base64_decode:")
}

func TestRandomAndUUID(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		v, err := r.Invoke(ctx, "random", "int", []any{1.0, 3.0})
		require.NoError(t, err)
		assert.Contains(t, []any{1.0, 2.0, 3.0}, v)
	}

	pw, err := r.Invoke(ctx, "random", "password", []any{16.0})
	require.NoError(t, err)
	assert.Len(t, pw, 16)

	id, err := r.Invoke(ctx, "uuid", "new", nil)
	require.NoError(t, err)
	_, err = uuid.Parse(id.(string))
	assert.NoError(t, err)

	valid, err := r.Invoke(ctx, "uuid", "valid", []any{"not-a-uuid"})
	require.NoError(t, err)
	assert.Equal(t, false, valid)
}

func TestRandomRejectsBadRanges(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		fn   string
		args []any
		want string
	}{
		{"int too wide", "int", []any{0.0, 1e19}, "random.int: range [0, 1e+19] is too wide"},
		{"int spans int64", "int", []any{-1e18, 9.3e18}, "is too wide"},
		{"int empty", "int", []any{3.0, 1.0}, "random.int: empty range [3, 1]"},
		{"int infinite", "int", []any{0.0, math.Inf(1)}, "random.int: bounds must be finite"},
		{"int nan", "int", []any{math.NaN(), 1.0}, "random.int: bounds must be finite"},
		{"password huge", "password", []any{1e12}, "random.password: length must be at most 1048576"},
		{"token negative", "token", []any{-1.0}, "random.token: length must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(context.Background(), "random", tt.fn, tt.args)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	v, err := r.Invoke(context.Background(), "random", "int", []any{5.0, 5.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestInvokeRecoversPanics(t *testing.T) {
	r := NewRegistry()
	r.Add(&Module{Name: "broken", Funcs: map[string]Func{
		"index": func(_ context.Context, args []any) (any, error) {
			return args[3], nil
		},
	}})

	v, err := r.Invoke(context.Background(), "broken", "index", nil)
	assert.Nil(t, v)
	assert.ErrorContains(t, err, "broken.index: internal error:")
	assert.ErrorContains(t, err, "index out of range")
}

func TestModulesAndFunctions(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"crypto", "encoding", "json", "math", "net", "random", "regex", "time", "uuid", "yaml"}, r.Modules())
	assert.Contains(t, r.Functions("crypto"), "sha256")
	assert.Nil(t, r.Functions("missing"))
}
