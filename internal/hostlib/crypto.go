package hostlib

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
)

func digest(h func() hash.Hash) Func {
	return stringFunc(func(s string) (any, error) {
		d := h()
		d.Write([]byte(s))
		return hex.EncodeToString(d.Sum(nil)), nil
	})
}

func cryptoModule() *Module {
	return &Module{Name: "crypto", Funcs: map[string]Func{
		"md5":    digest(md5.New),
		"sha1":   digest(sha1.New),
		"sha256": digest(sha256.New),
		"sha512": digest(sha512.New),
		"hmac_sha256": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 2, 2); err != nil {
				return nil, err
			}
			key, err := str(args, 0)
			if err != nil {
				return nil, err
			}
			msg, err := str(args, 1)
			if err != nil {
				return nil, err
			}
			mac := hmac.New(sha256.New, []byte(key))
			mac.Write([]byte(msg))
			return hex.EncodeToString(mac.Sum(nil)), nil
		},
	}}
}

func encodingModule() *Module {
	return &Module{Name: "encoding", Funcs: map[string]Func{
		"base64_encode": stringFunc(func(s string) (any, error) {
			return base64.StdEncoding.EncodeToString([]byte(s)), nil
		}),
		"base64_decode": stringFunc(func(s string) (any, error) {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}),
		"hex_encode": stringFunc(func(s string) (any, error) {
			return hex.EncodeToString([]byte(s)), nil
		}),
		"hex_decode": stringFunc(func(s string) (any, error) {
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}),
	}}
}
