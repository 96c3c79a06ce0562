package hostlib

import (
	"context"
	"net/netip"
	"regexp"
)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("::1/128"),
}

// attackPatterns are checked in order; the first match names the attack.
var attackPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"sql_injection", regexp.MustCompile(`(?i)(union\s+select|or\s+1\s*=\s*1|drop\s+table)`)},
	{"xss", regexp.MustCompile(`(?i)(<script|javascript:|onerror=)`)},
	{"path_traversal", regexp.MustCompile(`\.\./|\.\.\\`)},
	{"command_injection", regexp.MustCompile(`(;|\||&&|\$\()`)},
}

var strengthChecks = []*regexp.Regexp{
	regexp.MustCompile(`[A-Z]`),
	regexp.MustCompile(`[a-z]`),
	regexp.MustCompile(`[0-9]`),
	regexp.MustCompile(`[!@#$%^&*(),.?":|<>{}]`),
}

// IsPrivateIP reports whether addr is a loopback or RFC 1918/4193 address.
func IsPrivateIP(addr string) bool {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	for _, p := range privateRanges {
		if p.Contains(ip.Unmap()) {
			return true
		}
	}
	return false
}

// DetectAttack returns the name of the first attack pattern found in data.
func DetectAttack(data string) (string, bool) {
	for _, p := range attackPatterns {
		if p.re.MatchString(data) {
			return p.name, true
		}
	}
	return "", false
}

// PasswordStrength scores 0 to 6.
func PasswordStrength(pw string) int {
	score := 0
	if len(pw) >= 8 {
		score++
	}
	if len(pw) >= 12 {
		score++
	}
	for _, re := range strengthChecks {
		if re.MatchString(pw) {
			score++
		}
	}
	return score
}

func netModule() *Module {
	return &Module{Name: "net", Funcs: map[string]Func{
		"is_valid_ip": stringFunc(func(s string) (any, error) {
			_, err := netip.ParseAddr(s)
			return err == nil, nil
		}),
		"is_private_ip": stringFunc(func(s string) (any, error) {
			return IsPrivateIP(s), nil
		}),
		"in_cidr": func(_ context.Context, args []any) (any, error) {
			if err := arity(args, 2, 2); err != nil {
				return nil, err
			}
			addr, err := str(args, 0)
			if err != nil {
				return nil, err
			}
			cidr, err := str(args, 1)
			if err != nil {
				return nil, err
			}
			ip, err := netip.ParseAddr(addr)
			if err != nil {
				return nil, err
			}
			prefix, err := netip.ParsePrefix(cidr)
			if err != nil {
				return nil, err
			}
			return prefix.Contains(ip), nil
		},
		"detect_attack": stringFunc(func(s string) (any, error) {
			name, ok := DetectAttack(s)
			if !ok {
				return nil, nil
			}
			return name, nil
		}),
		"password_strength": stringFunc(func(s string) (any, error) {
			return float64(PasswordStrength(s)), nil
		}),
	}}
}
