package actions

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"aegis/internal/hostlib"
	"aegis/internal/security"

	"github.com/google/uuid"
)

// Simulator holds the state behind the default handlers.
type Simulator struct {
	Firewall *Firewall

	mu          sync.Mutex
	monitored   map[string]time.Time
	quarantined map[string]time.Time
	traces      []string

	alerts AlertSink
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Simulator)

func WithAlertSink(sink AlertSink) Option {
	return func(s *Simulator) { s.alerts = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		monitored:   make(map[string]time.Time),
		quarantined: make(map[string]time.Time),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alerts == nil {
		s.alerts = LogSink{Logger: s.logger}
	}
	s.Firewall = NewFirewall(s.now)
	return s
}

// Register installs the default handlers.
func (s *Simulator) Register(reg *security.Registry) {
	reg.RegisterFunc(security.Any, "firewall enable", s.firewallSwitch(true))
	reg.RegisterFunc(security.Any, "firewall disable", s.firewallSwitch(false))
	reg.RegisterFunc(security.Any, "firewall status", s.firewallStatus)
	reg.RegisterFunc(security.Any, "alert", s.alert)

	reg.RegisterFunc(security.Blue, "block ip", s.rule("DROP"))
	reg.RegisterFunc(security.Blue, "allow ip", s.rule("ACCEPT"))
	reg.RegisterFunc(security.Blue, "monitor", s.monitor)
	reg.RegisterFunc(security.Blue, "trace", s.trace)
	reg.RegisterFunc(security.Blue, "quarantine", s.quarantine)
	reg.RegisterFunc(security.Blue, "isolate", s.isolate)
	reg.RegisterFunc(security.Blue, "scan", s.inspect)
	reg.RegisterFunc(security.Blue, "patch", s.patch)
	reg.RegisterFunc(security.Blue, "harden", s.patch)

	reg.RegisterFunc(security.Red, "scan", s.portScan)
	reg.RegisterFunc(security.Red, "exploit", s.exploit)
	reg.RegisterFunc(security.Red, "brute force", s.bruteForce)
}

// Monitored lists monitored targets, sorted.
func (s *Simulator) Monitored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.monitored)
}

func (s *Simulator) Quarantined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.quarantined)
}

func (s *Simulator) Traces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.traces...)
}

// target joins the arguments into one subject, or returns def.
func target(req security.Request, def string) string {
	parts := make([]string, 0, len(req.Args))
	for _, a := range req.Args {
		parts = append(parts, fmt.Sprint(a))
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, " ")
}

func (s *Simulator) firewallSwitch(on bool) security.HandlerFunc {
	return func(context.Context, security.Request) (any, error) {
		s.Firewall.SetEnabled(on)
		state := "disabled"
		if on {
			state = "enabled"
		}
		s.logger.Info("firewall switched", "state", state)
		return map[string]any{"firewall": state}, nil
	}
}

func (s *Simulator) firewallStatus(context.Context, security.Request) (any, error) {
	return map[string]any{
		"enabled": s.Firewall.Enabled(),
		"rules":   float64(len(s.Firewall.Rules())),
	}, nil
}

// rule handles `block ip "1.2.3.4" [port 22]`.
func (s *Simulator) rule(action string) security.HandlerFunc {
	return func(_ context.Context, req security.Request) (any, error) {
		if len(req.Args) == 0 {
			return nil, fmt.Errorf("%s needs an address", req.Phrase)
		}
		addr, ok := req.Args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s needs an address, got %v", req.Phrase, req.Args[0])
		}
		port := ""
		for i := 1; i+1 < len(req.Args); i++ {
			if req.Args[i] == "port" {
				port = fmt.Sprint(req.Args[i+1])
			}
		}
		r, err := s.Firewall.AddRule(action, addr, port)
		if err != nil {
			return nil, err
		}
		return r.toMap(), nil
	}
}

func (s *Simulator) monitor(_ context.Context, req security.Request) (any, error) {
	t := target(req, "network")
	s.mu.Lock()
	s.monitored[t] = s.now()
	s.mu.Unlock()
	return map[string]any{"monitoring": t}, nil
}

func (s *Simulator) trace(_ context.Context, req security.Request) (any, error) {
	t := target(req, "source")
	s.mu.Lock()
	s.traces = append(s.traces, t)
	s.mu.Unlock()
	return map[string]any{"traced": t}, nil
}

func (s *Simulator) quarantine(_ context.Context, req security.Request) (any, error) {
	h := target(req, "host")
	s.mu.Lock()
	s.quarantined[h] = s.now()
	s.mu.Unlock()
	return map[string]any{"quarantined": h}, nil
}

// isolate quarantines a host and, when it is an address, drops its traffic.
func (s *Simulator) isolate(ctx context.Context, req security.Request) (any, error) {
	res, _ := s.quarantine(ctx, req)
	out := res.(map[string]any)
	h := out["quarantined"].(string)
	if r, err := s.Firewall.AddRule("DROP", h, ""); err == nil {
		out["rule"] = r.ID
	}
	return out, nil
}

// inspect looks for attack patterns in the text it is given.
func (s *Simulator) inspect(_ context.Context, req security.Request) (any, error) {
	t := target(req, "")
	out := map[string]any{"target": t, "clean": true, "threat": nil}
	if name, found := hostlib.DetectAttack(t); found {
		out["clean"] = false
		out["threat"] = name
	}
	return out, nil
}

func (s *Simulator) patch(_ context.Context, req security.Request) (any, error) {
	return map[string]any{"patched": target(req, "system"), "action": req.Phrase}, nil
}

var severities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// alert handles `alert [severity] message...`.
func (s *Simulator) alert(ctx context.Context, req security.Request) (any, error) {
	severity := "medium"
	if len(req.Args) > 1 {
		if sev, ok := req.Args[0].(string); ok && severities[strings.ToLower(sev)] {
			severity = strings.ToLower(sev)
			req.Args = req.Args[1:]
		}
	}
	a := Alert{
		ID:       uuid.NewString(),
		Mode:     string(req.Mode),
		Severity: severity,
		Message:  target(req, "alert"),
		Time:     s.now(),
	}
	if err := s.alerts.Send(ctx, a); err != nil {
		return nil, err
	}
	return map[string]any{"id": a.ID, "severity": a.Severity, "message": a.Message}, nil
}

var commonPorts = []int{21, 22, 23, 25, 53, 80, 110, 143, 443, 445, 3306, 3389, 8080}

// portScan reports a deterministic pseudo-random subset of common ports.
func (s *Simulator) portScan(_ context.Context, req security.Request) (any, error) {
	t := target(req, "localhost")
	h := fnv.New32a()
	h.Write([]byte(t))
	seed := h.Sum32()
	open := []any{}
	for i, p := range commonPorts {
		if (seed>>uint(i))&1 == 1 {
			open = append(open, float64(p))
		}
	}
	return map[string]any{"target": t, "open_ports": open, "simulated": true}, nil
}

var knownExploits = map[string]map[string]any{
	"apache": {"cve": "CVE-2021-41773", "severity": "critical", "success": true},
	"ssh":    {"cve": "CVE-2018-15473", "severity": "medium", "success": false},
	"smb":    {"cve": "MS17-010", "severity": "critical", "success": true},
}

func (s *Simulator) exploit(_ context.Context, req security.Request) (any, error) {
	t := strings.ToLower(target(req, ""))
	e, ok := knownExploits[t]
	if !ok {
		return nil, fmt.Errorf("no known exploit for %q", t)
	}
	if e["success"] != true {
		return nil, fmt.Errorf("exploit %s against %s failed (simulated)", e["cve"], t)
	}
	out := map[string]any{"target": t, "simulated": true}
	for k, v := range e {
		out[k] = v
	}
	return out, nil
}

func (s *Simulator) bruteForce(_ context.Context, req security.Request) (any, error) {
	return map[string]any{"target": target(req, "login"), "attempts": 1000.0, "cracked": false, "simulated": true}, nil
}

func sortedKeys(m map[string]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
