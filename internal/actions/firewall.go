// Package actions provides the default, simulated handlers behind security
// sentences. Nothing here touches the real network or host: every action
// updates in-memory state and reports what it would have done.
package actions

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FirewallRule is one simulated rule.
type FirewallRule struct {
	ID       string
	Chain    string // INPUT, OUTPUT
	Protocol string // tcp, udp, all
	Source   string
	Port     string
	Action   string // ACCEPT, DROP
	Created  time.Time
}

func (r *FirewallRule) toMap() map[string]any {
	return map[string]any{
		"id":       r.ID,
		"chain":    r.Chain,
		"protocol": r.Protocol,
		"source":   r.Source,
		"port":     r.Port,
		"action":   r.Action,
		"created":  float64(r.Created.Unix()),
	}
}

// Firewall is an in-memory rule table.
type Firewall struct {
	mu      sync.RWMutex
	enabled bool
	rules   map[string]*FirewallRule
	now     func() time.Time
}

func NewFirewall(now func() time.Time) *Firewall {
	return &Firewall{rules: make(map[string]*FirewallRule), now: now}
}

func (f *Firewall) SetEnabled(on bool) {
	f.mu.Lock()
	f.enabled = on
	f.mu.Unlock()
}

func (f *Firewall) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// AddRule validates source as an address or CIDR prefix and stores a rule.
func (f *Firewall) AddRule(action, source, port string) (*FirewallRule, error) {
	if source != "any" {
		if _, err := netip.ParseAddr(source); err != nil {
			if _, perr := netip.ParsePrefix(source); perr != nil {
				return nil, fmt.Errorf("invalid address %q", source)
			}
		}
	}
	if port == "" {
		port = "any"
	}
	rule := &FirewallRule{
		ID:       uuid.NewString(),
		Chain:    "INPUT",
		Protocol: "all",
		Source:   source,
		Port:     port,
		Action:   action,
		Created:  f.now(),
	}
	f.mu.Lock()
	f.rules[rule.ID] = rule
	f.mu.Unlock()
	return rule, nil
}

func (f *Firewall) Remove(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return fmt.Errorf("firewall rule '%s' not found", id)
	}
	delete(f.rules, id)
	return nil
}

// Rules lists rules oldest first.
func (f *Firewall) Rules() []*FirewallRule {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rules := make([]*FirewallRule, 0, len(f.rules))
	for _, r := range f.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Created.Equal(rules[j].Created) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].Created.Before(rules[j].Created)
	})
	return rules
}

// Verdict returns the action of the newest rule matching source, or ACCEPT.
func (f *Firewall) Verdict(source string) string {
	rules := f.Rules()
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].Source == source || rules[i].Source == "any" {
			return rules[i].Action
		}
		if p, err := netip.ParsePrefix(rules[i].Source); err == nil {
			if ip, err := netip.ParseAddr(source); err == nil && p.Contains(ip) {
				return rules[i].Action
			}
		}
	}
	return "ACCEPT"
}
