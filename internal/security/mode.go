package security

import (
	"fmt"
	"strings"
	"sync"
)

// Mode is the operational stance that selects action handlers.
type Mode string

const (
	Red  Mode = "red"
	Blue Mode = "blue"
	// Any registers a handler for both modes. A mode-specific entry wins.
	Any Mode = "any"
)

// ParseMode accepts red, blue, redteam, blueteam and, for registrations, any.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "redteam":
		return Red, nil
	case "blue", "blueteam":
		return Blue, nil
	case "any", "*":
		return Any, nil
	}
	return "", fmt.Errorf("unknown mode %q (want red or blue)", s)
}

// ModeRegister is the single place the active mode lives. Readers must go
// through Get every time; nothing caches the value.
type ModeRegister struct {
	mu   sync.RWMutex
	mode Mode
}

func NewModeRegister(initial Mode) *ModeRegister {
	if initial != Red {
		initial = Blue
	}
	return &ModeRegister{mode: initial}
}

func (r *ModeRegister) Get() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Set switches the mode. Any is not a valid active mode.
func (r *ModeRegister) Set(m Mode) error {
	if m != Red && m != Blue {
		return fmt.Errorf("cannot switch to mode %q", m)
	}
	r.mu.Lock()
	r.mode = m
	r.mu.Unlock()
	return nil
}
