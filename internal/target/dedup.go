package target

import (
	"fmt"
	"strings"
)

// IdentityMode selects how Dedup decides two targets are the same.
type IdentityMode int

const (
	// ByReference treats every rendered instance as distinct, so a target
	// re-rendered after a successful action is not picked up again by value.
	ByReference IdentityMode = iota
	// ByValue matches on Fingerprint and survives re-renders.
	ByValue
)

func (m IdentityMode) String() string {
	if m == ByValue {
		return "value"
	}
	return "reference"
}

func ParseIdentityMode(s string) (IdentityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference", "ref":
		return ByReference, nil
	case "value":
		return ByValue, nil
	default:
		return ByReference, fmt.Errorf("unknown dedup mode %q (use reference or value)", s)
	}
}

// Dedup is the processed set of a run. An identity is inserted at most once
// and never removed. Not safe for concurrent use.
type Dedup struct {
	mode IdentityMode
	seen map[any]struct{}
}

func NewDedup(mode IdentityMode) *Dedup {
	return &Dedup{mode: mode, seen: make(map[any]struct{})}
}

func (d *Dedup) key(t Target) any {
	if d.mode == ByValue {
		return t.Fingerprint()
	}
	return t.Ref()
}

// Seen reports whether t was already admitted.
func (d *Dedup) Seen(t Target) bool {
	_, ok := d.seen[d.key(t)]
	return ok
}

// Admit marks t as processed. It returns false if t was already admitted.
func (d *Dedup) Admit(t Target) bool {
	k := d.key(t)
	if _, ok := d.seen[k]; ok {
		return false
	}
	d.seen[k] = struct{}{}
	return true
}

// Unseen filters targets down to the ones never admitted, keeping order.
func (d *Dedup) Unseen(ts []Target) []Target {
	out := make([]Target, 0, len(ts))
	for _, t := range ts {
		if !d.Seen(t) {
			out = append(out, t)
		}
	}
	return out
}

func (d *Dedup) Len() int { return len(d.seen) }
