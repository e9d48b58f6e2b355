// Package target holds the contracts between the run loop and the surface it
// acts on: what a target is, who lists them, and who recognizes them.
package target

import "context"

// Ref is a reference identity. A provider must hand out a new Ref whenever
// the underlying object is recreated, even if it looks identical.
type Ref uint64

// Description is the recognizable surface of an element.
type Description struct {
	Label  string `json:"label"`  // accessible label, e.g. aria-label
	Text   string `json:"text"`   // visible text, trimmed
	TestID string `json:"testid"` // automation hook attribute, if any
}

// Element is anything the loop can click and a Recognizer can classify.
type Element interface {
	Click(ctx context.Context) error
	Describe(ctx context.Context) (Description, error)
}

// Target is one actionable item surfaced by a Provider.
type Target interface {
	Element
	Ref() Ref
	// Fingerprint is the value identity, stable across re-renders.
	Fingerprint() string
	// Top is the vertical offset captured when the target was listed.
	Top() float64
	// Attached reports whether the target is still part of the live view.
	Attached(ctx context.Context) (bool, error)
	// Scope resolves the containing context used for visibility and
	// verification.
	Scope(ctx context.Context) (Scope, error)
	ScrollIntoView(ctx context.Context) error
}

// Scope is the containing context of a target (a list row, a card).
type Scope interface {
	Attached(ctx context.Context) (bool, error)
	// Elements lists the clickable elements currently inside the scope.
	Elements(ctx context.Context) ([]Element, error)
}

// Provider lists the currently visible targets and can reveal more.
type Provider interface {
	ListActionable(ctx context.Context) ([]Target, error)
	// RevealMore advances paging or scrolling, settling before it returns.
	RevealMore(ctx context.Context) error
}

// Recognizer maps raw view state to actionability, confirmation and
// throttle signals.
type Recognizer interface {
	IsActionable(ctx context.Context, el Element) (bool, error)
	// FindConfirmation returns the confirmation control for scope, or nil
	// when none is present.
	FindConfirmation(ctx context.Context, scope Scope) (Element, error)
	HasThrottleSignal(ctx context.Context) (bool, error)
}

// SelfScope wraps a target so it acts as its own scope.
func SelfScope(t Target) Scope { return selfScope{t: t} }

type selfScope struct{ t Target }

func (s selfScope) Attached(ctx context.Context) (bool, error) { return s.t.Attached(ctx) }

func (s selfScope) Elements(ctx context.Context) ([]Element, error) {
	ok, err := s.t.Attached(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return []Element{s.t}, nil
}
