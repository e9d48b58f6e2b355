// Package targettest provides an in-memory Provider and Recognizer for
// exercising the run loop without a browser.
package targettest

import (
	"context"
	"errors"
	"sync"

	"github.com/polzovatel/paced-actions/internal/target"
)

// Behavior decides what clicking a target does to the world.
type Behavior int

const (
	// Resolves stops being actionable right after the click.
	Resolves Behavior = iota
	// NeedsConfirm opens a confirmation control; confirming resolves it.
	NeedsConfirm
	// Stuck ignores the click and stays actionable.
	Stuck
	// Vanishes is removed from the view by the click.
	Vanishes
	// Broken fails the click itself.
	Broken
)

var ErrClick = errors.New("targettest: click failed")

// World is a fake view: a list of visible targets, pages revealed on
// demand, a confirmation dialog and a throttle notice.
type World struct {
	mu        sync.Mutex
	next      target.Ref
	visible   []*Target
	pages     [][]*Target
	dialog    *Confirm
	throttled bool
	listErr   error
	clickLog  []string
	lists     int
	reveals   int

	// OnClick runs after a target click is applied, outside the lock.
	OnClick func(t *Target)
}

func NewWorld() *World { return &World{} }

// NewTarget creates a target that is not listed yet.
func (w *World) NewTarget(name string, top float64, b Behavior) *Target {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.newTargetLocked(name, top, b)
}

func (w *World) newTargetLocked(name string, top float64, b Behavior) *Target {
	w.next++
	return &Target{w: w, ref: w.next, name: name, top: top, behavior: b, actionable: true, attached: true}
}

// Add creates a target and makes it visible.
func (w *World) Add(name string, top float64, b Behavior) *Target {
	t := w.NewTarget(name, top, b)
	w.Show(t)
	return t
}

func (w *World) Show(ts ...*Target) {
	w.mu.Lock()
	w.visible = append(w.visible, ts...)
	w.mu.Unlock()
}

// QueuePage registers targets revealed by the next RevealMore call.
func (w *World) QueuePage(ts ...*Target) {
	w.mu.Lock()
	w.pages = append(w.pages, ts)
	w.mu.Unlock()
}

// Rerender detaches t and shows a visually identical copy with a new Ref.
func (w *World) Rerender(t *Target) *Target {
	w.mu.Lock()
	defer w.mu.Unlock()
	t.attached = false
	cp := w.newTargetLocked(t.name, t.top, t.behavior)
	cp.actionable = t.actionable
	w.visible = append(w.visible, cp)
	return cp
}

func (w *World) SetThrottled(v bool) {
	w.mu.Lock()
	w.throttled = v
	w.mu.Unlock()
}

// FailLists makes ListActionable return err (nil restores it).
func (w *World) FailLists(err error) {
	w.mu.Lock()
	w.listErr = err
	w.mu.Unlock()
}

// ClickLog lists target names in click order (confirmations excluded).
func (w *World) ClickLog() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.clickLog...)
}

func (w *World) Lists() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lists
}

func (w *World) Reveals() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reveals
}

func (w *World) ListActionable(ctx context.Context) ([]target.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lists++
	if w.listErr != nil {
		return nil, w.listErr
	}
	out := make([]target.Target, 0, len(w.visible))
	for _, t := range w.visible {
		if t.attached && t.actionable {
			out = append(out, t)
		}
	}
	return out, nil
}

func (w *World) RevealMore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reveals++
	if len(w.pages) > 0 {
		w.visible = append(w.visible, w.pages[0]...)
		w.pages = w.pages[1:]
	}
	return nil
}

func (w *World) IsActionable(_ context.Context, el target.Element) (bool, error) {
	t, ok := el.(*Target)
	if !ok {
		return false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return t.attached && t.actionable, nil
}

func (w *World) FindConfirmation(_ context.Context, _ target.Scope) (target.Element, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dialog == nil {
		return nil, nil
	}
	return w.dialog, nil
}

func (w *World) HasThrottleSignal(context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.throttled, nil
}

// Target is a fake target owned by a World.
type Target struct {
	w          *World
	ref        target.Ref
	name       string
	top        float64
	behavior   Behavior
	actionable bool
	attached   bool
	clicks     int
	scrolls    int
}

func (t *Target) Ref() target.Ref     { return t.ref }
func (t *Target) Fingerprint() string { return t.name }
func (t *Target) Top() float64        { return t.top }
func (t *Target) Name() string        { return t.name }

func (t *Target) Clicks() int {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.clicks
}

func (t *Target) Scrolls() int {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.scrolls
}

func (t *Target) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := t.w
	w.mu.Lock()
	t.clicks++
	w.clickLog = append(w.clickLog, t.name)
	var err error
	switch t.behavior {
	case Resolves:
		t.actionable = false
	case NeedsConfirm:
		w.dialog = &Confirm{w: w, t: t}
	case Vanishes:
		t.attached = false
	case Broken:
		err = ErrClick
	}
	hook := w.OnClick
	w.mu.Unlock()
	if hook != nil {
		hook(t)
	}
	return err
}

func (t *Target) Describe(context.Context) (target.Description, error) {
	return target.Description{Label: "Blocked", Text: t.name}, nil
}

func (t *Target) Attached(context.Context) (bool, error) {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	return t.attached, nil
}

func (t *Target) Scope(context.Context) (target.Scope, error) {
	return target.SelfScope(t), nil
}

func (t *Target) ScrollIntoView(context.Context) error {
	t.w.mu.Lock()
	t.scrolls++
	t.w.mu.Unlock()
	return nil
}

// Confirm is the confirmation control opened by a NeedsConfirm target.
type Confirm struct {
	w *World
	t *Target
}

func (c *Confirm) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.w.mu.Lock()
	defer c.w.mu.Unlock()
	c.t.actionable = false
	c.w.dialog = nil
	return nil
}

func (c *Confirm) Describe(context.Context) (target.Description, error) {
	return target.Description{Text: "Unblock", TestID: "confirmationSheetConfirm"}, nil
}
