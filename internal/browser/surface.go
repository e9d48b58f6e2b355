package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/recognize"
	"github.com/polzovatel/paced-actions/internal/snapshot"
	"github.com/polzovatel/paced-actions/internal/target"
)

const (
	defaultClickTimeout = 10 * time.Second
	revealSettle        = 600 * time.Millisecond
	revealRetrySettle   = 1200 * time.Millisecond
)

// SurfaceOptions tune how the page is read.
type SurfaceOptions struct {
	Selectors snapshot.Selectors
	// ScrollStep is the reveal scroll distance in pixels. Zero means 90% of
	// the viewport.
	ScrollStep   int
	ListLimit    int
	ClickTimeout time.Duration
}

// Surface is the live page seen as a target.Provider and a
// target.Recognizer. Its fields are read-only after construction, so an
// abandoned step still running against the page does not race the run loop.
type Surface struct {
	page      playwright.Page
	opts      SurfaceOptions
	patterns  *recognize.Patterns
	// nil when the patterns cannot run in the page
	prefilter *snapshot.Prefilter
	clock     clock.Clock
	logger    zerolog.Logger
}

var (
	_ target.Provider   = (*Surface)(nil)
	_ target.Recognizer = (*Surface)(nil)
)

// ErrNoPage is returned when a Surface is built over a closed controller.
var ErrNoPage = errors.New("browser: no page")

func NewSurface(ctrl Controller, opts SurfaceOptions, patterns *recognize.Patterns, c clock.Clock, logger zerolog.Logger) (*Surface, error) {
	page := ctrl.Page()
	if page == nil {
		return nil, ErrNoPage
	}
	opts.Selectors = opts.Selectors.WithDefaults()
	if opts.ClickTimeout <= 0 {
		opts.ClickTimeout = defaultClickTimeout
	}
	if patterns == nil {
		patterns = recognize.MustDefault()
	}
	if c == nil {
		c = clock.Real()
	}
	pf := prefilterFor(patterns)
	if pf == nil {
		logger.Debug().Msg("actionable patterns not expressible in the page, collecting unfiltered")
	}
	return &Surface{page: page, opts: opts, patterns: patterns, prefilter: pf, clock: c, logger: logger}, nil
}

func prefilterFor(p *recognize.Patterns) *snapshot.Prefilter {
	text, label, ok := p.ActionableJS()
	if !ok {
		return nil
	}
	return &snapshot.Prefilter{
		Text:  snapshot.Pattern{Source: text.Source, Flags: text.Flags},
		Label: snapshot.Pattern{Source: label.Source, Flags: label.Flags},
	}
}

// ListActionable returns the visible actionable controls. Nodes that vanish
// between collection and the lookup are skipped.
func (s *Surface) ListActionable(ctx context.Context) ([]target.Target, error) {
	elems, err := snapshot.Collect(ctx, s.page, s.opts.Selectors, s.opts.ListLimit, s.prefilter)
	if err != nil {
		return nil, wrap(err)
	}
	elems = FilterActionable(elems, s.patterns)
	out := make([]target.Target, 0, len(elems))
	for _, e := range elems {
		h, err := s.page.QuerySelector(snapshot.RefSelector(e.Ref))
		if err != nil {
			return nil, wrap(err)
		}
		if h == nil {
			continue
		}
		out = append(out, &Target{
			element: element{h: h, clickTimeout: s.opts.ClickTimeout},
			ref:     e.Ref,
			key:     e.Key,
			top:     e.Top,
			rows:    s.opts.Selectors.Rows,
		})
	}
	return out, nil
}

// RevealMore scrolls down and waits for lazy content. When the document did
// not grow it scrolls once more and waits longer.
func (s *Surface) RevealMore(ctx context.Context) error {
	before, err := snapshot.Scroll(ctx, s.page, s.opts.ScrollStep)
	if err != nil {
		return wrap(err)
	}
	if err := s.clock.Sleep(ctx, revealSettle); err != nil {
		return err
	}
	after, err := snapshot.Height(ctx, s.page)
	if err != nil {
		return wrap(err)
	}
	if after > before {
		return nil
	}
	s.logger.Debug().Float64("height", after).Msg("document did not grow, scrolling again")
	if _, err := snapshot.Scroll(ctx, s.page, s.opts.ScrollStep); err != nil {
		return wrap(err)
	}
	return s.clock.Sleep(ctx, revealRetrySettle)
}

func (s *Surface) IsActionable(ctx context.Context, el target.Element) (bool, error) {
	d, err := el.Describe(ctx)
	if err != nil {
		return false, err
	}
	return s.patterns.Actionable(d), nil
}

// FindConfirmation looks for a confirmation control inside an open dialog
// first, then for any button on the page that reads like one. Confirmation
// sheets render outside the row, so scope is not consulted.
func (s *Surface) FindConfirmation(ctx context.Context, _ target.Scope) (target.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, sel := range s.opts.Selectors.Dialogs {
		dialog, err := s.page.QuerySelector(sel)
		if err != nil {
			return nil, wrap(err)
		}
		if dialog == nil {
			continue
		}
		buttons, err := dialog.QuerySelectorAll(snapshot.ButtonSelector)
		if err != nil {
			return nil, wrap(err)
		}
		if el := s.firstMatching(buttons, s.patterns.Confirm); el != nil {
			return el, nil
		}
	}
	buttons, err := s.page.QuerySelectorAll(snapshot.ButtonSelector)
	if err != nil {
		return nil, wrap(err)
	}
	if el := s.firstMatching(buttons, s.patterns.ConfirmFallback); el != nil {
		return el, nil
	}
	return nil, nil
}

func (s *Surface) firstMatching(handles []playwright.ElementHandle, match func(target.Description) bool) target.Element {
	for _, h := range handles {
		d, err := snapshot.Describe(h)
		if err != nil {
			continue
		}
		if match(d) {
			return element{h: h, clickTimeout: s.opts.ClickTimeout}
		}
	}
	return nil
}

func (s *Surface) HasThrottleSignal(ctx context.Context) (bool, error) {
	notices, err := snapshot.Notices(ctx, s.page, s.opts.Selectors.Alerts)
	if err != nil {
		return false, wrap(err)
	}
	for _, n := range notices {
		if s.patterns.Throttle(n) {
			s.logger.Debug().Str("notice", n).Msg("throttle notice")
			return true, nil
		}
	}
	return false, nil
}

// FilterActionable keeps the elements whose description matches the
// actionable patterns.
func FilterActionable(elems []snapshot.Element, p *recognize.Patterns) []snapshot.Element {
	out := elems[:0:0]
	for _, e := range elems {
		if p.Actionable(e.Description()) {
			out = append(out, e)
		}
	}
	return out
}

type element struct {
	h            playwright.ElementHandle
	clickTimeout time.Duration
}

func (e element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(e.h.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(timeoutMillis(ctx, e.clickTimeout)),
	}))
}

// minTimeout keeps a nearly expired deadline from turning into playwright's
// zero, which means no timeout at all.
const minTimeout = time.Millisecond

// timeoutMillis caps def by the time left on ctx, in the milliseconds
// playwright expects.
func timeoutMillis(ctx context.Context, def time.Duration) float64 {
	d := def
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); d <= 0 || left < d {
			d = left
		}
	}
	if d < minTimeout {
		d = minTimeout
	}
	return float64(d.Milliseconds())
}

func (e element) Describe(ctx context.Context) (target.Description, error) {
	if err := ctx.Err(); err != nil {
		return target.Description{}, err
	}
	d, err := snapshot.Describe(e.h)
	return d, wrap(err)
}

// Target is a listed control bound to its DOM node.
type Target struct {
	element
	ref  target.Ref
	key  string
	top  float64
	rows []string
}

func (t *Target) Ref() target.Ref { return t.ref }

// Fingerprint is the row key. Rows without a key fall back to the reference
// so they are never merged with each other.
func (t *Target) Fingerprint() string {
	if t.key == "" {
		return fmt.Sprintf("ref:%d", t.ref)
	}
	return t.key
}

func (t *Target) Top() float64 { return t.top }

func (t *Target) Attached(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := snapshot.Connected(t.h)
	return ok, wrap(err)
}

func (t *Target) Scope(ctx context.Context) (target.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, err := snapshot.Row(t.h, t.rows)
	if err != nil {
		return nil, wrap(err)
	}
	return scope{element{h: row, clickTimeout: t.clickTimeout}}, nil
}

func (t *Target) ScrollIntoView(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(t.h.ScrollIntoViewIfNeeded(playwright.ElementHandleScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(timeoutMillis(ctx, t.clickTimeout)),
	}))
}

type scope struct {
	element
}

func (s scope) Attached(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := snapshot.Connected(s.h)
	return ok, wrap(err)
}

func (s scope) Elements(ctx context.Context) ([]target.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := s.h.QuerySelectorAll(snapshot.ButtonSelector)
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]target.Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, element{h: h, clickTimeout: s.clickTimeout})
	}
	return out, nil
}
