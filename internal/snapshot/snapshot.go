// Package snapshot reads the live page through small page scripts. Results are
// decoded into plain structs so the rest of the code never touches raw
// Evaluate output.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/polzovatel/paced-actions/internal/target"
)

// RefAttr is the attribute that carries a node's reference id. A node gets
// one the first time it is collected; a re-rendered node starts without it.
const RefAttr = "data-pacer-ref"

// ButtonSelector matches every clickable control a page script considers.
const ButtonSelector = `button,[role="button"]`

const defaultLimit = 200

// Selectors locate the page regions the page scripts care about.
type Selectors struct {
	Candidates []string `json:"candidates"`
	Dialogs    []string `json:"dialogs"`
	Alerts     []string `json:"alerts"`
	Rows       []string `json:"rows"`
}

// DefaultSelectors fit a blocked-accounts list.
func DefaultSelectors() Selectors {
	return Selectors{
		Candidates: []string{
			`button[aria-label="Blocked"]`,
			`[role="button"][aria-label="Blocked"]`,
		},
		Dialogs: []string{
			`div[role="dialog"]`,
			`div[role="alertdialog"]`,
			`[data-testid="sheetDialog"]`,
		},
		Alerts: []string{
			`[role="alert"]`,
			`[data-testid*="toast"]`,
			`.Toast`, `.toast`, `.Snackbar`, `.snackbar`,
		},
		Rows: []string{
			`[data-testid="UserCell"]`,
			`[data-testid="cellInnerDiv"]`,
			`li[role="listitem"]`,
			`article`,
		},
	}
}

// WithDefaults fills empty selector lists from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	def := DefaultSelectors()
	if len(s.Candidates) == 0 {
		s.Candidates = def.Candidates
	}
	if len(s.Dialogs) == 0 {
		s.Dialogs = def.Dialogs
	}
	if len(s.Alerts) == 0 {
		s.Alerts = def.Alerts
	}
	if len(s.Rows) == 0 {
		s.Rows = def.Rows
	}
	return s
}

// Element is one visible control found by Collect.
type Element struct {
	Ref    target.Ref `json:"ref"`
	Top    float64    `json:"top"`
	Key    string     `json:"key"` // value identity of the containing row
	Label  string     `json:"label"`
	Text   string     `json:"text"`
	TestID string     `json:"testid"`
}

func (e Element) Description() target.Description {
	return target.Description{Label: e.Label, Text: e.Text, TestID: e.TestID}
}

// RefSelector selects the node tagged with ref.
func RefSelector(ref target.Ref) string {
	return fmt.Sprintf(`[%s="%d"]`, RefAttr, ref)
}

const collectScript = `(args) => {
	const visible = (el) => !!el && el.isConnected && el.offsetParent !== null &&
		getComputedStyle(el).visibility !== 'hidden';
	const matchesAny = (el, sels) => sels.some(s => { try { return el.matches(s); } catch (e) { return false; } });
	const findRow = (el) => {
		let n = el;
		for (let i = 0; i < 6 && n; i++) {
			if (matchesAny(n, args.rows)) return n;
			n = n.parentElement;
		}
		return (el.closest && el.closest('li, article, div')) || el;
	};
	const rowKey = (row) => {
		const link = row.querySelector('a[href^="/"]');
		if (link) return link.getAttribute('href');
		return (row.innerText || row.textContent || '').trim().split('\n').slice(0, 2).join(' ').slice(0, 200);
	};

	const compile = (p) => { try { return new RegExp(p.source, p.flags); } catch (e) { return null; } };
	let wanted = () => true;
	if (args.prefilter) {
		const text = compile(args.prefilter.text);
		const label = compile(args.prefilter.label);
		if (text && label) {
			wanted = (el) => {
				const l = el.getAttribute('aria-label') || '';
				if (l && label.test(l)) return true;
				return text.test((el.innerText || el.textContent || '').trim().slice(0, 120).trim());
			};
		}
	}
	const usable = (el) => visible(el) && wanted(el);

	let els = [];
	for (const s of args.candidates) {
		try { els.push(...document.querySelectorAll(s)); } catch (e) {}
	}
	els = els.filter(usable);
	if (els.length === 0) {
		els = Array.from(document.querySelectorAll(args.buttons)).filter(usable);
	}

	window.__pacerSeq = window.__pacerSeq || 0;
	const seen = new Set();
	const out = [];
	for (const el of els) {
		if (out.length >= args.limit) break;
		if (seen.has(el)) continue;
		seen.add(el);
		let ref = el.getAttribute(args.attr);
		if (!ref) {
			ref = String(++window.__pacerSeq);
			el.setAttribute(args.attr, ref);
		}
		const text = (el.innerText || el.textContent || '').trim();
		out.push({
			ref: Number(ref),
			top: el.getBoundingClientRect().top,
			key: rowKey(findRow(el)),
			label: el.getAttribute('aria-label') || '',
			text: text.slice(0, 120),
			testid: el.getAttribute('data-testid') || '',
		});
	}
	return out;
}`

// Pattern is a browser RegExp source and its flags.
type Pattern struct {
	Source string
	Flags  string
}

// Prefilter narrows Collect to controls whose aria-label matches Label or
// whose visible text matches Text. It runs before the limit so matching
// controls are never crowded out by unrelated buttons, and only the nodes
// it keeps get a reference id. The caller still classifies the result.
type Prefilter struct {
	Text  Pattern
	Label Pattern
}

func (p *Prefilter) arg() any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"text":  map[string]any{"source": p.Text.Source, "flags": p.Text.Flags},
		"label": map[string]any{"source": p.Label.Source, "flags": p.Label.Flags},
	}
}

// Collect lists visible candidate controls and tags each with a reference
// id. When no candidate selector yields a visible node that passes pf,
// every button on the page that passes it is returned instead. A nil pf
// keeps every visible node.
func Collect(ctx context.Context, page playwright.Page, sel Selectors, limit int, pf *Prefilter) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	val, err := page.Evaluate(collectScript, map[string]any{
		"candidates": nonNil(sel.Candidates),
		"rows":       nonNil(sel.Rows),
		"buttons":    ButtonSelector,
		"attr":       RefAttr,
		"limit":      limit,
		"prefilter":  pf.arg(),
	})
	if err != nil {
		return nil, err
	}
	var elems []Element
	if err := decode(val, &elems); err != nil {
		return nil, fmt.Errorf("decode collect: %w", err)
	}
	return elems, nil
}

const describeScript = `(el) => ({
	label: el.getAttribute('aria-label') || '',
	text: (el.innerText || el.textContent || '').trim().slice(0, 120),
	testid: el.getAttribute('data-testid') || '',
})`

// Describe reads the recognizable surface of a single node.
func Describe(h playwright.JSHandle) (target.Description, error) {
	val, err := h.Evaluate(describeScript)
	if err != nil {
		return target.Description{}, err
	}
	var d target.Description
	if err := decode(val, &d); err != nil {
		return target.Description{}, fmt.Errorf("decode describe: %w", err)
	}
	return d, nil
}

// Connected reports whether the node is still in the document.
func Connected(h playwright.JSHandle) (bool, error) {
	val, err := h.Evaluate(`(el) => el.isConnected`)
	if err != nil {
		return false, err
	}
	ok, _ := val.(bool)
	return ok, nil
}

const rowScript = `(el, rows) => {
	let n = el;
	for (let i = 0; i < 6 && n; i++) {
		if (rows.some(s => { try { return n.matches(s); } catch (e) { return false; } })) return n;
		n = n.parentElement;
	}
	return (el.closest && el.closest('li, article, div')) || el;
}`

// Row resolves the list row that contains h: the nearest ancestor within six
// levels matching a row selector, else the closest generic container.
func Row(h playwright.ElementHandle, rows []string) (playwright.ElementHandle, error) {
	res, err := h.EvaluateHandle(rowScript, nonNil(rows))
	if err != nil {
		return nil, err
	}
	row := res.AsElement()
	if row == nil {
		_ = res.Dispose()
		return nil, errors.New("row lookup returned a non-element")
	}
	return row, nil
}

const noticeScript = `(sels) => {
	const out = [];
	for (const s of sels) {
		let nodes = [];
		try { nodes = document.querySelectorAll(s); } catch (e) { continue; }
		for (const n of nodes) {
			const t = (n.innerText || n.textContent || '').trim();
			if (t) out.push(t.slice(0, 300));
		}
	}
	return out;
}`

// Notices returns the text of every alert or toast currently shown.
func Notices(ctx context.Context, page playwright.Page, alerts []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := page.Evaluate(noticeScript, nonNil(alerts))
	if err != nil {
		return nil, err
	}
	var out []string
	if err := decode(val, &out); err != nil {
		return nil, fmt.Errorf("decode notices: %w", err)
	}
	return out, nil
}

// Scroll scrolls the window by step pixels, or by 90% of the viewport when
// step is zero, and returns the document height measured before scrolling.
func Scroll(ctx context.Context, page playwright.Page, step int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	val, err := page.Evaluate(`(step) => {
		const before = document.documentElement.scrollHeight;
		window.scrollBy(0, step > 0 ? step : Math.round(window.innerHeight * 0.9));
		return before;
	}`, step)
	if err != nil {
		return 0, err
	}
	return toFloat(val), nil
}

// Height returns the current document scroll height.
func Height(ctx context.Context, page playwright.Page) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	val, err := page.Evaluate(`() => document.documentElement.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return toFloat(val), nil
}

// decode converts loosely typed Evaluate output into dst.
func decode(val any, dst any) error {
	if val == nil {
		return nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func toFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
