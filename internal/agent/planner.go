package agent

import "github.com/polzovatel/paced-actions/internal/target"

// Planner picks the next target among unprocessed candidates.
type Planner interface {
	Next(candidates []target.Target) (target.Target, bool)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(candidates []target.Target) (target.Target, bool)

func (f PlannerFunc) Next(candidates []target.Target) (target.Target, bool) { return f(candidates) }

// Topmost selects the candidate nearest to the top of the view, keeping
// provider order on ties. Always advancing the frontier from the top keeps
// targets that are still off-screen from being starved.
var Topmost Planner = PlannerFunc(SelectTopmost)

func SelectTopmost(candidates []target.Target) (target.Target, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Top() < best.Top() {
			best = c
		}
	}
	return best, true
}
