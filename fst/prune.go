package fst

import (
	"math"
)

// forwardDistances returns the best (minimum) path weight from the
// start state to every state, +Inf for unreachable states.
func forwardDistances(a *Automaton, order []StateID) []float64 {
	dist := make([]float64, a.NumStates())
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	if a.Start() != NoState {
		dist[a.Start()] = 0
	}
	for _, s := range order {
		if isInf(dist[s]) {
			continue
		}
		for _, arc := range a.Arcs(s) {
			if d := dist[s] + arc.Weight; d < dist[arc.Next] {
				dist[arc.Next] = d
			}
		}
	}
	return dist
}

// backwardDistances returns the best path weight from every state to a
// final state, including the final weight.
func backwardDistances(a *Automaton, order []StateID) []float64 {
	dist := make([]float64, a.NumStates())
	for i := range dist {
		dist[i] = a.Final(StateID(i))
	}
	for i := len(order) - 1; i >= 0; i-- {
		s := order[i]
		for _, arc := range a.Arcs(s) {
			if isInf(dist[arc.Next]) {
				continue
			}
			if d := arc.Weight + dist[arc.Next]; d < dist[s] {
				dist[s] = d
			}
		}
	}
	return dist
}

// Prune removes every state and arc that lies only on paths worse than
// the best complete path by more than threshold, renumbering the
// survivors. When no complete path exists the result contains at most
// the start state, which callers treat as an integrity failure.
func Prune(a *Automaton, threshold float64) *Automaton {
	out := New()
	if a.Start() == NoState {
		return out
	}
	order, ok := topoOrder(a)
	if !ok {
		panic("Prune: automaton has a cycle")
	}
	fwd := forwardDistances(a, order)
	bwd := backwardDistances(a, order)
	best := bwd[a.Start()]
	if isInf(best) {
		out.SetStart(out.AddState())
		return out
	}
	limit := best + threshold

	remap := make([]StateID, a.NumStates())
	for i := range remap {
		remap[i] = NoState
	}
	keep := func(s StateID) StateID {
		if remap[s] == NoState {
			remap[s] = out.AddState()
		}
		return remap[s]
	}
	out.SetStart(keep(a.Start()))
	for s := 0; s < a.NumStates(); s++ {
		if isInf(fwd[s]) {
			continue
		}
		for _, arc := range a.Arcs(StateID(s)) {
			if isInf(bwd[arc.Next]) {
				continue
			}
			if fwd[s]+arc.Weight+bwd[arc.Next] <= limit {
				out.AddArc(keep(StateID(s)), Arc{In: arc.In, Out: arc.Out, Weight: arc.Weight, Next: keep(arc.Next)})
			}
		}
		if a.IsFinal(StateID(s)) && fwd[s]+a.Final(StateID(s)) <= limit {
			out.SetFinal(keep(StateID(s)), a.Final(StateID(s)))
		}
	}
	return out
}
