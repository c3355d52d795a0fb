// Package fst implements the small set of weighted finite-state
// operations the sampler needs: explicit tropical-semiring automata,
// AT&T text serialization, threshold pruning and drawing a single path
// at a given anneal level.
package fst

import (
	"math"
	"sort"
)

// Label is an input or output arc label. Label 0 is epsilon.
type Label uint32

// Epsilon consumes or emits nothing.
const Epsilon Label = 0

// StateID indexes a state within an Automaton.
type StateID int32

// NoState marks an invalid state.
const NoState StateID = -1

// Arc is a weighted transition. Weights are negative log probabilities
// (tropical semiring, lower is better).
type Arc struct {
	In     Label
	Out    Label
	Weight float64
	Next   StateID
}

// Automaton is an explicit weighted transducer. States without a final
// weight carry +Inf.
type Automaton struct {
	arcs  [][]Arc
	final []float64
	start StateID
}

// New returns an empty automaton with no states.
func New() *Automaton {
	return &Automaton{start: NoState}
}

// AddState appends a new non-final state and returns its id.
func (a *Automaton) AddState() StateID {
	a.arcs = append(a.arcs, nil)
	a.final = append(a.final, math.Inf(1))
	return StateID(len(a.arcs) - 1)
}

// SetStart marks s as the start state.
func (a *Automaton) SetStart(s StateID) { a.start = s }

// Start returns the start state, or NoState when empty.
func (a *Automaton) Start() StateID { return a.start }

// AddArc appends an arc leaving s.
func (a *Automaton) AddArc(s StateID, arc Arc) {
	a.arcs[s] = append(a.arcs[s], arc)
}

// SetFinal marks s final with weight w.
func (a *Automaton) SetFinal(s StateID, w float64) { a.final[s] = w }

// Final returns the final weight of s, +Inf when s is not final.
func (a *Automaton) Final(s StateID) float64 { return a.final[s] }

// IsFinal reports whether s is a final state.
func (a *Automaton) IsFinal(s StateID) bool { return !math.IsInf(a.final[s], 1) }

// NumStates returns the number of states.
func (a *Automaton) NumStates() int { return len(a.arcs) }

// NumArcs returns the total number of arcs.
func (a *Automaton) NumArcs() int {
	n := 0
	for _, arcs := range a.arcs {
		n += len(arcs)
	}
	return n
}

// Arcs returns the arcs leaving s. The slice is shared, callers must
// not modify it.
func (a *Automaton) Arcs(s StateID) []Arc { return a.arcs[s] }

// Chain builds a linear automaton accepting exactly the given label
// sequence with zero weight, one arc per label.
func Chain(labels []Label) *Automaton {
	a := New()
	s := a.AddState()
	a.SetStart(s)
	for _, l := range labels {
		next := a.AddState()
		a.AddArc(s, Arc{In: l, Out: l, Next: next})
		s = next
	}
	a.SetFinal(s, 0)
	return a
}

// ScaleWeights multiplies every arc and final weight by scale.
func (a *Automaton) ScaleWeights(scale float64) {
	for s := range a.arcs {
		for i := range a.arcs[s] {
			a.arcs[s][i].Weight *= scale
		}
		if !math.IsInf(a.final[s], 1) {
			a.final[s] *= scale
		}
	}
}

// SortArcsByOutput sorts every state's arcs by output label, then
// input label, keeping automaton traversal deterministic.
func (a *Automaton) SortArcsByOutput() {
	for s := range a.arcs {
		arcs := a.arcs[s]
		sort.SliceStable(arcs, func(i, j int) bool {
			if arcs[i].Out != arcs[j].Out {
				return arcs[i].Out < arcs[j].Out
			}
			return arcs[i].In < arcs[j].In
		})
	}
}

// topoOrder returns the states in topological order. The sampler only
// ever builds acyclic machines; a cycle is an integrity bug.
func topoOrder(a *Automaton) ([]StateID, bool) {
	n := a.NumStates()
	indeg := make([]int, n)
	for s := 0; s < n; s++ {
		for _, arc := range a.arcs[s] {
			indeg[arc.Next]++
		}
	}
	order := make([]StateID, 0, n)
	queue := make([]StateID, 0, n)
	for s := 0; s < n; s++ {
		if indeg[s] == 0 {
			queue = append(queue, StateID(s))
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		order = append(order, s)
		for _, arc := range a.arcs[s] {
			indeg[arc.Next]--
			if indeg[arc.Next] == 0 {
				queue = append(queue, arc.Next)
			}
		}
	}
	return order, len(order) == n
}
