package fst

import (
	"errors"
	"math"
	"math/rand"
)

// Path is a single complete start-to-final traversal. Weight is the
// unannealed sum of the traversed arc weights; Labels holds the
// non-epsilon output labels in order.
type Path struct {
	Labels []Label
	Weight float64
}

// ErrNoPath is returned when the automaton admits no complete path.
var ErrNoPath = errors.New("fst: no complete path")

func logAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// SamplePath draws one complete path. The anneal level scales the
// weights before exponentiation: at 1 paths are drawn proportionally
// to their true probability, at 0 the distribution is flat over paths.
func SamplePath(a *Automaton, anneal float64, rng *rand.Rand) (Path, error) {
	if a.Start() == NoState || a.NumStates() == 0 {
		return Path{}, ErrNoPath
	}
	order, ok := topoOrder(a)
	if !ok {
		return Path{}, errors.New("fst: automaton has a cycle")
	}

	// z[s] is the annealed log partition over all suffix paths from s.
	z := make([]float64, a.NumStates())
	for i := range z {
		z[i] = math.Inf(-1)
	}
	for i := len(order) - 1; i >= 0; i-- {
		s := order[i]
		if a.IsFinal(s) {
			z[s] = -anneal * a.Final(s)
		}
		for _, arc := range a.Arcs(s) {
			if math.IsInf(z[arc.Next], -1) {
				continue
			}
			z[s] = logAdd(z[s], -anneal*arc.Weight+z[arc.Next])
		}
	}
	if math.IsInf(z[a.Start()], -1) {
		return Path{}, ErrNoPath
	}

	var path Path
	s := a.Start()
	for {
		r := rng.Float64()
		acc := 0.0
		if a.IsFinal(s) {
			acc += math.Exp(-anneal*a.Final(s) - z[s])
			if r < acc {
				return path, nil
			}
		}
		chosen := -1
		arcs := a.Arcs(s)
		for i, arc := range arcs {
			if math.IsInf(z[arc.Next], -1) {
				continue
			}
			acc += math.Exp(-anneal*arc.Weight + z[arc.Next] - z[s])
			chosen = i
			if r < acc {
				break
			}
		}
		if chosen < 0 {
			// Rounding residue: stop here if possible.
			if a.IsFinal(s) {
				return path, nil
			}
			return Path{}, ErrNoPath
		}
		arc := arcs[chosen]
		if arc.Out != Epsilon {
			path.Labels = append(path.Labels, arc.Out)
		}
		path.Weight += arc.Weight
		s = arc.Next
	}
}
