package fst

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	a := Chain([]Label{3, 1, 2})
	require.Equal(t, 4, a.NumStates())
	require.Equal(t, StateID(0), a.Start())
	require.Equal(t, 3, a.NumArcs())
	assert.False(t, a.IsFinal(0))
	assert.True(t, a.IsFinal(3))
	assert.Equal(t, 0.0, a.Final(3))

	arc := a.Arcs(0)[0]
	assert.Equal(t, Label(3), arc.In)
	assert.Equal(t, Label(3), arc.Out)
	assert.Equal(t, StateID(1), arc.Next)
}

func TestScaleWeights(t *testing.T) {
	a := New()
	s0 := a.AddState()
	s1 := a.AddState()
	a.SetStart(s0)
	a.AddArc(s0, Arc{In: 1, Out: 1, Weight: 2.0, Next: s1})
	a.SetFinal(s1, 4.0)
	a.ScaleWeights(0.5)
	assert.Equal(t, 1.0, a.Arcs(s0)[0].Weight)
	assert.Equal(t, 2.0, a.Final(s1))
	assert.False(t, a.IsFinal(s0))
}

func TestReadWriteRoundTrip(t *testing.T) {
	a := New()
	s0 := a.AddState()
	s1 := a.AddState()
	s2 := a.AddState()
	a.SetStart(s0)
	a.AddArc(s0, Arc{In: 1, Out: 2, Weight: 0.5, Next: s1})
	a.AddArc(s1, Arc{In: 3, Out: 4, Weight: 1.5, Next: s2})
	a.SetFinal(s2, 0.25)

	var buf bytes.Buffer
	require.NoError(t, WriteText(a, &buf))

	b, err := ReadText(&buf)
	require.NoError(t, err)
	require.Equal(t, a.NumStates(), b.NumStates())
	assert.Equal(t, a.Start(), b.Start())
	assert.Equal(t, a.Arcs(s0), b.Arcs(s0))
	assert.Equal(t, a.Arcs(s1), b.Arcs(s1))
	assert.Equal(t, 0.25, b.Final(s2))
	assert.False(t, b.IsFinal(s0))
}

func TestReadTextBadLine(t *testing.T) {
	_, err := ReadText(bytes.NewBufferString("0 1 2\n"))
	assert.Error(t, err)
	_, err = ReadText(bytes.NewBufferString("0 1 x 2\n"))
	assert.Error(t, err)
}

// diamond builds two parallel single-label paths, the second worse by
// the given penalty.
func diamond(penalty float64) *Automaton {
	a := New()
	s0 := a.AddState()
	s1 := a.AddState()
	s2 := a.AddState()
	s3 := a.AddState()
	a.SetStart(s0)
	a.AddArc(s0, Arc{In: 1, Out: 1, Weight: 0, Next: s1})
	a.AddArc(s0, Arc{In: 2, Out: 2, Weight: penalty, Next: s2})
	a.AddArc(s1, Arc{Next: s3})
	a.AddArc(s2, Arc{Next: s3})
	a.SetFinal(s3, 0)
	return a
}

func TestPrune(t *testing.T) {
	tight := Prune(diamond(5.0), 1.0)
	assert.Equal(t, 3, tight.NumStates())
	assert.Equal(t, 2, tight.NumArcs())

	loose := Prune(diamond(5.0), 10.0)
	assert.Equal(t, 4, loose.NumStates())
	assert.Equal(t, 4, loose.NumArcs())
}

func TestPruneNoCompletePath(t *testing.T) {
	a := New()
	s0 := a.AddState()
	s1 := a.AddState()
	a.SetStart(s0)
	a.AddArc(s0, Arc{In: 1, Out: 1, Next: s1})
	pruned := Prune(a, 0)
	assert.Equal(t, 1, pruned.NumStates())
	assert.Equal(t, 0, pruned.NumArcs())
}

func TestSamplePathFollowsWeights(t *testing.T) {
	a := diamond(5.0)
	rng := rand.New(rand.NewSource(1))
	better := 0
	for i := 0; i < 200; i++ {
		path, err := SamplePath(a, 1.0, rng)
		require.NoError(t, err)
		require.Len(t, path.Labels, 1)
		if path.Labels[0] == 1 {
			assert.Equal(t, 0.0, path.Weight)
			better++
		} else {
			assert.Equal(t, 5.0, path.Weight)
		}
	}
	// P(worse path) = e^-5/(1+e^-5), under one percent.
	assert.Greater(t, better, 180)
}

func TestSamplePathFlatAtAnnealZero(t *testing.T) {
	a := diamond(5.0)
	rng := rand.New(rand.NewSource(1))
	counts := map[Label]int{}
	for i := 0; i < 200; i++ {
		path, err := SamplePath(a, 0.0, rng)
		require.NoError(t, err)
		counts[path.Labels[0]]++
	}
	assert.Greater(t, counts[1], 50)
	assert.Greater(t, counts[2], 50)
}

func TestSamplePathDeterministic(t *testing.T) {
	a := diamond(1.0)
	r1 := rand.New(rand.NewSource(42))
	r2 := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		p1, err := SamplePath(a, 1.0, r1)
		require.NoError(t, err)
		p2, err := SamplePath(a, 1.0, r2)
		require.NoError(t, err)
		assert.Equal(t, p1, p2)
	}
}

func TestSamplePathNoPath(t *testing.T) {
	a := New()
	a.SetStart(a.AddState())
	_, err := SamplePath(a, 1.0, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	a := New()
	s0 := a.AddState()
	s1 := a.AddState()
	a.SetStart(s0)
	a.AddArc(s0, Arc{Next: s1})
	a.AddArc(s1, Arc{Next: s0})
	_, ok := topoOrder(a)
	assert.False(t, ok)
}

func TestLogAdd(t *testing.T) {
	got := logAdd(math.Log(0.25), math.Log(0.5))
	assert.InDelta(t, math.Log(0.75), got, 1e-12)
	assert.Equal(t, math.Log(0.5), logAdd(math.Inf(-1), math.Log(0.5)))
}
