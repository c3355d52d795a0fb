package fst

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadText parses an automaton in AT&T text format: arc lines
// "src dst ilabel olabel [weight]" and final lines "state [weight]".
// The source state of the first line is the start state.
func ReadText(r io.Reader) (*Automaton, error) {
	a := New()
	ensure := func(s int) StateID {
		for a.NumStates() <= s {
			a.AddState()
		}
		return StateID(s)
	}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		nums := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad field %q", lineNo, f)
			}
			nums[i] = v
		}
		switch len(fields) {
		case 1, 2:
			s := ensure(int(nums[0]))
			w := 0.0
			if len(fields) == 2 {
				w = nums[1]
			}
			a.SetFinal(s, w)
		case 4, 5:
			src := ensure(int(nums[0]))
			dst := ensure(int(nums[1]))
			w := 0.0
			if len(fields) == 5 {
				w = nums[4]
			}
			if a.Start() == NoState {
				a.SetStart(src)
			}
			a.AddArc(src, Arc{In: Label(nums[2]), Out: Label(nums[3]), Weight: w, Next: dst})
		default:
			return nil, fmt.Errorf("line %d: expected 1-2 or 4-5 fields, got %d", lineNo, len(fields))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if a.Start() == NoState && a.NumStates() > 0 {
		a.SetStart(0)
	}
	return a, nil
}

// ReadTextFile reads an AT&T text automaton from a file.
func ReadTextFile(path string) (*Automaton, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := ReadText(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return a, nil
}

// WriteText writes the automaton in AT&T text format. The start state
// is emitted first so a round trip preserves it.
func WriteText(a *Automaton, w io.Writer) error {
	bw := bufio.NewWriter(w)
	order := make([]StateID, 0, a.NumStates())
	if a.Start() != NoState {
		order = append(order, a.Start())
	}
	for s := 0; s < a.NumStates(); s++ {
		if StateID(s) != a.Start() {
			order = append(order, StateID(s))
		}
	}
	for _, s := range order {
		for _, arc := range a.Arcs(s) {
			if _, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%d\t%g\n", s, arc.Next, arc.In, arc.Out, arc.Weight); err != nil {
				return err
			}
		}
		if a.IsFinal(s) {
			if _, err := fmt.Fprintf(bw, "%d\t%g\n", s, a.Final(s)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteTextFile writes the automaton to path in AT&T text format.
func WriteTextFile(a *Automaton, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteText(a, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func isInf(w float64) bool { return math.IsInf(w, 1) }
