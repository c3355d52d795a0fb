package latticelm

import (
	"math"

	"github.com/recruit474/latticelm/fst"
)

// pipeline builds, for one sentence, the composition of the input
// automaton with the lexicon and the two-level language model. Known
// words are matched through the spelling trie and weighted by the word
// model's seated mass; the unknown-word branch opens with the word
// context's base pass-through mass and scores each character with the
// character model, so the two branches together realize the full
// hierarchical probability, exactly the split the seating bookkeeping
// commits later.
type pipeline struct {
	lex      *Lexicon
	known    *PYLM[WordID]
	unk      *PYLM[CharID]
	charBase float64
}

// pipeKey identifies a composed state: the input automaton state, the
// lexicon position (trie node, or nil while inside an unknown-word
// span) and the bounded word/character contexts.
type pipeKey struct {
	in      fst.StateID
	node    *trieNode
	seen    bool
	charCtx string
	wordCtx string
}

type pipeState struct {
	id      fst.StateID
	in      fst.StateID
	node    *trieNode
	seen    bool
	charCtx []CharID
	wordCtx []WordID
}

func pushID[T symbolID](ctx []T, id T) []T {
	if len(ctx) == 0 {
		return nil
	}
	next := make([]T, len(ctx))
	copy(next, ctx[1:])
	next[len(next)-1] = id
	return next
}

func paddedCtx[T symbolID](n int) []T {
	ctx := make([]T, n)
	for i := range ctx {
		ctx[i] = T(bosID)
	}
	return ctx
}

// compose expands the product of the input automaton, the lexicon and
// the language model into an explicit automaton ready for pruning and
// path sampling.
func (pl *pipeline) compose(input *fst.Automaton) *fst.Automaton {
	out := fst.New()
	syms := pl.lex.syms
	states := make(map[pipeKey]fst.StateID)
	var queue []*pipeState

	add := func(in fst.StateID, node *trieNode, seen bool, charCtx []CharID, wordCtx []WordID) fst.StateID {
		key := pipeKey{in: in, node: node, seen: seen, charCtx: ctxKey(charCtx), wordCtx: ctxKey(wordCtx)}
		if id, ok := states[key]; ok {
			return id
		}
		id := out.AddState()
		states[key] = id
		queue = append(queue, &pipeState{id: id, in: in, node: node, seen: seen, charCtx: charCtx, wordCtx: wordCtx})
		return id
	}

	start := add(input.Start(), pl.lex.root, false, nil, paddedCtx[WordID](pl.known.Order()-1))
	out.SetStart(start)

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		if s.node != nil {
			// Lexicon trie position.
			if s.node == pl.lex.root && input.IsFinal(s.in) {
				out.SetFinal(s.id, input.Final(s.in))
			}
			if s.node == pl.lex.root {
				// Open an unknown-word span, charging the mass the
				// word model passes through to its base distribution.
				w := -math.Log(pl.known.BaseMass(s.wordCtx))
				next := add(s.in, nil, false, paddedCtx[CharID](pl.unk.Order()-1), s.wordCtx)
				out.AddArc(s.id, fst.Arc{In: fst.Epsilon, Out: fst.Label(syms.unkOpen), Weight: w, Next: next})
			}
			for _, arc := range input.Arcs(s.in) {
				if arc.In == fst.Epsilon {
					next := add(arc.Next, s.node, false, nil, s.wordCtx)
					out.AddArc(s.id, fst.Arc{In: arc.In, Out: fst.Epsilon, Weight: arc.Weight, Next: next})
					continue
				}
				child, ok := s.node.children[CharID(arc.In)]
				if !ok {
					continue
				}
				next := add(arc.Next, child, false, nil, s.wordCtx)
				out.AddArc(s.id, fst.Arc{In: arc.In, Out: fst.Epsilon, Weight: arc.Weight, Next: next})
				if child.hasWord {
					seated := pl.known.SeatedMass(child.word, s.wordCtx)
					if seated > 0 {
						nextCtx := pushID(s.wordCtx, child.word)
						dest := add(arc.Next, pl.lex.root, false, nil, nextCtx)
						out.AddArc(s.id, fst.Arc{
							In:     arc.In,
							Out:    wordLabelBase + fst.Label(child.word),
							Weight: arc.Weight - math.Log(seated),
							Next:   dest,
						})
					}
				}
			}
		} else {
			// Inside an unknown-word span.
			for _, arc := range input.Arcs(s.in) {
				if arc.In == fst.Epsilon {
					next := add(arc.Next, nil, s.seen, s.charCtx, s.wordCtx)
					out.AddArc(s.id, fst.Arc{In: arc.In, Out: fst.Epsilon, Weight: arc.Weight, Next: next})
					continue
				}
				if !syms.IsChar(uint32(arc.In)) {
					continue
				}
				c := CharID(arc.In)
				p, _ := pl.unk.CalcProb(c, s.charCtx, pl.charBase)
				next := add(arc.Next, nil, true, pushID(s.charCtx, c), s.wordCtx)
				out.AddArc(s.id, fst.Arc{In: arc.In, Out: arc.In, Weight: arc.Weight - math.Log(p), Next: next})
			}
			if s.seen {
				// Close the span. The word identity is not known at
				// composition time, so the context advances with the
				// novel-word sentinel, which backs scoring off to
				// shorter contexts.
				nextCtx := pushID(s.wordCtx, WordID(novelID))
				dest := add(s.in, pl.lex.root, false, nil, nextCtx)
				out.AddArc(s.id, fst.Arc{In: fst.Epsilon, Out: fst.Label(syms.unkClose), Weight: 0, Next: dest})
			}
		}
	}
	return out
}
