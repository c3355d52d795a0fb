package latticelm

import (
	"math"

	log "github.com/golang/glog"

	"github.com/recruit474/latticelm/fst"
)

// resample redraws the word history of one sentence: retract its
// current counts, compose and prune its automaton under the current
// models, draw one path at the given anneal level, parse it back into
// a history and commit the new counts. The retract and commit steps
// use the models' self-reported base positions so the character-level
// counts mirror exactly the word-level table events.
func (t *Trainer) resample(sentID int, annealLevel float64) {
	if len(t.histories[sentID]) > 0 {
		t.removeSample(sentID)
	}

	input, err := t.corpus.Input(sentID)
	if err != nil {
		log.Exitf("sentence %d: %v", sentID, err)
	}
	composed := t.pipe.compose(input)
	pruned := composed
	if t.cfg.PruneThreshold != 0 {
		pruned = fst.Prune(composed, t.cfg.PruneThreshold)
	}
	if pruned.NumStates() <= 1 {
		t.dumpPipeline(input, composed, pruned)
		log.Exitf("sentence %d: pruned automaton has one or fewer states", sentID)
	}

	path, err := fst.SamplePath(pruned, annealLevel, t.rng)
	if err != nil {
		t.dumpPipeline(input, composed, pruned)
		log.Exitf("sentence %d: %v", sentID, err)
	}

	t.histories[sentID] = t.lex.ParsePath(path.Labels)
	t.addSample(sentID)
	if !t.cfg.CacheInput {
		t.corpus.Release(sentID)
	}
	t.latticeLikelihood += path.Weight
}

// removeSample retracts a sentence's full history: one customer per
// position from the word model, and for exactly the positions whose
// removal dissolved a base-level table, the word's spelling from the
// character model.
func (t *Trainer) removeSample(sentID int) {
	hist := t.histories[sentID]
	for _, j := range t.knownLM.RemoveCustomers(hist) {
		t.unkLM.RemoveCustomers(t.lex.WordSpelling(hist[j]))
	}
}

// addSample commits a sentence's history: every position is seated in
// the word model with its base probability read (not committed) from
// the character model, then the spellings of the base positions are
// seated in the character model.
func (t *Trainer) addSample(sentID int) {
	words := t.histories[sentID]
	bases := make([]float64, len(words))
	for j, w := range words {
		logp, _ := t.unkLM.CalcSentence(t.lex.WordSpelling(w), t.unkBases, false)
		bases[j] = math.Exp(logp)
	}
	logp, basePositions := t.knownLM.CalcSentence(words, bases, true)
	t.knownLikelihood -= logp
	for _, j := range basePositions {
		lp, _ := t.unkLM.CalcSentence(t.lex.WordSpelling(words[j]), t.unkBases, true)
		t.unkLikelihood -= lp
	}
}

// dumpPipeline writes the staged automata for post-mortem inspection
// before an integrity abort.
func (t *Trainer) dumpPipeline(input, composed, pruned *fst.Automaton) {
	for _, d := range []struct {
		a    *fst.Automaton
		path string
	}{
		{input, t.cfg.Prefix + "inputFst.txt"},
		{composed, t.cfg.Prefix + "composedFst.txt"},
		{pruned, t.cfg.Prefix + "prunedFst.txt"},
	} {
		if err := fst.WriteTextFile(d.a, d.path); err != nil {
			log.Errorf("couldn't dump %s: %v", d.path, err)
		} else {
			log.Infof("Dumped %s", d.path)
		}
	}
}
