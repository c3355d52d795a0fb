package latticelm

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	log "github.com/golang/glog"
)

const bosLabel = "<s>"

func snapshotPath(prefix, name string, iter int) string {
	if iter >= 0 {
		return fmt.Sprintf("%s%s.%d", prefix, name, iter)
	}
	return prefix + name
}

// writeLM dumps every seated n-gram of a model, one line per entry:
// the context and target symbols, the customer count, the current
// probability and the base probability. The same routine serves both
// the word-level and the character-level model.
func writeLM[T symbolID](lm *PYLM[T], name func(T) string, base func(T) float64, path string) error {
	resolve := func(id T) string {
		if uint32(id) == bosID {
			return bosLabel
		}
		return name(id)
	}
	var lines []string
	for _, key := range lm.sortedKeys() {
		rst := lm.restaurants[key]
		u := parseCtxKey[T](key)
		parts := make([]string, 0, len(u)+1)
		for _, id := range u {
			parts = append(parts, resolve(id))
		}
		for _, id := range sortedIDs(rst.tables) {
			count := rst.customerCount[id]
			if count == 0 {
				continue
			}
			b := base(id)
			p, _ := lm.CalcProb(id, u, b)
			entry := append(append([]string{}, parts...), resolve(id))
			lines = append(lines, fmt.Sprintf("%s\t%d\t%g\t%g", strings.Join(entry, " "), count, p, b))
		}
	}
	sort.Strings(lines)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSamples writes the current history of every sentence as
// space-joined surface words, one line per sentence.
func writeSamples(histories [][]WordID, lex *Lexicon, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, hist := range histories {
		for j, word := range hist {
			if j > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprint(w, lex.WordString(word))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSymbols writes the symbol table followed by the word surface
// forms, continuing the index space.
func writeSymbols(lex *Lexicon, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	syms := lex.Symbols()
	for id := 0; id < syms.Len(); id++ {
		fmt.Fprintf(w, "%s\t%d\n", syms.StringOf(uint32(id)), id)
	}
	for id := 0; id < lex.NumWords(); id++ {
		fmt.Fprintf(w, "%s\t%d\n", lex.WordString(WordID(id)), syms.Len()+id)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSnapshot serializes both models, the current samples and the
// symbol table under the configured prefix with an iteration suffix.
func (t *Trainer) writeSnapshot(iter int) error {
	syms := t.lex.Symbols()

	path := snapshotPath(t.cfg.Prefix, "ulm", iter)
	log.Infof(" Writing LM to %s", path)
	err := writeLM(t.unkLM,
		func(id CharID) string { return syms.StringOf(uint32(id)) },
		func(CharID) float64 { return t.pipe.charBase },
		path)
	if err != nil {
		return err
	}

	path = snapshotPath(t.cfg.Prefix, "wlm", iter)
	log.Infof(" Writing LM to %s", path)
	err = writeLM(t.knownLM,
		func(id WordID) string { return t.lex.WordString(id) },
		func(id WordID) float64 {
			logp, _ := t.unkLM.CalcSentence(t.lex.WordSpelling(id), t.unkBases, false)
			return math.Exp(logp)
		},
		path)
	if err != nil {
		return err
	}

	path = snapshotPath(t.cfg.Prefix, "samp", iter)
	log.Infof(" Writing samples to %s", path)
	if err := writeSamples(t.histories, t.lex, path); err != nil {
		return err
	}

	path = snapshotPath(t.cfg.Prefix, "sym", iter)
	log.Infof(" Writing symbols to %s", path)
	return writeSymbols(t.lex, path)
}
