package latticelm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/recruit474/latticelm/fst"
)

const (
	inputText = "text"
	inputFST  = "fst"
)

// Corpus holds the per-sentence input automata, either cached in
// memory or reloaded and rescaled from disk on every access.
type Corpus struct {
	mode    string
	files   []string
	inputs  []*fst.Automaton
	cache   bool
	amScale float64
}

// LoadTextCorpus reads whitespace-tokenized sentences, one per line,
// interning every token into the symbol table and building a linear
// automaton per sentence. An empty line is a fatal input error. Text
// corpora are always cached.
func LoadTextCorpus(files []string, syms *SymbolTable) (*Corpus, error) {
	c := &Corpus{mode: inputText, files: files, cache: true}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("couldn't open input file %s: %v", path, err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 1<<16), 1<<22)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			tokens := strings.Fields(sc.Text())
			if len(tokens) == 0 {
				f.Close()
				return nil, fmt.Errorf("empty line found in %s at line %d: each training line must contain at least one symbol", path, lineNo)
			}
			labels := make([]fst.Label, len(tokens))
			for i, tok := range tokens {
				if IsReservedLabel(tok) {
					f.Close()
					return nil, fmt.Errorf("reserved symbol %q found in %s at line %d", tok, path, lineNo)
				}
				labels[i] = fst.Label(syms.IdOrAdd(tok))
			}
			c.inputs = append(c.inputs, fst.Chain(labels))
		}
		if err := sc.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("read error in %s: %v", path, err)
		}
		f.Close()
	}
	return c, nil
}

// NewLatticeCorpus wraps one serialized lattice file per sentence.
// Lattices are rescaled by the acoustic-model scale and arc-sorted on
// load; with caching disabled each access reloads from disk.
func NewLatticeCorpus(files []string, amScale float64, cache bool) *Corpus {
	return &Corpus{
		mode:    inputFST,
		files:   files,
		inputs:  make([]*fst.Automaton, len(files)),
		cache:   cache,
		amScale: amScale,
	}
}

// Len returns the number of sentences.
func (c *Corpus) Len() int {
	if c.mode == inputText {
		return len(c.inputs)
	}
	return len(c.files)
}

// Input returns the automaton for sentence i, loading it if needed.
func (c *Corpus) Input(i int) (*fst.Automaton, error) {
	if i < len(c.inputs) && c.inputs[i] != nil {
		return c.inputs[i], nil
	}
	a, err := fst.ReadTextFile(c.files[i])
	if err != nil {
		return nil, err
	}
	a.ScaleWeights(c.amScale)
	a.SortArcsByOutput()
	if c.cache {
		c.inputs[i] = a
	}
	return a, nil
}

// Release drops the cached automaton for sentence i. A no-op for text
// corpora, which stay resident.
func (c *Corpus) Release(i int) {
	if c.mode == inputFST && !c.cache {
		c.inputs[i] = nil
	}
}

// ReadSymbolFile loads a "label<TAB>index" symbol table and appends
// any missing reserved labels without disturbing the given ids.
func ReadSymbolFile(path string) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open symbol file %s: %v", path, err)
	}
	defer f.Close()

	st := &SymbolTable{
		str2id:   make(map[string]uint32),
		reserved: make(map[uint32]bool),
	}
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s line %d: expected \"label index\"", path, lineNo)
		}
		idx, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad index %q", path, lineNo, fields[1])
		}
		if int(idx) != len(st.id2str) {
			return nil, fmt.Errorf("%s line %d: indices must be dense and ascending, got %d", path, lineNo, idx)
		}
		if _, dup := st.str2id[fields[0]]; dup {
			return nil, fmt.Errorf("%s line %d: duplicate symbol %q", path, lineNo, fields[0])
		}
		st.add(fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read error in %s: %v", path, err)
	}
	st.ensureReserved()
	return st, nil
}
