package latticelm

import (
	"fmt"
	"strings"

	"github.com/recruit474/latticelm/fst"
)

// WordID indexes a word type in the lexicon.
type WordID uint32

// CharID is a character (unit) symbol id from the symbol table.
type CharID uint32

// Reserved symbol labels. Input data must not contain them.
const (
	symEps      = "<eps>"
	symPhi      = "<phi>"
	symUnkOpen  = "<unk>"
	symUnkClose = "</unk>"
)

// wordLabelBase offsets word ids into the output label space of the
// composed automaton, above every character symbol id.
const wordLabelBase fst.Label = 1 << 31

// SymbolTable maps unit labels to dense ids. Reserved labels (epsilon,
// phi and the unknown-word span markers) are tracked so the remaining
// ids form the character alphabet.
type SymbolTable struct {
	id2str   []string
	str2id   map[string]uint32
	reserved map[uint32]bool
	unkOpen  uint32
	unkClose uint32
}

// NewSymbolTable returns a table holding only the reserved labels.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{
		str2id:   make(map[string]uint32),
		reserved: make(map[uint32]bool),
	}
	st.ensureReserved()
	return st
}

func (st *SymbolTable) add(s string) uint32 {
	id := uint32(len(st.id2str))
	st.id2str = append(st.id2str, s)
	st.str2id[s] = id
	return id
}

// ensureReserved makes sure every reserved label is present, appending
// the missing ones without disturbing existing ids.
func (st *SymbolTable) ensureReserved() {
	for _, s := range []string{symEps, symPhi, symUnkOpen, symUnkClose} {
		id, ok := st.str2id[s]
		if !ok {
			id = st.add(s)
		}
		st.reserved[id] = true
	}
	st.unkOpen = st.str2id[symUnkOpen]
	st.unkClose = st.str2id[symUnkClose]
}

// IdOrAdd returns the id of label s, adding it when absent.
func (st *SymbolTable) IdOrAdd(s string) uint32 {
	if id, ok := st.str2id[s]; ok {
		return id
	}
	return st.add(s)
}

// IdOf looks up the id of label s.
func (st *SymbolTable) IdOf(s string) (uint32, bool) {
	id, ok := st.str2id[s]
	return id, ok
}

// StringOf returns the label of id.
func (st *SymbolTable) StringOf(id uint32) string { return st.id2str[id] }

// Len returns the number of symbols including reserved ones.
func (st *SymbolTable) Len() int { return len(st.id2str) }

// IsChar reports whether id is a character symbol rather than a
// reserved label.
func (st *SymbolTable) IsChar(id uint32) bool {
	return int(id) < len(st.id2str) && !st.reserved[id]
}

// AlphabetSize returns the number of character symbols.
func (st *SymbolTable) AlphabetSize() int { return len(st.id2str) - len(st.reserved) }

// IsReservedLabel reports whether s is one of the reserved labels.
func IsReservedLabel(s string) bool {
	switch s {
	case symEps, symPhi, symUnkOpen, symUnkClose:
		return true
	}
	return false
}

type trieNode struct {
	children map[CharID]*trieNode
	word     WordID
	hasWord  bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[CharID]*trieNode)}
}

// Lexicon maps word types to character spellings and back, and exposes
// the spelling trie the composition pipeline walks. Word types are
// created when a sampled path first produces their spelling.
type Lexicon struct {
	syms      *SymbolTable
	separator string
	words     [][]CharID
	spellings map[string]WordID
	root      *trieNode
}

// NewLexicon returns an empty lexicon over the given alphabet.
func NewLexicon(syms *SymbolTable, separator string) *Lexicon {
	return &Lexicon{
		syms:      syms,
		separator: separator,
		spellings: make(map[string]WordID),
		root:      newTrieNode(),
	}
}

// Symbols returns the underlying symbol table.
func (l *Lexicon) Symbols() *SymbolTable { return l.syms }

// NumWords returns the number of word types.
func (l *Lexicon) NumWords() int { return len(l.words) }

// Words returns every spelling indexed by word id. Shared, read-only.
func (l *Lexicon) Words() [][]CharID { return l.words }

// WordSpelling returns the character sequence of a word type.
func (l *Lexicon) WordSpelling(id WordID) []CharID { return l.words[id] }

// WordOf looks up the word type with the given spelling.
func (l *Lexicon) WordOf(spelling []CharID) (WordID, bool) {
	id, ok := l.spellings[ctxKey(spelling)]
	return id, ok
}

// AddWord registers a spelling as a word type, returning the existing
// id when the spelling is already known.
func (l *Lexicon) AddWord(spelling []CharID) WordID {
	if len(spelling) == 0 {
		panic("AddWord: empty spelling")
	}
	key := ctxKey(spelling)
	if id, ok := l.spellings[key]; ok {
		return id
	}
	id := WordID(len(l.words))
	stored := make([]CharID, len(spelling))
	copy(stored, spelling)
	l.words = append(l.words, stored)
	l.spellings[key] = id
	node := l.root
	for _, c := range stored {
		child, ok := node.children[c]
		if !ok {
			child = newTrieNode()
			node.children[c] = child
		}
		node = child
	}
	node.word = id
	node.hasWord = true
	return id
}

// WordString returns the surface form of a word type, its character
// labels joined by the configured separator.
func (l *Lexicon) WordString(id WordID) string {
	spelling := l.words[id]
	parts := make([]string, len(spelling))
	for i, c := range spelling {
		parts[i] = l.syms.StringOf(uint32(c))
	}
	return strings.Join(parts, l.separator)
}

// ParsePath maps a sampled path's output labels to word ids: word
// labels resolve directly, unknown-word spans create or reuse a word
// type for the bracketed spelling.
func (l *Lexicon) ParsePath(labels []fst.Label) []WordID {
	var history []WordID
	var span []CharID
	inSpan := false
	for _, lab := range labels {
		switch {
		case lab >= wordLabelBase:
			if inSpan {
				panic("ParsePath: word label inside an unknown-word span")
			}
			history = append(history, WordID(lab-wordLabelBase))
		case uint32(lab) == l.syms.unkOpen:
			if inSpan {
				panic("ParsePath: nested unknown-word span")
			}
			inSpan = true
			span = span[:0]
		case uint32(lab) == l.syms.unkClose:
			if !inSpan || len(span) == 0 {
				panic("ParsePath: empty or unopened unknown-word span")
			}
			history = append(history, l.AddWord(span))
			inSpan = false
		default:
			if !inSpan {
				panic(fmt.Sprintf("ParsePath: stray character label %d outside a span", lab))
			}
			span = append(span, CharID(lab))
		}
	}
	if inSpan {
		panic("ParsePath: unterminated unknown-word span")
	}
	return history
}
