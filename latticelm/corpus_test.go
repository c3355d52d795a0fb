package latticelm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTextCorpus(t *testing.T) {
	path := writeTemp(t, "train.txt", "a b a\nb a\n")
	syms := NewSymbolTable()
	corpus, err := LoadTextCorpus([]string{path}, syms)
	require.NoError(t, err)
	assert.Equal(t, 2, corpus.Len())
	assert.Equal(t, 2, syms.AlphabetSize())

	first, err := corpus.Input(0)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NumArcs())
	assert.Equal(t, 4, first.NumStates())

	second, err := corpus.Input(1)
	require.NoError(t, err)
	assert.Equal(t, 2, second.NumArcs())
}

func TestLoadTextCorpusRejectsEmptyLine(t *testing.T) {
	path := writeTemp(t, "train.txt", "a b\n\nc\n")
	_, err := LoadTextCorpus([]string{path}, NewSymbolTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty line")
}

func TestLoadTextCorpusRejectsReservedSymbols(t *testing.T) {
	path := writeTemp(t, "train.txt", "a <unk> b\n")
	_, err := LoadTextCorpus([]string{path}, NewSymbolTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestReadSymbolFile(t *testing.T) {
	path := writeTemp(t, "units.sym", "<eps>\t0\na\t1\nb\t2\n")
	syms, err := ReadSymbolFile(path)
	require.NoError(t, err)
	// The three missing reserved labels are appended after the given ids.
	assert.Equal(t, 6, syms.Len())
	assert.Equal(t, 2, syms.AlphabetSize())

	id, ok := syms.IdOf("a")
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)
	assert.True(t, syms.IsChar(id))
	assert.False(t, syms.IsChar(0))
}

func TestReadSymbolFileRejectsSparseIndices(t *testing.T) {
	path := writeTemp(t, "units.sym", "<eps>\t0\na\t5\n")
	_, err := ReadSymbolFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dense")
}

func TestReadSymbolFileRejectsDuplicates(t *testing.T) {
	path := writeTemp(t, "units.sym", "a\t0\na\t1\n")
	_, err := ReadSymbolFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLatticeCorpusReleaseDropsCache(t *testing.T) {
	lattice := "0\t1\t1\t1\t0.5\n1\t0\n"
	path := writeTemp(t, "utt1.fst", lattice)
	corpus := NewLatticeCorpus([]string{path}, 0.2, false)
	require.Equal(t, 1, corpus.Len())

	a, err := corpus.Input(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, a.Arcs(0)[0].Weight, 1e-12, "acoustic scaling must apply on load")
	assert.Nil(t, corpus.inputs[0], "uncached input must not stay resident")
	corpus.Release(0)
	assert.Nil(t, corpus.inputs[0])
}
