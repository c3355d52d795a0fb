package latticelm

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	log "github.com/golang/glog"
)

// Defaults and internal constants of the training procedure.
const (
	defaultTrimRate = 1    // iterations between vocabulary trims
	acousticScale   = 0.2  // rescaling applied to lattice weights on load
	maxWordLen      = 1000 // longest spelling the base table covers

	initialStrength = 2.0
	initialDiscount = 0.1
)

// Config carries every training option. Zero values are not defaults;
// use the command-line front end or fill all fields.
type Config struct {
	NumBurnIn        int
	NumAnnealSteps   int
	AnnealStepLength int
	NumSamples       int
	SampleRate       int
	TrimRate         int

	PruneThreshold float64
	KnownN         int
	UnkN           int

	InputType  string
	FileList   string
	InputFiles []string
	SymbolFile string

	Prefix     string
	Separator  string
	CacheInput bool

	Seed int64
}

// Trainer owns the two count models, the lexicon and every sentence's
// current word history, and runs the annealed Gibbs iterations.
type Trainer struct {
	cfg    Config
	corpus *Corpus
	lex    *Lexicon
	pipe   *pipeline

	knownLM *PYLM[WordID]
	unkLM   *PYLM[CharID]

	unkBases  []float64
	histories [][]WordID
	scan      []int

	rng         *rand.Rand
	annealLevel float64

	latticeLikelihood float64
	knownLikelihood   float64
	unkLikelihood     float64
}

func readFileList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read the file list %s: %v", path, err)
	}
	var files []string
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := string(data[start:i])
			if line != "" {
				files = append(files, line)
			}
			start = i + 1
		}
	}
	return files, nil
}

// NewTrainer validates the configuration, loads the inputs and the
// symbol alphabet, and returns a trainer ready to run.
func NewTrainer(cfg Config) (*Trainer, error) {
	if cfg.TrimRate == 0 {
		cfg.TrimRate = defaultTrimRate
	}
	if cfg.KnownN < 1 || cfg.UnkN < 1 {
		return nil, fmt.Errorf("n-gram orders must be at least 1")
	}
	if cfg.AnnealStepLength < 1 {
		return nil, fmt.Errorf("the annealing step length must be at least 1")
	}
	if cfg.SampleRate < 1 {
		return nil, fmt.Errorf("the sample rate must be at least 1")
	}
	if cfg.InputType != inputText && cfg.InputType != inputFST {
		return nil, fmt.Errorf("bad input type %q", cfg.InputType)
	}
	files := cfg.InputFiles
	if cfg.FileList != "" {
		listed, err := readFileList(cfg.FileList)
		if err != nil {
			return nil, err
		}
		files = append(listed, files...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files specified")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("couldn't find input file %s", f)
		}
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("no output prefix was specified")
	}
	if cfg.InputType == inputText {
		cfg.CacheInput = true
	}

	var syms *SymbolTable
	var corpus *Corpus
	var err error
	switch cfg.InputType {
	case inputText:
		syms = NewSymbolTable()
		corpus, err = LoadTextCorpus(files, syms)
		if err != nil {
			return nil, err
		}
	case inputFST:
		if cfg.SymbolFile == "" {
			return nil, fmt.Errorf("no symbol file was set")
		}
		syms, err = ReadSymbolFile(cfg.SymbolFile)
		if err != nil {
			return nil, err
		}
		corpus = NewLatticeCorpus(files, acousticScale, cfg.CacheInput)
	}
	log.Infof("Loaded %d symbols", syms.AlphabetSize())

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	lex := NewLexicon(syms, cfg.Separator)
	t := &Trainer{
		cfg:       cfg,
		corpus:    corpus,
		lex:       lex,
		knownLM:   NewPYLM[WordID](cfg.KnownN, initialStrength, initialDiscount, rng, uint64(seed)+1),
		unkLM:     NewPYLM[CharID](cfg.UnkN, initialStrength, initialDiscount, rng, uint64(seed)+2),
		histories: make([][]WordID, corpus.Len()),
		rng:       rng,
	}
	t.pipe = &pipeline{
		lex:      lex,
		known:    t.knownLM,
		unk:      t.unkLM,
		charBase: 1.0 / float64(syms.AlphabetSize()),
	}
	t.unkBases = make([]float64, maxWordLen)
	for i := range t.unkBases {
		t.unkBases[i] = t.pipe.charBase
	}
	t.scan = make([]int, corpus.Len())
	for i := range t.scan {
		t.scan[i] = i
	}
	return t, nil
}

// SetScan replaces the sentence scan order. The default is the
// identity permutation over all sentences.
func (t *Trainer) SetScan(scan []int) { t.scan = scan }

// annealSchedule computes the anneal level for an iteration: zero for
// a flattened start, then climbing over numAnnealSteps steps of
// annealStepLength iterations each until it holds at one.
func annealSchedule(iter, annealStepLength, numAnnealSteps int) float64 {
	step := (iter + annealStepLength - 1) / annealStepLength
	if step == 0 {
		return 0
	}
	return 1.0 / math.Max(1.0, float64(numAnnealSteps-step))
}

// Train runs numSamples+1 Gibbs iterations: per-sentence resampling at
// the scheduled anneal level, hyperparameter resampling, periodic
// trimming and periodic snapshot output.
func (t *Trainer) Train() error {
	for iter := 0; iter <= t.cfg.NumSamples; iter++ {
		t.latticeLikelihood = 0
		t.knownLikelihood = 0
		t.unkLikelihood = 0
		t.annealLevel = annealSchedule(iter, t.cfg.AnnealStepLength, t.cfg.NumAnnealSteps)

		t.iterate(t.annealLevel)

		t.knownLM.SampleHyperParameters()
		t.unkLM.SampleHyperParameters()
		t.logIterationStatus(iter)

		if iter%t.cfg.TrimRate == 0 {
			t.trim()
		}
		if iter >= t.cfg.NumBurnIn && (iter-t.cfg.NumBurnIn)%t.cfg.SampleRate == 0 {
			log.Infof("Printing sample for iteration %d", iter)
			if err := t.writeSnapshot(iter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Trainer) iterate(annealLevel float64) {
	bar := pb.StartNew(len(t.scan))
	for _, sentID := range t.scan {
		t.resample(sentID, annealLevel)
		bar.Add(1)
	}
	bar.Finish()
}

func (t *Trainer) logIterationStatus(iter int) {
	log.Infof("Finished iteration %d (Anneal=%g), LM=%g (w=%g, u=%g), Lattice=%g",
		iter, t.annealLevel, t.knownLikelihood+t.unkLikelihood,
		t.knownLikelihood, t.unkLikelihood, t.latticeLikelihood)
	log.Infof(" Vocabulary: w=%d, u=%d", t.knownLM.VocabSize(), t.unkLM.VocabSize())
	log.Infof(" LM size: w=%d, u=%d", t.knownLM.Size(), t.unkLM.Size())
	for i := 0; i < t.cfg.KnownN; i++ {
		log.Infof(" WLM %d-gram, s=%g, d=%g", i+1, t.knownLM.Strength(i), t.knownLM.Discount(i))
	}
	for i := 0; i < t.cfg.UnkN; i++ {
		log.Infof(" CLM %d-gram, s=%g, d=%g", i+1, t.unkLM.Strength(i), t.unkLM.Discount(i))
	}
}

// trim garbage-collects word types with no remaining customers,
// compacts the lexicon and remaps every stored history. Runs only
// between iterations, when every live history is fully committed. The
// character model needs no pass of its own: its emptied contexts are
// deleted as the last customer leaves.
func (t *Trainer) trim() {
	mapping := t.knownLM.Trim(t.lex.NumWords(), true)

	next := NewLexicon(t.lex.syms, t.cfg.Separator)
	for id, spelling := range t.lex.Words() {
		if mapping[id] != -1 {
			next.AddWord(spelling)
		}
	}
	for i := range t.histories {
		for j, w := range t.histories[i] {
			nw := mapping[w]
			if nw == -1 {
				panic(fmt.Sprintf("trim: history %d references removed word type %d", i, w))
			}
			t.histories[i][j] = WordID(uint32(nw))
		}
	}
	t.lex = next
	t.pipe.lex = next
}

// Histories returns the current sample for every sentence.
func (t *Trainer) Histories() [][]WordID { return t.histories }

// Lexicon returns the current lexicon.
func (t *Trainer) Lexicon() *Lexicon { return t.lex }
