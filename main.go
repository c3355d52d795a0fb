package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/golang/glog"

	"github.com/recruit474/latticelm/latticelm"
)

const usageText = `latticelm - learns a word lexicon and an n-gram language model
from raw text or weighted lattices using hierarchical Pitman-Yor
language models and Gibbs sampling.

Usage: latticelm -prefix out/ input.txt

Options:
  -burnin:       The number of iterations to execute as burn-in (20)
  -annealsteps:  The number of annealing steps to perform (5)
  -anneallength: The length of each annealing step in iterations (3)
  -samps:        The number of samples to take (100)
  -samprate:     Take samples every samprate turns (1)
  -knownn:       The n-gram length of the word model (3)
  -unkn:         The n-gram length of the character model (3)
  -prune:        If non-zero, paths that are worse than the best path
                 by this amount will be pruned (0)
  -input:        The type of input, "text" or "fst" (text)
  -filelist:     A file listing one input file per line, used instead
                 of or in addition to positional arguments
  -symbolfile:   The symbol table for lattice input
  -prefix:       The prefix under which all output is written
  -separator:    The string printed between characters of a word
  -cacheinput:   Cache lattice input in memory instead of reloading it
                 from disk every iteration (false)
  -seed:         The random seed, 0 seeds from the clock (0)
`

func dieOnHelp(err string) {
	fmt.Fprint(os.Stderr, usageText)
	if err != "" {
		fmt.Fprintf(os.Stderr, "\nError: %s\n", err)
	}
	os.Exit(1)
}

func main() {
	var (
		flagBurnIn       = flag.Int("burnin", 20, "number of burn-in iterations")
		flagAnnealSteps  = flag.Int("annealsteps", 5, "number of annealing steps")
		flagAnnealLength = flag.Int("anneallength", 3, "length of each annealing step in iterations")
		flagSamps        = flag.Int("samps", 100, "number of samples to take")
		flagSampRate     = flag.Int("samprate", 1, "iterations between samples")
		flagKnownN       = flag.Int("knownn", 3, "n-gram length of the word model")
		flagUnkN         = flag.Int("unkn", 3, "n-gram length of the character model")
		flagPrune        = flag.Float64("prune", 0, "pruning threshold, 0 disables pruning")
		flagInput        = flag.String("input", "text", "input type (text/fst)")
		flagFileList     = flag.String("filelist", "", "list of input files, one per line")
		flagSymbolFile   = flag.String("symbolfile", "", "symbol table for lattice input")
		flagPrefix       = flag.String("prefix", "", "prefix under which all output is written")
		flagSeparator    = flag.String("separator", "", "string printed between characters of a word")
		flagCacheInput   = flag.Bool("cacheinput", false, "cache lattice input in memory")
		flagSeed         = flag.Int64("seed", 0, "random seed, 0 seeds from the clock")
	)
	flag.Usage = func() { dieOnHelp("") }
	flag.Parse()

	cfg := latticelm.Config{
		NumBurnIn:        *flagBurnIn,
		NumAnnealSteps:   *flagAnnealSteps,
		AnnealStepLength: *flagAnnealLength,
		NumSamples:       *flagSamps,
		SampleRate:       *flagSampRate,
		PruneThreshold:   *flagPrune,
		KnownN:           *flagKnownN,
		UnkN:             *flagUnkN,
		InputType:        *flagInput,
		FileList:         *flagFileList,
		InputFiles:       flag.Args(),
		SymbolFile:       *flagSymbolFile,
		Prefix:           *flagPrefix,
		Separator:        *flagSeparator,
		CacheInput:       *flagCacheInput,
		Seed:             *flagSeed,
	}

	trainer, err := latticelm.NewTrainer(cfg)
	if err != nil {
		dieOnHelp(err.Error())
	}
	defer log.Flush()
	if err := trainer.Train(); err != nil {
		log.Exitf("training failed: %v", err)
	}
}
