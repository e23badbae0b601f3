// elAssemble: a high-performance tool for correcting sequencing reads
// and simplifying de Bruijn assembly graphs.
// Copyright (c) 2021-2023 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elassemble/blob/master/LICENSE.txt>.

package cmd

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/hammer"
)

// CorrectHelp is the help string for the elassemble correct command.
const CorrectHelp = "\ncorrect parameters:\n" +
	"elassemble correct fastq-file [fastq-file-right [fastq-file-unpaired]]\n" +
	"[--work-dir dir]\n" +
	"[--tau nr]\n" +
	"[--num-files nr]\n" +
	"[--split-buffer nr]\n" +
	"[--qv-offset nr]\n" +
	"[--trim-quality nr]\n" +
	"[--read-buffer nr]\n" +
	"[--good-threshold nr]\n" +
	"[--max-iterations nr]\n" +
	"[--common-quality nr]\n" +
	"[--use-threshold]\n" +
	"[--discard-singletons]\n" +
	"[--skip-iterative]\n" +
	"[--expand-write-each-iteration]\n" +
	"[--gzip]\n" +
	"[--keep-temp-files]\n" +
	"[--nr-of-threads nr]\n" +
	"[--log-path path]\n"

// Correct implements the elassemble correct command.
func Correct() error {
	var cfg hammer.Config
	var nrOfThreads int
	var keepTempFiles bool
	var logPath string

	var flags flag.FlagSet

	flags.StringVar(&cfg.WorkingDir, "work-dir", ".", "directory for temporary and output files")
	flags.IntVar(&cfg.Tau, "tau", 1, "Hamming radius for k-mer clustering")
	flags.IntVar(&cfg.NumFiles, "num-files", 16, "number of on-disk k-mer buckets")
	flags.IntVar(&cfg.SplitBuffer, "split-buffer", 1<<20, "reads per split batch")
	flags.IntVar(&cfg.QVOffset, "qv-offset", 33, "Phred quality encoding offset")
	flags.IntVar(&cfg.TrimQuality, "trim-quality", 2, "Phred threshold for trimming read tails")
	flags.IntVar(&cfg.ReadBuffer, "read-buffer", 1<<16, "reads per correction batch per thread")
	flags.Float64Var(&cfg.GoodThreshold, "good-threshold", 2, "quality-adjusted count threshold for solid k-mers")
	flags.IntVar(&cfg.MaxIterations, "max-iterations", 1, "maximum number of correction iterations")
	flags.IntVar(&cfg.CommonQuality, "common-quality", 0, "replace per-base qualities by this constant when positive")
	flags.BoolVar(&cfg.UseThreshold, "use-threshold", false, "also accept merely good k-mers during correction")
	flags.BoolVar(&cfg.DiscardSingletons, "discard-singletons", false, "treat singleton clusters as bad")
	flags.BoolVar(&cfg.SkipIterative, "skip-iterative", false, "skip the iterative expansion of the solid set")
	flags.BoolVar(&cfg.ExpandWriteEachIteration, "expand-write-each-iteration", false, "dump the solid set after every expansion step")
	flags.BoolVar(&cfg.GZip, "gzip", false, "compress temporary k-mer files")
	flags.BoolVar(&keepTempFiles, "keep-temp-files", false, "keep temporary files")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.StringVar(&logPath, "log-path", "", "path for the log file")

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, CorrectHelp)
		os.Exit(1)
	}

	requiredArgs := 3
	cfg.InputFiles = []string{getFilename(os.Args[2], CorrectHelp)}
	for _, arg := range os.Args[3:] {
		if len(arg) > 0 && arg[0] == '-' {
			break
		}
		cfg.InputFiles = append(cfg.InputFiles, arg)
		requiredArgs++
	}

	parseFlags(flags, requiredArgs, CorrectHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	for _, name := range cfg.InputFiles {
		if !checkExist("", name) {
			sanityChecksFailed = true
		}
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CorrectHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}
	cfg.MergeNumThreads = runtime.GOMAXPROCS(0)
	cfg.CorrectNumThreads = runtime.GOMAXPROCS(0)
	cfg.RemoveTempFiles = !keepTempFiles

	var err error
	timedRun("Correcting reads.", func() {
		err = hammer.Run(cfg)
	})
	return err
}
