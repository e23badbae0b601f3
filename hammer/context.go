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

// Package hammer implements the k-mer counting and read correction
// engine: reads are stored in a blob, k-mer instances are counted by
// an external split/merge, k-mers are clustered under Hamming
// distance, and reads are rewritten by per-position consensus over
// solid k-mers.
package hammer

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// A Config collects all parameters of the correction pipeline. It is
// built once by the command layer and passed down explicitly.
type Config struct {
	// Hamming radius for k-mer clustering.
	Tau int
	// Number of on-disk bucket files for the k-mer split.
	NumFiles int
	// Number of reads per split batch.
	SplitBuffer int
	// Worker threads for splitting and merging.
	MergeNumThreads int
	// Phred quality encoding offset of the input files.
	QVOffset int
	// Phred threshold for trimming read tails.
	TrimQuality int
	// Worker threads for read correction.
	CorrectNumThreads int
	// Reads per correction batch, per thread.
	ReadBuffer int
	// Also accept k-mers that are merely GOOD (not GOOD_ITER) during
	// correction. May be combined freely with DiscardSingletons; the
	// two flags act independently.
	UseThreshold bool
	// Treat singleton clusters as bad regardless of quality.
	DiscardSingletons bool
	// Dump the solid k-mer set after every expansion step.
	ExpandWriteEachIteration bool
	// Compress temporary k-mer files.
	GZip bool
	// Log2 of the file buffer size.
	FileBufferExp int
	// Remove temporary files when they are no longer needed.
	RemoveTempFiles bool
	// When positive, replaces per-base qualities by this constant and
	// drops the quality arena.
	CommonQuality int
	// Quality-adjusted count threshold for flagging a cluster center
	// GOOD: a center passes when count*(1-totalErrorProb) reaches it.
	GoodThreshold float64
	// Skip the iterative expansion of the solid set.
	SkipIterative bool
	// Maximum number of correction iterations.
	MaxIterations int
	// Directory for temporary and output files.
	WorkingDir string
	// Input FASTQ files; the first two are treated as a pair.
	InputFiles []string
}

// Check validates the configuration and fills in defaults.
func (cfg *Config) Check() error {
	if cfg.Tau < 1 {
		cfg.Tau = 1
	}
	if cfg.Tau >= K {
		return fmt.Errorf("tau %v out of range for k-mer length %v", cfg.Tau, K)
	}
	if cfg.NumFiles <= 0 {
		cfg.NumFiles = 16
	}
	if cfg.SplitBuffer <= 0 {
		cfg.SplitBuffer = 1 << 20
	}
	if cfg.MergeNumThreads <= 0 {
		cfg.MergeNumThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.CorrectNumThreads <= 0 {
		cfg.CorrectNumThreads = runtime.GOMAXPROCS(0)
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 1 << 16
	}
	if cfg.FileBufferExp <= 0 {
		cfg.FileBufferExp = 16
	}
	if cfg.GoodThreshold <= 0 {
		cfg.GoodThreshold = 2
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1
	}
	if cfg.QVOffset == 0 {
		cfg.QVOffset = 33
	}
	if len(cfg.InputFiles) == 0 {
		return fmt.Errorf("no input files")
	}
	if len(cfg.InputFiles) > 3 {
		return fmt.Errorf("at most two paired files and one unpaired file are supported, got %v", len(cfg.InputFiles))
	}
	return nil
}

// A Context carries the state of one correction iteration: the
// configuration, the blob, and the sub-k-mer slice positions. A fresh
// blob and k-mer table are built every iteration.
type Context struct {
	Config
	Iteration        int
	Blob             *Blob
	SubKMerPositions []uint32
	// Base names of the original input files; stable across
	// iterations even though InputFiles is rewritten to point at the
	// previous iteration's corrected output.
	FileBases []string
}

func (ctx *Context) filename(suffix string) string {
	return filepath.Join(ctx.WorkingDir, fmt.Sprintf("%02d.%s", ctx.Iteration, suffix))
}

func (ctx *Context) numFilename(suffix string, num int) string {
	return filepath.Join(ctx.WorkingDir, fmt.Sprintf("%02d.%s.%d", ctx.Iteration, suffix, num))
}

func (ctx *Context) readsFilename(fileno, iter int, suffix string) string {
	return filepath.Join(ctx.WorkingDir, fmt.Sprintf("%s.%02d.%s.fastq", ctx.FileBases[fileno], iter, suffix))
}

// FileBase strips directory, compression extension, and FASTQ
// extension from an input file name.
func FileBase(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext == ".gz" {
		base = base[:len(base)-len(ext)]
	}
	if ext := filepath.Ext(base); ext == ".fastq" || ext == ".fq" {
		base = base[:len(base)-len(ext)]
	}
	return base
}
