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

package hammer

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/fastq"
	"github.com/exascience/elassemble/internal"
)

// readFileIntoBlob appends all reads of one FASTQ file to the blob,
// trimmed and with too-short reads skipped.
func (ctx *Context) readFileIntoBlob(name string) {
	log.Println("Reading input file ", name)
	in, err := fastq.Open(name, ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		log.Panic(err)
	}
	defer internal.Close(in)
	var r fastq.Read
	for {
		err := in.ReadRecord(&r)
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Panic(err)
		}
		if r.TrimBadQuality(ctx.TrimQuality) < K {
			continue
		}
		var qual []byte
		if ctx.CommonQuality <= 0 {
			qual = r.Qual
		}
		ctx.Blob.AppendRead(r.Seq, qual)
	}
}

// BuildBlob reads all current input files into a fresh blob, forward
// reads first, then their reverse complements.
func (ctx *Context) BuildBlob() {
	ctx.Blob = NewBlob(ctx.CommonQuality > 0)
	for _, name := range ctx.InputFiles {
		ctx.readFileIntoBlob(name)
	}
	ctx.Blob.AppendReverseComplements()
	log.Printf("Blob built: %v reads (%v forward), %v bases.",
		len(ctx.Blob.Reads), ctx.Blob.RevNo, len(ctx.Blob.B))
}

// Run executes the full correction pipeline: per iteration it builds
// the blob, counts and clusters k-mers, expands the solid set, and
// rewrites the reads; it stops when an iteration changes no read or
// MaxIterations is reached.
func Run(cfg Config) error {
	if err := cfg.Check(); err != nil {
		return err
	}
	workDir := filepath.Join(cfg.WorkingDir, "elassemble-"+uuid.New().String())
	internal.MkdirAll(workDir, 0700)
	log.Println("Working directory: ", workDir)

	ctx := &Context{Config: cfg}
	ctx.WorkingDir = workDir
	ctx.InputFiles = append([]string(nil), cfg.InputFiles...)
	for _, name := range cfg.InputFiles {
		ctx.FileBases = append(ctx.FileBases, FileBase(name))
	}

	for iter := 0; iter < ctx.MaxIterations; iter++ {
		ctx.Iteration = iter
		log.Printf("=== ITERATION %v begins ===", iter)

		ctx.BuildBlob()
		ctx.InitSubKMerPositions()
		table := ctx.CountKMersBySplitAndMerge()
		ctx.ClusterKMers(table)
		ctx.SeedSolidKMers(table)
		if !ctx.SkipIterative {
			ctx.IterativeExpansion(table)
		}
		changed := ctx.CorrectAllReads(table)

		// release the iteration's tables before the next blob build
		ctx.Blob = nil

		if changed == 0 {
			log.Println("Correction converged, no reads changed.")
			break
		}
	}

	log.Println("Corrected reads written to:")
	for _, name := range ctx.InputFiles {
		log.Println("  ", name)
	}
	if cfg.RemoveTempFiles {
		cleanWorkDir(workDir, ctx.InputFiles)
	}
	return nil
}

// cleanWorkDir removes leftover temp files, keeping the final
// corrected outputs.
func cleanWorkDir(workDir string, keep []string) {
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		keepSet[filepath.Clean(name)] = true
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		log.Println("Error cleaning working directory: ", err)
		return
	}
	for _, entry := range entries {
		name := filepath.Join(workDir, entry.Name())
		if !keepSet[filepath.Clean(name)] {
			internal.RemoveFile(name)
		}
	}
}
