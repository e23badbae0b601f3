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
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/elassemble/internal"
)

// a kmerRecord is one k-mer instance: its blob offset and the
// aggregate error probability of its window.
type kmerRecord struct {
	Pos     BlobPos
	ErrProb float64
}

// SplitKMers streams all stored reads through the valid k-mer
// generator and partitions the resulting k-mer instances into NumFiles
// on-disk bucket files by hash. Every valid k-mer instance appears in
// exactly one bucket.
func (ctx *Context) SplitKMers() {
	nthreads := ctx.MergeNumThreads
	numfiles := ctx.NumFiles
	log.Printf("Splitting k-mer instances into %v files in %v threads.", numfiles, nthreads)

	writers := make([]*tmpWriter, numfiles)
	for i := range writers {
		writers[i] = ctx.createTmp(ctx.numFilename("tmp.kmers", i))
	}

	staging := make([][][]kmerRecord, nthreads)
	stagingCap := 1 + int(1.25*float64(ctx.SplitBuffer)/float64(nthreads))
	for t := range staging {
		staging[t] = make([][]kmerRecord, numfiles)
		for i := range staging[t] {
			staging[t][i] = make([]kmerRecord, 0, stagingCap)
		}
	}

	blob := ctx.Blob
	reads := blob.Reads
	for lo := 0; lo < len(reads); lo += ctx.SplitBuffer {
		hi := lo + ctx.SplitBuffer
		if hi > len(reads) {
			hi = len(reads)
		}

		chunk := (hi - lo + nthreads - 1) / nthreads
		thunks := make([]func(), 0, nthreads)
		for t := 0; t < nthreads; t++ {
			t := t
			low := lo + t*chunk
			high := low + chunk
			if high > hi {
				high = hi
			}
			if low >= high {
				continue
			}
			thunks = append(thunks, func() {
				buffers := staging[t]
				for i := low; i < high; i++ {
					pr := &reads[i]
					seq := blob.ReadSeq(pr)
					qual := blob.ReadQual(pr)
					for gen := NewValidKMerGenerator(seq, qual, ctx.CommonQuality); gen.HasMore(); gen.Next() {
						bucket := internal.BytesHash(gen.KMer()) % uint64(numfiles)
						buffers[bucket] = append(buffers[bucket], kmerRecord{
							Pos:     pr.Start + BlobPos(gen.Pos()),
							ErrProb: gen.ErrProb(),
						})
					}
				}
			})
		}
		parallel.Do(thunks...)

		// one writer per bucket; the partition is the exclusion
		parallel.Range(0, numfiles, 0, func(low, high int) {
			for k := low; k < high; k++ {
				w := writers[k]
				for t := range staging {
					for _, rec := range staging[t][k] {
						fmt.Fprintf(w, "%d\t%v\n", rec.Pos, rec.ErrProb)
					}
					staging[t][k] = staging[t][k][:0]
				}
			}
		})
	}

	for _, w := range writers {
		w.Close()
	}
}
