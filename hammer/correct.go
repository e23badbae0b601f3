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
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elassemble/fastq"
	"github.com/exascience/elassemble/internal"
)

// CorrectionStats counts the effects of one correction pass.
type CorrectionStats struct {
	ChangedReads       uint64
	ChangedNucleotides uint64
	UncorrectedReads   uint64
}

func (stats *CorrectionStats) add(changed int, ok bool) {
	if changed > 0 {
		atomic.AddUint64(&stats.ChangedReads, 1)
		atomic.AddUint64(&stats.ChangedNucleotides, uint64(changed))
	}
	if !ok {
		atomic.AddUint64(&stats.UncorrectedReads, 1)
	}
}

// voteMatrix is the per-read 4xL consensus accumulator. It is
// thread-local: each correction worker owns one and resets it between
// reads.
type voteMatrix struct {
	votes [4][]int
}

func (v *voteMatrix) reset(length int) {
	for k := range v.votes {
		if cap(v.votes[k]) < length {
			v.votes[k] = make([]int, length)
		} else {
			v.votes[k] = v.votes[k][:length]
			for j := range v.votes[k] {
				v.votes[k][j] = 0
			}
		}
	}
}

func (v *voteMatrix) vote(base byte, pos int) {
	if k := fastq.NuclIndex(base); k >= 0 {
		v.votes[k][pos]++
	}
}

// solidForCorrection tells whether a k-mer may vote directly.
func (ctx *Context) solidForCorrection(stat *KMerStat) bool {
	return stat.GoodIter() || (ctx.UseThreshold && stat.Good())
}

// voteTarget resolves the k-mer a window should vote with: the window
// k-mer itself when it is solid, or its cluster center when the center
// is acceptable. The second result is false when the window must be
// skipped.
func (ctx *Context) voteTarget(table *KMerTable, idx int) (target int, ok bool) {
	stat := &table.KMers[idx].Stat
	if ctx.solidForCorrection(stat) {
		return idx, true
	}
	if stat.Change() {
		center := int(stat.ChangeTo)
		if ctx.DiscardSingletons || table.KMers[center].Stat.GoodIter() ||
			(ctx.UseThreshold && stat.Good()) {
			return center, true
		}
	}
	return 0, false
}

// CorrectRead rewrites one read by per-position consensus over solid
// k-mers on both strands. It returns the number of changed bases, and
// whether any solid k-mer covered the read; reads without solid
// coverage belong in the bad stream.
func (ctx *Context) CorrectRead(table *KMerTable, v *voteMatrix, r *fastq.Read) (changed int, ok bool) {
	seq := r.Seq
	size := len(seq)
	if size < K {
		return 0, false
	}
	v.reset(size)
	left, right := size, -1
	isGood := false
	var rcWindow [K]byte

	for gen := NewValidKMerGenerator(seq, nil, ctx.CommonQuality); gen.HasMore(); gen.Next() {
		pos := gen.Pos()
		window := gen.KMer()
		voted := false

		if idx, found := table.Lookup(window); found {
			if target, accept := ctx.voteTarget(table, idx); accept {
				kmer := table.Blob.KMerBytes(table.KMers[target].Pos)
				for j := 0; j < K; j++ {
					v.vote(kmer[j], pos+j)
				}
				voted = true
			}
		}

		if !voted {
			// the reverse-complement strand may hold the solid variant
			for j := 0; j < K; j++ {
				rcWindow[j] = fastq.Complement(window[K-1-j])
			}
			if idx, found := table.Lookup(rcWindow[:]); found {
				if target, accept := ctx.voteTarget(table, idx); accept {
					kmer := table.Blob.KMerBytes(table.KMers[target].Pos)
					for j := 0; j < K; j++ {
						v.vote(fastq.Complement(kmer[K-1-j]), pos+j)
					}
					voted = true
				}
			}
		}

		if voted {
			isGood = true
			if pos < left {
				left = pos
			}
			if pos > right {
				right = pos
			}
		}
	}

	// consensus: argmax vote per position, ties retain the input base
	for j := 0; j < size; j++ {
		cmax, nummax := seq[j], 0
		for k := 0; k < 4; k++ {
			if v.votes[k][j] > nummax {
				cmax, nummax = fastq.Nucl(k), v.votes[k][j]
			}
		}
		if seq[j] != cmax {
			changed++
			seq[j] = cmax
		}
	}

	if !isGood {
		return 0, false
	}
	r.Seq = seq[left : right+K]
	if len(r.Qual) >= right+K {
		r.Qual = r.Qual[left : right+K]
	}
	return changed, true
}

type correctedRead struct {
	read *fastq.Read
	ok   bool
}

// CorrectReadFile corrects a single (unpaired) read stream, routing
// corrected reads to good and unsalvageable reads to bad.
func (ctx *Context) CorrectReadFile(table *KMerTable, input string, good, bad *fastq.OutputFile, stats *CorrectionStats) {
	in, err := fastq.Open(input, ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		log.Panic(err)
	}
	defer internal.Close(in)

	var p pipeline.Pipeline
	p.Source(in)
	p.Add(
		pipeline.LimitedPar(ctx.CorrectNumThreads, pipeline.Receive(func(_ int, data interface{}) interface{} {
			reads := data.([]*fastq.Read)
			results := make([]correctedRead, 0, len(reads))
			var v voteMatrix
			for _, r := range reads {
				if r.TrimBadQuality(ctx.TrimQuality) < K {
					continue
				}
				changed, ok := ctx.CorrectRead(table, &v, r)
				stats.add(changed, ok)
				results = append(results, correctedRead{r, ok})
			}
			return results
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			for _, cr := range data.([]correctedRead) {
				var err error
				if cr.ok {
					err = good.WriteRecord(cr.read)
				} else {
					err = bad.WriteRecord(cr.read)
				}
				if err != nil {
					p.SetErr(err)
				}
			}
			return data
		})),
	)
	internal.RunPipeline(&p)
}

// CorrectPairedReadFiles corrects two read streams as pairs. Pairs
// where both mates survive go to corL/corR; a pair with exactly one
// survivor sends it to unpaired; failed mates go to badL/badR.
func (ctx *Context) CorrectPairedReadFiles(table *KMerTable, left, right string,
	corL, badL, corR, badR, unpaired *fastq.OutputFile, stats *CorrectionStats) {

	inL, err := fastq.Open(left, ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		log.Panic(err)
	}
	defer internal.Close(inL)
	inR, err := fastq.Open(right, ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		log.Panic(err)
	}
	defer internal.Close(inR)

	bufferSize := ctx.CorrectNumThreads * ctx.ReadBuffer
	readsL := make([]*fastq.Read, 0, bufferSize)
	readsR := make([]*fastq.Read, 0, bufferSize)
	okL := make([]bool, bufferSize)
	okR := make([]bool, bufferSize)

	batchNo := 0
	for {
		readsL, readsR = readsL[:0], readsR[:0]
		for len(readsL) < bufferSize {
			l, r := new(fastq.Read), new(fastq.Read)
			errL := inL.ReadRecord(l)
			errR := inR.ReadRecord(r)
			if errL == io.EOF && errR == io.EOF {
				break
			}
			if errL == io.EOF || errR == io.EOF {
				log.Panicf("paired files %v and %v have different lengths", left, right)
			}
			if errL != nil {
				log.Panic(errL)
			}
			if errR != nil {
				log.Panic(errR)
			}
			readsL = append(readsL, l)
			readsR = append(readsR, r)
		}
		if len(readsL) == 0 {
			break
		}
		log.Printf("Read batch %v of %v read pairs.", batchNo, len(readsL))

		parallel.Range(0, len(readsL), ctx.CorrectNumThreads, func(low, high int) {
			var v voteMatrix
			for i := low; i < high; i++ {
				okL[i], okR[i] = false, false
				if readsL[i].TrimBadQuality(ctx.TrimQuality) >= K {
					changed, ok := ctx.CorrectRead(table, &v, readsL[i])
					stats.add(changed, ok)
					okL[i] = ok
				}
				if readsR[i].TrimBadQuality(ctx.TrimQuality) >= K {
					changed, ok := ctx.CorrectRead(table, &v, readsR[i])
					stats.add(changed, ok)
					okR[i] = ok
				}
			}
		})

		for i := range readsL {
			switch {
			case okL[i] && okR[i]:
				ctx.writeRecord(corL, readsL[i])
				ctx.writeRecord(corR, readsR[i])
			case okL[i]:
				ctx.writeRecord(unpaired, readsL[i])
				ctx.writeRecord(badR, readsR[i])
			case okR[i]:
				ctx.writeRecord(badL, readsL[i])
				ctx.writeRecord(unpaired, readsR[i])
			default:
				ctx.writeRecord(badL, readsL[i])
				ctx.writeRecord(badR, readsR[i])
			}
		}
		log.Printf("Written batch %v.", batchNo)
		batchNo++
	}
}

func (ctx *Context) writeRecord(f *fastq.OutputFile, r *fastq.Read) {
	if err := f.WriteRecord(r); err != nil {
		log.Panic(err)
	}
}

func (ctx *Context) createReadsFile(fileno int, suffix string) *fastq.OutputFile {
	f, err := fastq.Create(ctx.readsFilename(fileno, ctx.Iteration, suffix), ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		log.Panic(err)
	}
	return f
}

// CorrectAllReads corrects every input file for the current iteration
// and rewires InputFiles to the corrected outputs. It returns the
// number of changed reads.
func (ctx *Context) CorrectAllReads(table *KMerTable) uint64 {
	var stats CorrectionStats
	log.Printf("Starting read correction in %v threads.", ctx.CorrectNumThreads)

	singleCreated := false
	var unpaired *fastq.OutputFile
	if len(ctx.InputFiles) >= 2 {
		if len(ctx.FileBases) != 3 {
			ctx.FileBases = append(ctx.FileBases, largestCommonPrefix(ctx.FileBases[0], ctx.FileBases[1])+"unpaired")
			singleCreated = true
		}
		corL := ctx.createReadsFile(0, "cor")
		badL := ctx.createReadsFile(0, "bad")
		corR := ctx.createReadsFile(1, "cor")
		badR := ctx.createReadsFile(1, "bad")
		unpaired = ctx.createReadsFile(2, "cor")

		ctx.CorrectPairedReadFiles(table, ctx.InputFiles[0], ctx.InputFiles[1],
			corL, badL, corR, badR, unpaired, &stats)
		log.Printf("  %v and %v corrected as a pair.", ctx.InputFiles[0], ctx.InputFiles[1])

		for _, f := range []*fastq.OutputFile{corL, badL, corR, badR} {
			internal.Close(f)
		}
		ctx.removePreviousIteration(0)
		ctx.removePreviousIteration(1)
		ctx.InputFiles[0] = ctx.readsFilename(0, ctx.Iteration, "cor")
		ctx.InputFiles[1] = ctx.readsFilename(1, ctx.Iteration, "cor")
		if singleCreated {
			ctx.InputFiles = append(ctx.InputFiles, ctx.readsFilename(2, ctx.Iteration, "cor"))
		}
	}

	if !singleCreated && (len(ctx.InputFiles) == 1 || len(ctx.InputFiles) == 3) {
		// an explicitly provided unpaired file shares the corrected
		// output of the paired pass
		fileno := len(ctx.InputFiles) - 1
		good := unpaired
		if good == nil {
			good = ctx.createReadsFile(fileno, "cor")
		}
		bad := ctx.createReadsFile(fileno, "bad")
		ctx.CorrectReadFile(table, ctx.InputFiles[fileno], good, bad, &stats)
		log.Printf("  %v corrected.", ctx.InputFiles[fileno])
		if unpaired == nil {
			internal.Close(good)
		}
		internal.Close(bad)
		ctx.removePreviousIteration(fileno)
		ctx.InputFiles[fileno] = ctx.readsFilename(fileno, ctx.Iteration, "cor")
	}
	if unpaired != nil {
		internal.Close(unpaired)
	}

	log.Printf("Correction done. Changed %v bases in %v reads; %v reads uncorrectable.",
		stats.ChangedNucleotides, stats.ChangedReads, stats.UncorrectedReads)
	return stats.ChangedReads
}

func (ctx *Context) removePreviousIteration(fileno int) {
	if ctx.Iteration == 0 || !ctx.RemoveTempFiles {
		return
	}
	internal.RemoveFile(ctx.readsFilename(fileno, ctx.Iteration-1, "cor"))
	internal.RemoveFile(ctx.readsFilename(fileno, ctx.Iteration-1, "bad"))
}

func largestCommonPrefix(s1, s2 string) string {
	i := 0
	for i < len(s1) && i < len(s2) && s1[i] == s2[i] {
		i++
	}
	return s1[:i]
}
