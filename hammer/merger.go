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
	"bytes"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/elassemble/internal"
)

type kmerRecordSorter struct {
	recs []kmerRecord
	blob *Blob
}

func (s kmerRecordSorter) Len() int {
	return len(s.recs)
}

func (s kmerRecordSorter) less(r1, r2 kmerRecord) bool {
	if c := bytes.Compare(s.blob.KMerBytes(r1.Pos), s.blob.KMerBytes(r2.Pos)); c != 0 {
		return c < 0
	}
	return r1.Pos < r2.Pos
}

func (s kmerRecordSorter) Less(i, j int) bool {
	return s.less(s.recs[i], s.recs[j])
}

func (s kmerRecordSorter) SequentialSort(i, j int) {
	recs := s.recs[i:j]
	sort.Slice(recs, func(i, j int) bool {
		return s.less(recs[i], recs[j])
	})
}

func (s kmerRecordSorter) NewTemp() psort.StableSorter {
	return kmerRecordSorter{make([]kmerRecord, len(s.recs)), s.blob}
}

func (s kmerRecordSorter) Assign(p psort.StableSorter) func(i, j, len int) {
	dst, src := s.recs, p.(kmerRecordSorter).recs
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

func (ctx *Context) loadBucket(iFile int) []kmerRecord {
	name := ctx.numFilename("tmp.kmers", iFile)
	r := ctx.openTmp(name)
	var recs []kmerRecord
	for r.Scan() {
		line := r.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			log.Panicf("malformed k-mer record %q in %v", line, name)
		}
		pos, err := strconv.ParseUint(line[:tab], 10, 64)
		if err != nil {
			log.Panic(err)
		}
		prob, err := strconv.ParseFloat(line[tab+1:], 64)
		if err != nil {
			log.Panic(err)
		}
		recs = append(recs, kmerRecord{Pos: BlobPos(pos), ErrProb: prob})
	}
	if err := r.Err(); err != nil {
		log.Panic(err)
	}
	r.Close()
	if ctx.RemoveTempFiles {
		internal.RemoveFile(name)
	}
	return recs
}

// kmerHashUnique reduces a sorted run of k-mer instances into one
// KMerCount per distinct k-mer: count is the number of instances,
// TotalQual the product of the instance error probabilities, and Qual
// the capped per-position quality sums.
func (ctx *Context) kmerHashUnique(recs []kmerRecord) []KMerCount {
	blob := ctx.Blob
	var counts []KMerCount
	var qsums [K]int
	flushQual := func(stat *KMerStat) {
		if blob.Q == nil || stat.Count < 2 {
			return
		}
		stat.Qual = make(QualSum, K)
		for j := 0; j < K; j++ {
			if qsums[j] > MaxQualSum {
				stat.Qual[j] = MaxQualSum
			} else {
				stat.Qual[j] = uint16(qsums[j])
			}
		}
	}
	addQual := func(pos BlobPos) {
		if blob.Q == nil {
			return
		}
		for j := 0; j < K; j++ {
			qsums[j] += int(blob.Q[pos+BlobPos(j)])
		}
	}
	for i, rec := range recs {
		if i > 0 && bytes.Equal(blob.KMerBytes(rec.Pos), blob.KMerBytes(counts[len(counts)-1].Pos)) {
			stat := &counts[len(counts)-1].Stat
			stat.Count++
			stat.TotalQual *= rec.ErrProb
			addQual(rec.Pos)
			continue
		}
		if len(counts) > 0 {
			flushQual(&counts[len(counts)-1].Stat)
		}
		counts = append(counts, KMerCount{
			Pos: rec.Pos,
			Stat: KMerStat{
				Count:     1,
				ChangeTo:  NoChange,
				TotalQual: rec.ErrProb,
			},
		})
		qsums = [K]int{}
		addQual(rec.Pos)
	}
	if len(counts) > 0 {
		flushQual(&counts[len(counts)-1].Stat)
	}
	return counts
}

// CountKMersBySplitAndMerge runs the split phase, then sorts and
// reduces every bucket in parallel, and finally merges the buckets
// into the global k-mer table. It also writes the sub-k-mer slice
// files and serializes the table.
func (ctx *Context) CountKMersBySplitAndMerge() *KMerTable {
	ctx.SplitKMers()

	numfiles := ctx.NumFiles
	log.Printf("K-mer instances split. Starting merge in %v threads.", ctx.MergeNumThreads)

	buckets := make([][]KMerCount, numfiles)
	parallel.Range(0, numfiles, numfiles, func(low, high int) {
		for iFile := low; iFile < high; iFile++ {
			recs := ctx.loadBucket(iFile)
			psort.StableSort(kmerRecordSorter{recs, ctx.Blob})
			buckets[iFile] = ctx.kmerHashUnique(recs)
		}
	})

	table := &KMerTable{Blob: ctx.Blob}
	table.KMers = ctx.mergeBuckets(buckets)
	table.Nos = make([]BlobPos, len(table.KMers))
	for i := range table.KMers {
		table.Nos[i] = table.KMers[i].Pos
	}
	log.Printf("Merge done. There are %v k-mers in total.", len(table.KMers))

	ctx.WriteSubKMerFiles(table)

	log.Println("Serializing sorted k-mers.")
	ctx.SerializeKMerTable(table, ctx.filename("kmers.total.ser"))
	if !ctx.RemoveTempFiles {
		log.Println("Serializing k-mer numbers.")
		ctx.SerializeKMerNos(table.Nos, ctx.filename("kmers.numbers.ser"))
	}
	return table
}

// mergeBuckets n-way merges the per-bucket vectors, which are already
// sorted and mutually disjoint, into blob-byte order.
func (ctx *Context) mergeBuckets(buckets [][]KMerCount) []KMerCount {
	blob := ctx.Blob
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	merged := make([]KMerCount, 0, total)
	heads := make([]int, len(buckets))
	for len(merged) < total {
		best := -1
		for i, b := range buckets {
			if heads[i] >= len(b) {
				continue
			}
			if best < 0 || bytes.Compare(
				blob.KMerBytes(b[heads[i]].Pos),
				blob.KMerBytes(buckets[best][heads[best]].Pos)) < 0 {
				best = i
			}
		}
		merged = append(merged, buckets[best][heads[best]])
		heads[best]++
	}
	return merged
}
