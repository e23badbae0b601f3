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
	"container/heap"
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/elassemble/internal"
)

// InitSubKMerPositions computes the tau+1 slice boundaries
// floor(i*K/(tau+1)), closed by K itself.
func (ctx *Context) InitSubKMerPositions() {
	ctx.SubKMerPositions = make([]uint32, ctx.Tau+2)
	for i := 0; i <= ctx.Tau; i++ {
		ctx.SubKMerPositions[i] = uint32(i * K / (ctx.Tau + 1))
	}
	ctx.SubKMerPositions[ctx.Tau+1] = K
	log.Printf("Hamming graph threshold tau=%v, k=%v, sub-k-mer positions = %v", ctx.Tau, K, ctx.SubKMerPositions)
}

func (ctx *Context) subKMerSlice(pos BlobPos, j int) []byte {
	lo := pos + BlobPos(ctx.SubKMerPositions[j])
	hi := pos + BlobPos(ctx.SubKMerPositions[j+1])
	return ctx.Blob.B[lo:hi]
}

// WriteSubKMerFiles writes, for every slice index j, the file of
// (slice bytes, k-mer index) records and sorts it by slice. The table
// is in k-mer byte order, so slice 0 (a k-mer prefix) is already
// sorted and written to its sorted file directly; the remaining slices
// go through the in-process external sort.
func (ctx *Context) WriteSubKMerFiles(table *KMerTable) {
	log.Println("Writing sub-k-mer slice files.")
	writers := make([]*tmpWriter, ctx.Tau+1)
	writers[0] = ctx.createTmp(ctx.numFilename("subkmers.sorted", 0))
	for j := 1; j <= ctx.Tau; j++ {
		writers[j] = ctx.createTmp(ctx.numFilename("subkmers", j))
	}
	for i := range table.KMers {
		pos := table.KMers[i].Pos
		for j := 0; j <= ctx.Tau; j++ {
			fmt.Fprintf(writers[j], "%s\t%d\n", ctx.subKMerSlice(pos, j), i)
		}
	}
	for _, w := range writers {
		w.Close()
	}

	log.Println("Sorting sub-k-mer slice files.")
	parallel.Range(1, ctx.Tau+1, ctx.Tau, func(low, high int) {
		for j := low; j < high; j++ {
			ctx.externalSortSubKMers(j)
		}
	})
}

// a subKMerRecord is one line of a slice file.
type subKMerRecord struct {
	Slice string
	Index uint64
}

func subKMerLess(r1, r2 subKMerRecord) bool {
	if r1.Slice != r2.Slice {
		return r1.Slice < r2.Slice
	}
	return r1.Index < r2.Index
}

type subKMerSorter []subKMerRecord

func (s subKMerSorter) Len() int { return len(s) }

func (s subKMerSorter) Less(i, j int) bool { return subKMerLess(s[i], s[j]) }

func (s subKMerSorter) SequentialSort(i, j int) {
	recs := s[i:j]
	sort.Slice(recs, func(i, j int) bool {
		return subKMerLess(recs[i], recs[j])
	})
}

func (s subKMerSorter) NewTemp() psort.StableSorter {
	return make(subKMerSorter, len(s))
}

func (s subKMerSorter) Assign(p psort.StableSorter) func(i, j, len int) {
	dst, src := s, p.(subKMerSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

func parseSubKMerLine(line string) (subKMerRecord, bool) {
	if line == "" {
		return subKMerRecord{}, false
	}
	tab := strings.IndexByte(line, '\t')
	if tab < 0 {
		log.Panicf("malformed sub-k-mer record %q", line)
	}
	index, err := strconv.ParseUint(line[tab+1:], 10, 64)
	if err != nil {
		log.Panic(err)
	}
	return subKMerRecord{Slice: line[:tab], Index: index}, true
}

// externalSortSubKMers sorts one slice file by chunked runs and an
// n-way merge, entirely in process.
func (ctx *Context) externalSortSubKMers(j int) {
	unsorted := ctx.numFilename("subkmers", j)
	in := ctx.openTmp(unsorted)
	var runs []string
	chunk := make(subKMerSorter, 0, ctx.SplitBuffer)
	flushRun := func() {
		if len(chunk) == 0 {
			return
		}
		psort.StableSort(chunk)
		name := fmt.Sprintf("%s.run.%d", unsorted, len(runs))
		w := ctx.createTmp(name)
		for _, rec := range chunk {
			fmt.Fprintf(w, "%s\t%d\n", rec.Slice, rec.Index)
		}
		w.Close()
		runs = append(runs, name)
		chunk = chunk[:0]
	}
	for in.Scan() {
		if rec, ok := parseSubKMerLine(in.Text()); ok {
			chunk = append(chunk, rec)
			if len(chunk) == cap(chunk) {
				flushRun()
			}
		}
	}
	if err := in.Err(); err != nil {
		log.Panic(err)
	}
	in.Close()
	flushRun()

	ctx.mergeRuns(runs, ctx.numFilename("subkmers.sorted", j))
	if ctx.RemoveTempFiles {
		internal.RemoveFile(unsorted)
	}
}

type runCursor struct {
	rec subKMerRecord
	src *tmpReader
}

type runHeap []runCursor

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return subKMerLess(h[i].rec, h[j].rec) }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(runCursor)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (ctx *Context) mergeRuns(runs []string, out string) {
	w := ctx.createTmp(out)
	h := make(runHeap, 0, len(runs))
	readers := make([]*tmpReader, 0, len(runs))
	advance := func(src *tmpReader) {
		for src.Scan() {
			if rec, ok := parseSubKMerLine(src.Text()); ok {
				heap.Push(&h, runCursor{rec, src})
				return
			}
		}
		if err := src.Err(); err != nil {
			log.Panic(err)
		}
	}
	for _, name := range runs {
		src := ctx.openTmp(name)
		readers = append(readers, src)
		advance(src)
	}
	heap.Init(&h)
	for h.Len() > 0 {
		cur := heap.Pop(&h).(runCursor)
		fmt.Fprintf(w, "%s\t%d\n", cur.rec.Slice, cur.rec.Index)
		advance(cur.src)
	}
	w.Close()
	for i, src := range readers {
		src.Close()
		if ctx.RemoveTempFiles {
			internal.RemoveFile(runs[i])
		}
	}
}
