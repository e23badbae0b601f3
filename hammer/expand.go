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
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
	"github.com/willf/bitset"
)

// IterativeExpansionStep scans all forward reads for reads completely
// covered by solid k-mers, marks them done, and promotes every k-mer
// occurring in them to solid. It returns the number of newly promoted
// k-mers.
func (ctx *Context) IterativeExpansionStep(table *KMerTable) uint64 {
	var promoted uint64
	blob := ctx.Blob
	parallel.Range(0, int(blob.RevNo), 0, func(low, high int) {
		var indices []int
		for i := low; i < high; i++ {
			pr := &blob.Reads[i]
			if pr.Done() {
				continue
			}
			seq := blob.ReadSeq(pr)
			covered := bitset.New(uint(len(seq)))
			indices = indices[:0]

			for gen := NewValidKMerGenerator(seq, nil, ctx.CommonQuality); gen.HasMore(); gen.Next() {
				idx, found := table.Lookup(gen.KMer())
				if !found {
					continue
				}
				indices = append(indices, idx)
				if table.KMers[idx].Stat.GoodIter() {
					for j := gen.Pos(); j < gen.Pos()+K; j++ {
						covered.Set(uint(j))
					}
				}
			}

			if covered.Count() != uint(len(seq)) {
				continue
			}

			pr.markDone()
			for _, idx := range indices {
				if table.KMers[idx].Stat.MakeGoodIter() {
					atomic.AddUint64(&promoted, 1)
				}
			}
		}
	})
	return promoted
}

// IterativeExpansion grows the solid set to its fixpoint. Solid flags
// are only ever set within a cycle, so termination is guaranteed.
func (ctx *Context) IterativeExpansion(table *KMerTable) {
	for step := 1; ; step++ {
		promoted := ctx.IterativeExpansionStep(table)
		log.Printf("Expansion step %v: %v new solid k-mers.", step, promoted)
		if ctx.ExpandWriteEachIteration {
			ctx.writeGoodKMers(table, step)
		}
		if promoted == 0 {
			return
		}
	}
}

func (ctx *Context) writeGoodKMers(table *KMerTable, step int) {
	w := ctx.createTmp(ctx.numFilename("goodkmers", step))
	for i := range table.KMers {
		if stat := &table.KMers[i].Stat; stat.GoodIter() {
			fmt.Fprintf(w, "%s\n>%d  cnt=%d  tql=%v\n",
				table.Blob.KMerBytes(table.KMers[i].Pos), table.KMers[i].Pos,
				stat.Count, 1-stat.TotalQual)
		}
	}
	w.Close()
}
