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
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/internal"
)

// Union-find over k-mer indices, with path compression.

func findRepNode(grouping []int, nodeID int) int {
	representative := nodeID
	for representative != grouping[representative] {
		representative = grouping[representative]
	}
	for nodeID != representative {
		next := grouping[nodeID]
		grouping[nodeID] = representative
		nodeID = next
	}
	return representative
}

func joinNodes(grouping []int, nodeID1, nodeID2 int) {
	rep1 := findRepNode(grouping, nodeID1)
	rep2 := findRepNode(grouping, nodeID2)
	if rep1 == rep2 {
		return
	}
	grouping[rep1] = rep2
}

// the assumed per-base sequencing error rate for center scoring
const clusterErrorRate = 0.01

// ClusterKMers unions k-mers at Hamming distance at most tau into
// clusters, using the sorted sub-k-mer slice files to enumerate
// candidate pairs: two k-mers within distance tau share at least one
// identical slice. Each cluster then elects a center by Bayesian
// likelihood; every non-center member is redirected to it.
func (ctx *Context) ClusterKMers(table *KMerTable) {
	grouping := make([]int, len(table.KMers))
	for i := range grouping {
		grouping[i] = i
	}

	for j := 0; j <= ctx.Tau; j++ {
		ctx.unionSliceFile(table, grouping, j)
	}

	// gather clusters as runs of equal representatives
	order := make([]int, len(grouping))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ra, rb := findRepNode(grouping, order[a]), findRepNode(grouping, order[b])
		if ra != rb {
			return ra < rb
		}
		return order[a] < order[b]
	})

	clusters := 0
	for lo := 0; lo < len(order); {
		hi := lo + 1
		rep := findRepNode(grouping, order[lo])
		for hi < len(order) && findRepNode(grouping, order[hi]) == rep {
			hi++
		}
		ctx.processCluster(table, order[lo:hi])
		clusters++
		lo = hi
	}
	log.Printf("Clustering done: %v clusters over %v k-mers.", clusters, len(table.KMers))
}

func (ctx *Context) unionSliceFile(table *KMerTable, grouping []int, j int) {
	name := ctx.numFilename("subkmers.sorted", j)
	r := ctx.openTmp(name)
	var runSlice string
	var run []int
	flush := func() {
		for a := 1; a < len(run); a++ {
			for b := 0; b < a; b++ {
				ka := table.Blob.KMerBytes(table.KMers[run[a]].Pos)
				kb := table.Blob.KMerBytes(table.KMers[run[b]].Pos)
				if HammingDistance(ka, kb, ctx.Tau) <= ctx.Tau {
					joinNodes(grouping, run[a], run[b])
				}
			}
		}
		run = run[:0]
	}
	for r.Scan() {
		rec, ok := parseSubKMerLine(r.Text())
		if !ok {
			continue
		}
		if rec.Slice != runSlice {
			flush()
			runSlice = rec.Slice
		}
		run = append(run, int(rec.Index))
	}
	if err := r.Err(); err != nil {
		log.Panic(err)
	}
	flush()
	r.Close()
	if ctx.RemoveTempFiles {
		internal.RemoveFile(name)
	}
}

// processCluster elects the center of one cluster and flags its
// members.
func (ctx *Context) processCluster(table *KMerTable, members []int) {
	if len(members) == 0 {
		return
	}
	if len(members) == 1 {
		stat := &table.KMers[members[0]].Stat
		if !ctx.DiscardSingletons && ctx.passesGoodThreshold(stat) {
			stat.MakeGood()
		}
		return
	}

	center := members[0]
	best := math.Inf(-1)
	for _, c := range members {
		score := ctx.centerScore(table, members, c)
		if score > best ||
			(score == best && table.KMers[c].Stat.Count > table.KMers[center].Stat.Count) ||
			(score == best && table.KMers[c].Stat.Count == table.KMers[center].Stat.Count && c < center) {
			best = score
			center = c
		}
	}

	for _, m := range members {
		if m == center {
			continue
		}
		table.KMers[m].Stat.ChangeTo = uint64(center)
	}
	if stat := &table.KMers[center].Stat; ctx.passesGoodThreshold(stat) {
		stat.MakeGood()
	}
}

// centerScore is the Bayesian log likelihood of candidate c being the
// true sequence behind every member of the cluster.
func (ctx *Context) centerScore(table *KMerTable, members []int, c int) float64 {
	logErr := math.Log(clusterErrorRate)
	logOK := math.Log(1 - clusterErrorRate)
	kc := table.Blob.KMerBytes(table.KMers[c].Pos)
	score := 0.0
	for _, m := range members {
		km := table.Blob.KMerBytes(table.KMers[m].Pos)
		d := HammingDistance(km, kc, K)
		score += float64(table.KMers[m].Stat.Count) * (float64(d)*logErr + float64(K-d)*logOK)
	}
	if tq := table.KMers[c].Stat.TotalQual; tq < 1 {
		score += math.Log1p(-tq)
	} else {
		score += math.Log(1e-300)
	}
	return score
}

// passesGoodThreshold applies the quality-adjusted count threshold.
func (ctx *Context) passesGoodThreshold(stat *KMerStat) bool {
	return float64(stat.Count)*(1-stat.TotalQual) >= ctx.GoodThreshold
}

// SeedSolidKMers promotes every GOOD k-mer to GOOD_ITER, seeding the
// solid set for iterative expansion.
func (ctx *Context) SeedSolidKMers(table *KMerTable) uint64 {
	var seeded uint64
	for i := range table.KMers {
		stat := &table.KMers[i].Stat
		if stat.Good() && stat.MakeGoodIter() {
			seeded++
		}
	}
	log.Printf("Seeded %v solid k-mers.", seeded)
	return seeded
}
