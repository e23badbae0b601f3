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

package graph

import (
	"math"
	"sync"

	log "github.com/sirupsen/logrus"
)

// A CoverageIndex maintains, per edge, the number of k+1-mers observed
// on it. The average coverage of an edge is that count divided by the
// edge length. The index tracks structural mutations as an
// ActionHandler: merged edges sum their counts, glued edges accumulate
// both sources, split edges distribute the average over the parts, and
// deleted edges are erased. Counts never go negative.
type CoverageIndex struct {
	BaseHandler
	g       *Graph
	mtx     sync.Mutex
	storage map[EdgeID]int64
}

// NewCoverageIndex creates a coverage index and registers it with the
// graph.
func NewCoverageIndex(g *Graph) *CoverageIndex {
	idx := &CoverageIndex{g: g, storage: make(map[EdgeID]int64)}
	g.RegisterHandler(idx)
	return idx
}

// Name implements the ActionHandler interface.
func (idx *CoverageIndex) Name() string { return "CoverageIndex" }

// ThreadSafe implements the ActionHandler interface. All mutating
// events lock the index, so it may be driven from the two-step
// parallel runners.
func (idx *CoverageIndex) ThreadSafe() bool { return true }

// SetRawCoverage sets the k+1-mer count of an edge.
func (idx *CoverageIndex) SetRawCoverage(e EdgeID, cov int64) {
	if cov < 0 {
		log.Panicf("coverage: negative count %v for edge %v", cov, e)
	}
	idx.mtx.Lock()
	idx.storage[e] = cov
	idx.mtx.Unlock()
}

// IncRawCoverage adds to the k+1-mer count of an edge.
func (idx *CoverageIndex) IncRawCoverage(e EdgeID, toAdd int64) {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	idx.storage[e] += toAdd
	if idx.storage[e] < 0 {
		log.Panicf("coverage: count of edge %v dropped below zero", e)
	}
}

// RawCoverage returns the k+1-mer count of an edge.
func (idx *CoverageIndex) RawCoverage(e EdgeID) int64 {
	idx.mtx.Lock()
	defer idx.mtx.Unlock()
	return idx.storage[e]
}

// Coverage returns the average coverage of an edge.
func (idx *CoverageIndex) Coverage(e EdgeID) float64 {
	return float64(idx.RawCoverage(e)) / float64(idx.g.Length(e))
}

// HandleMerge implements the ActionHandler interface: the merged edge
// carries the sum of the replaced counts.
func (idx *CoverageIndex) HandleMerge(oldEdges []EdgeID, newEdge EdgeID) {
	var sum int64
	for _, e := range oldEdges {
		sum += idx.RawCoverage(e)
	}
	idx.SetRawCoverage(newEdge, sum)
}

// HandleGlue implements the ActionHandler interface: the glued edge
// accumulates both sources.
func (idx *CoverageIndex) HandleGlue(newEdge, edge1, edge2 EdgeID) {
	idx.IncRawCoverage(newEdge, idx.RawCoverage(edge1))
	idx.IncRawCoverage(newEdge, idx.RawCoverage(edge2))
}

// HandleSplit implements the ActionHandler interface: each part gets
// the old average coverage scaled by its length, at least 1.
func (idx *CoverageIndex) HandleSplit(oldEdge, newEdge1, newEdge2 EdgeID) {
	avg := idx.Coverage(oldEdge)
	for _, e := range []EdgeID{newEdge1, newEdge2} {
		cov := int64(math.Round(avg * float64(idx.g.Length(e))))
		if cov < 1 {
			cov = 1
		}
		idx.SetRawCoverage(e, cov)
	}
}

// HandleVertexSplit implements the ActionHandler interface: each
// duplicated edge receives the floor of its source count scaled by the
// split coefficient.
func (idx *CoverageIndex) HandleVertexSplit(_ VertexID, newEdges [][2]EdgeID, coefficients []float64, _ VertexID) {
	for j, pair := range newEdges {
		idx.IncRawCoverage(pair[1], int64(math.Floor(float64(idx.RawCoverage(pair[0]))*coefficients[j])))
	}
}

// HandleDelete implements the ActionHandler interface.
func (idx *CoverageIndex) HandleDelete(e EdgeID) {
	idx.mtx.Lock()
	delete(idx.storage, e)
	idx.mtx.Unlock()
}

// MeanCoverage returns the length-weighted mean coverage over all
// edges, or 0 for an empty graph.
func (idx *CoverageIndex) MeanCoverage() float64 {
	var count, length int64
	for _, e := range idx.g.Edges() {
		count += idx.RawCoverage(e)
		length += int64(idx.g.Length(e))
	}
	if length == 0 {
		return 0
	}
	return float64(count) / float64(length)
}

// A FlankingCoverage estimates the local coverage of an edge near one
// of its end vertices. With only aggregate counts available, the
// estimate is the edge's average coverage.
type FlankingCoverage struct {
	idx *CoverageIndex
}

// NewFlankingCoverage wraps a coverage index.
func NewFlankingCoverage(idx *CoverageIndex) *FlankingCoverage {
	return &FlankingCoverage{idx: idx}
}

// LocalCoverage returns the coverage of e on the side of v.
func (fc *FlankingCoverage) LocalCoverage(e EdgeID, v VertexID) float64 {
	return fc.idx.Coverage(e)
}
