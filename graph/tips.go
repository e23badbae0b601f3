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
	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
)

// A TipClipper removes tips: short dead-end edges matched by the
// configured condition.
type TipClipper struct {
	g         *Graph
	cov       *CoverageIndex
	maxLength int
	condition *ParsedCondition
	observers []EdgeRemovalObserver
}

// NewTipClipper returns a tip clipper bounded by the condition's
// derived maximum length.
func NewTipClipper(g *Graph, cov *CoverageIndex, condition *ParsedCondition, observers []EdgeRemovalObserver) *TipClipper {
	return &TipClipper{
		g:         g,
		cov:       cov,
		maxLength: condition.MaxLengthBound,
		condition: condition,
		observers: observers,
	}
}

// Process clips every matching tip and reports whether the graph
// changed.
func (tc *TipClipper) Process() bool {
	changed := false
	it := tc.g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !tc.g.HasEdge(e) {
			continue
		}
		if tc.g.Length(e) > tc.maxLength || !tc.g.IsTip(e) {
			continue
		}
		if !tc.condition.Pred(tc.g, tc.cov, e) {
			continue
		}
		removeEdgeAndCompress(tc.g, e, tc.observers)
		changed = true
	}
	return changed
}

// ClipTips parses the tip condition and runs a tip clipper.
func ClipTips(g *Graph, cov *CoverageIndex, conditionStr string, observers []EdgeRemovalObserver) bool {
	log.Println("Clipping tips")
	condition, err := ParseCondition(conditionStr)
	if err != nil {
		log.Panic(err)
	}
	return NewTipClipper(g, cov, condition, observers).Process()
}

// ParallelClipTips clips tips with the two-step runner: a parallel
// phase marks candidate tips per vertex chunk, a sequential phase
// applies the marks. It requires all handlers to be thread-safe only
// for the marking reads; the applies run under exclusion. The pass is
// followed by parallel compression and cleaning.
func ParallelClipTips(g *Graph, cov *CoverageIndex, conditionStr string, chunkCnt int, observers []EdgeRemovalObserver) bool {
	log.Println("Parallel tip clipping")
	condition, err := ParseCondition(conditionStr)
	if err != nil {
		log.Panic(err)
	}
	maxLength := condition.MaxLengthBound

	vertices := g.Vertices()
	chunkSize := (len(vertices) + chunkCnt - 1) / chunkCnt
	if chunkSize == 0 {
		chunkSize = 1
	}

	// phase 1: mark candidates per chunk
	marks := make([][]EdgeID, chunkCnt)
	parallel.Range(0, chunkCnt, chunkCnt, func(low, high int) {
		for chunk := low; chunk < high; chunk++ {
			lo, hi := chunk*chunkSize, (chunk+1)*chunkSize
			if hi > len(vertices) {
				hi = len(vertices)
			}
			for _, v := range vertices[lo:hi] {
				for _, e := range g.OutgoingEdges(v) {
					if g.Length(e) <= maxLength && g.IsTip(e) && condition.Pred(g, cov, e) {
						marks[chunk] = append(marks[chunk], e)
					}
				}
			}
		}
	})

	// phase 2: apply marks under exclusion
	changed := false
	for _, chunkMarks := range marks {
		for _, e := range chunkMarks {
			if !g.HasEdge(e) {
				continue
			}
			if !g.IsTip(e) || !condition.Pred(g, cov, e) {
				continue
			}
			notifyRemoval(observers, e)
			g.DeleteEdge(e)
			changed = true
		}
	}

	NewParallelCompressor(g, chunkCnt).CompressAllVertices()
	NewCleaner(g).Clean()
	return changed
}

// A TopologyTipClipper clips tips whose surroundings prove them
// artifacts: the branching vertex must carry a unique long edge on the
// far side and a plausible alternative extension.
type TopologyTipClipper struct {
	g                  *Graph
	maxLength          int
	uniquenessLength   int
	plausibilityLength int
	observers          []EdgeRemovalObserver
}

// NewTopologyTipClipper returns a topology-based tip clipper.
func NewTopologyTipClipper(g *Graph, maxLength, uniquenessLength, plausibilityLength int, observers []EdgeRemovalObserver) *TopologyTipClipper {
	return &TopologyTipClipper{
		g:                  g,
		maxLength:          maxLength,
		uniquenessLength:   uniquenessLength,
		plausibilityLength: plausibilityLength,
		observers:          observers,
	}
}

// uniqueLongIncoming tells whether v has exactly one incoming edge and
// it is long enough to be considered unique.
func uniqueLongIncoming(g *Graph, v VertexID, uniquenessLength int) bool {
	in := g.IncomingEdges(v)
	return len(in) == 1 && g.Length(in[0]) >= uniquenessLength
}

// uniqueLongOutgoing is the mirror of uniqueLongIncoming.
func uniqueLongOutgoing(g *Graph, v VertexID, uniquenessLength int) bool {
	out := g.OutgoingEdges(v)
	return len(out) == 1 && g.Length(out[0]) >= uniquenessLength
}

// plausibleAlternative tells whether some edge other than e leaves the
// same side of v with a plausible (long enough) continuation.
func plausibleAlternative(g *Graph, v VertexID, e EdgeID, plausibilityLength int, outgoing bool) bool {
	edges := g.OutgoingEdges(v)
	if !outgoing {
		edges = g.IncomingEdges(v)
	}
	for _, alt := range edges {
		if alt == e || alt == g.Conjugate(e) {
			continue
		}
		if g.Length(alt) >= plausibilityLength {
			return true
		}
	}
	return false
}

// Process clips every topology-approved tip.
func (tc *TopologyTipClipper) Process() bool {
	changed := false
	g := tc.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Length(e) > tc.maxLength || !g.IsTip(e) {
			continue
		}
		approved := false
		if g.IsDeadEnd(g.EdgeEnd(e)) {
			v := g.EdgeStart(e)
			approved = uniqueLongIncoming(g, v, tc.uniquenessLength) &&
				plausibleAlternative(g, v, e, tc.plausibilityLength, true)
		} else if g.IsDeadStart(g.EdgeStart(e)) {
			v := g.EdgeEnd(e)
			approved = uniqueLongOutgoing(g, v, tc.uniquenessLength) &&
				plausibleAlternative(g, v, e, tc.plausibilityLength, false)
		}
		if approved {
			removeEdgeAndCompress(g, e, tc.observers)
			changed = true
		}
	}
	return changed
}
