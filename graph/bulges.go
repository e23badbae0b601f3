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
)

// A ProjectionCallback observes a bulge edge together with the
// alternative path it is projected onto, before the edge disappears.
type ProjectionCallback func(e EdgeID, path []EdgeID)

// A BulgeRemover removes bulges: edges with a better-covered
// alternative path of nearly the same length between the same two
// vertices. The removed edge is projected onto the alternative: a
// single-edge alternative is glued, a longer one replaces the bulge
// edge outright.
type BulgeRemover struct {
	g                   *Graph
	cov                 *CoverageIndex
	maxLength           int
	maxCoverage         float64
	maxRelativeCoverage float64
	maxDelta            int
	maxRelativeDelta    float64
	projection          ProjectionCallback
	observers           []EdgeRemovalObserver
}

// NewBulgeRemover returns a bulge remover. projection may be nil.
func NewBulgeRemover(g *Graph, cov *CoverageIndex, maxLength int, maxCoverage, maxRelativeCoverage float64,
	maxDelta int, maxRelativeDelta float64, projection ProjectionCallback, observers []EdgeRemovalObserver) *BulgeRemover {
	return &BulgeRemover{
		g:                   g,
		cov:                 cov,
		maxLength:           maxLength,
		maxCoverage:         maxCoverage,
		maxRelativeCoverage: maxRelativeCoverage,
		maxDelta:            maxDelta,
		maxRelativeDelta:    maxRelativeDelta,
		projection:          projection,
		observers:           observers,
	}
}

// Process removes every bulge and reports whether the graph changed.
func (br *BulgeRemover) Process() bool {
	changed := false
	g := br.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) {
			continue
		}
		if br.processEdge(e) {
			changed = true
		}
	}
	return changed
}

// processEdge checks and removes one bulge candidate. The coverage
// gate is conjunctive: an edge above MaxCoverage is never a bulge, no
// matter how well covered the alternative is.
func (br *BulgeRemover) processEdge(e EdgeID) bool {
	g := br.g
	length := g.Length(e)
	if length > br.maxLength {
		return false
	}
	coverage := br.cov.Coverage(e)
	if coverage > br.maxCoverage {
		return false
	}
	delta := br.maxDelta
	if rel := int(br.maxRelativeDelta * float64(length)); rel > delta {
		delta = rel
	}
	path, pathCoverage, found := bestAlternativePath(g, br.cov, e, length-delta, length+delta)
	if !found || pathCoverage < br.maxRelativeCoverage*coverage {
		return false
	}

	if br.projection != nil {
		br.projection(e, path)
	}
	if len(path) == 1 {
		notifyRemoval(br.observers, e)
		glued := g.GlueEdges(e, path[0])
		br.compressAround(glued)
	} else {
		removeEdgeAndCompress(g, e, br.observers)
	}
	return true
}

func (br *BulgeRemover) compressAround(e EdgeID) {
	g := br.g
	compressor := NewCompressor(g)
	if g.HasEdge(e) {
		start, end := g.EdgeStart(e), g.EdgeEnd(e)
		compressor.CompressVertex(start)
		if g.HasVertex(end) {
			compressor.CompressVertex(end)
		}
	}
}

// RemoveBulges derives the length bound from the configuration and
// runs a bulge remover. additionalLengthBound, when non-zero, lowers
// the bound further.
func RemoveBulges(g *Graph, cov *CoverageIndex, cfg BulgeRemoverConfig,
	projection ProjectionCallback, observers []EdgeRemovalObserver, additionalLengthBound int) bool {
	if !cfg.Enabled {
		return false
	}
	log.Println("Removing bulges")
	maxLength := MaxBulgeLength(g.K(), cfg.MaxBulgeLengthCoefficient, cfg.MaxAdditiveLengthCoefficient)
	if additionalLengthBound != 0 && additionalLengthBound < maxLength {
		maxLength = additionalLengthBound
	}
	br := NewBulgeRemover(g, cov, maxLength, cfg.MaxCoverage, cfg.MaxRelativeCoverage,
		cfg.MaxDelta, cfg.MaxRelativeDelta, projection, observers)
	return br.Process()
}

// A ComplexBulgeRemover collapses bounded subgraphs of near-parallel
// paths between a single source and a single sink onto the
// best-covered chain.
type ComplexBulgeRemover struct {
	g                   *Graph
	cov                 *CoverageIndex
	maxLength           int
	maxLengthDifference int
	observers           []EdgeRemovalObserver
}

// NewComplexBulgeRemover returns a complex bulge remover. maxLength
// bounds the subgraph extent, maxLengthDifference the allowed diameter
// difference between parallel chains.
func NewComplexBulgeRemover(g *Graph, cov *CoverageIndex, maxLength, maxLengthDifference int, observers []EdgeRemovalObserver) *ComplexBulgeRemover {
	return &ComplexBulgeRemover{
		g:                   g,
		cov:                 cov,
		maxLength:           maxLength,
		maxLengthDifference: maxLengthDifference,
		observers:           observers,
	}
}

// Run collapses every complex bulge and reports whether the graph
// changed.
func (cbr *ComplexBulgeRemover) Run() bool {
	changed := false
	g := cbr.g
	it := g.SmartVertices()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		if !g.HasVertex(v) || g.OutDegree(v) < 2 {
			continue
		}
		if cbr.collapseFrom(v) {
			changed = true
		}
	}
	return changed
}

// collapseFrom tries to locate a complex bulge starting at v: all
// outgoing paths reconverge in one sink within the length bound, with
// chain lengths within the allowed difference. The best-covered path
// survives; everything else in the component is removed.
func (cbr *ComplexBulgeRemover) collapseFrom(v VertexID) bool {
	g := cbr.g
	sink, componentEdges, ok := cbr.boundedComponent(v)
	if !ok || sink == v {
		return false
	}

	best, _, found := cbr.bestChain(v, sink, componentEdges)
	if !found {
		return false
	}
	keep := make(map[EdgeID]bool, 2*len(best))
	for _, e := range best {
		keep[e], keep[g.Conjugate(e)] = true, true
	}

	removed := false
	for e := range componentEdges {
		if keep[e] || !g.HasEdge(e) {
			continue
		}
		removeEdgeAndCompress(g, e, cbr.observers)
		removed = true
	}
	return removed
}

// boundedComponent walks forward from v collecting all edges reachable
// within maxLength. It succeeds when the walk reconverges into exactly
// one sink vertex and all source-to-sink chain lengths differ by at
// most maxLengthDifference.
func (cbr *ComplexBulgeRemover) boundedComponent(v VertexID) (VertexID, map[EdgeID]bool, bool) {
	g := cbr.g
	edges := make(map[EdgeID]bool)
	minLen := map[VertexID]int{v: 0}
	maxLen := map[VertexID]int{v: 0}
	queue := []VertexID{v}
	visited := map[VertexID]bool{v: true}
	var sinks []VertexID
	steps := 0
	for len(queue) > 0 {
		if steps++; steps > pathSearchVertexLimit {
			return 0, nil, false
		}
		cur := queue[0]
		queue = queue[1:]
		out := g.OutgoingEdges(cur)
		if len(out) == 0 || maxLen[cur] >= cbr.maxLength {
			sinks = append(sinks, cur)
			continue
		}
		isSink := cur != v && g.InDegree(cur) > 1
		for _, e := range out {
			length := g.Length(e)
			if maxLen[cur]+length > cbr.maxLength {
				isSink = true
				continue
			}
			edges[e] = true
			w := g.EdgeEnd(e)
			if lo, seen := minLen[w]; !seen || minLen[cur]+length < lo {
				minLen[w] = minLen[cur] + length
			}
			if hi, seen := maxLen[w]; !seen || maxLen[cur]+length > hi {
				maxLen[w] = maxLen[cur] + length
			}
			if !visited[w] {
				visited[w] = true
				queue = append(queue, w)
			}
		}
		if isSink {
			sinks = append(sinks, cur)
		}
	}

	// a complex bulge reconverges into exactly one sink
	uniq := make(map[VertexID]bool)
	for _, s := range sinks {
		uniq[s] = true
	}
	if len(uniq) != 1 {
		return 0, nil, false
	}
	var sink VertexID
	for s := range uniq {
		sink = s
	}
	if maxLen[sink]-minLen[sink] > cbr.maxLengthDifference {
		return 0, nil, false
	}
	return sink, edges, true
}

// bestChain finds the best-covered chain from v to sink using only
// component edges.
func (cbr *ComplexBulgeRemover) bestChain(v, sink VertexID, component map[EdgeID]bool) ([]EdgeID, float64, bool) {
	g := cbr.g
	var best []EdgeID
	bestCov := -1.0
	var path []EdgeID
	visited := make(map[VertexID]bool)
	var dfs func(cur VertexID, length int, rawCov int64)
	dfs = func(cur VertexID, length int, rawCov int64) {
		if cur == sink && length > 0 {
			if avg := float64(rawCov) / float64(length); avg > bestCov {
				bestCov = avg
				best = append([]EdgeID(nil), path...)
			}
			return
		}
		if visited[cur] {
			return
		}
		visited[cur] = true
		for _, e := range g.OutgoingEdges(cur) {
			if !component[e] {
				continue
			}
			path = append(path, e)
			dfs(g.EdgeEnd(e), length+g.Length(e), rawCov+cbr.cov.RawCoverage(e))
			path = path[:len(path)-1]
		}
		visited[cur] = false
	}
	dfs(v, 0, 0)
	return best, bestCov, best != nil
}

// RemoveComplexBulges derives the bounds from the configuration and
// runs a complex bulge remover.
func RemoveComplexBulges(g *Graph, cov *CoverageIndex, cfg ComplexBulgeRemoverConfig, observers []EdgeRemovalObserver) bool {
	if !cfg.Enabled {
		return false
	}
	log.Println("Removing complex bulges")
	maxLength := int(float64(g.K()) * cfg.MaxRelativeLength)
	cbr := NewComplexBulgeRemover(g, cov, maxLength, cfg.MaxLengthDifference, observers)
	return cbr.Run()
}
