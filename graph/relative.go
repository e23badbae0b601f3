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

// A RelativeCoverageComponentRemover removes connected subgraphs whose
// coverage falls below the coverage gap relative to every edge
// flanking them: such components are sequencing noise attached to
// well-covered sequence.
type RelativeCoverageComponentRemover struct {
	g                *Graph
	flanking         *FlankingCoverage
	coverageGap      float64
	lengthBound      int
	maxCoverage      float64
	vertexCountLimit int
	observers        []EdgeRemovalObserver
}

// NewRelativeCoverageComponentRemover returns a relative coverage
// component remover. lengthBound caps component edge lengths,
// maxCoverage caps component coverage, vertexCountLimit bounds the
// component search.
func NewRelativeCoverageComponentRemover(g *Graph, flanking *FlankingCoverage, coverageGap float64,
	lengthBound int, maxCoverage float64, vertexCountLimit int, observers []EdgeRemovalObserver) *RelativeCoverageComponentRemover {
	return &RelativeCoverageComponentRemover{
		g:                g,
		flanking:         flanking,
		coverageGap:      coverageGap,
		lengthBound:      lengthBound,
		maxCoverage:      maxCoverage,
		vertexCountLimit: vertexCountLimit,
		observers:        observers,
	}
}

// component collects the connected subgraph of edges reachable from e
// whose local coverage stays below the gap relative to threshold.
// It fails when the component exceeds the vertex count limit.
func (rcc *RelativeCoverageComponentRemover) component(e EdgeID, threshold float64) (map[EdgeID]bool, bool) {
	g := rcc.g
	edges := make(map[EdgeID]bool)
	var queue []VertexID
	visited := make(map[VertexID]bool)
	push := func(v VertexID) {
		if !visited[v] {
			visited[v] = true
			queue = append(queue, v)
		}
	}
	edges[e], edges[g.Conjugate(e)] = true, true
	push(g.EdgeStart(e))
	push(g.EdgeEnd(e))
	for len(queue) > 0 {
		if len(visited) > rcc.vertexCountLimit {
			return nil, false
		}
		v := queue[0]
		queue = queue[1:]
		for _, x := range append(g.IncomingEdges(v), g.OutgoingEdges(v)...) {
			if edges[x] {
				continue
			}
			// a well-covered edge is a border, not part of the
			// component
			if rcc.flanking.LocalCoverage(x, v)*rcc.coverageGap > threshold {
				continue
			}
			if g.Length(x) > rcc.lengthBound {
				return nil, false
			}
			edges[x], edges[g.Conjugate(x)] = true, true
			push(g.EdgeStart(x))
			push(g.EdgeEnd(x))
		}
	}
	return edges, true
}

// borderDominates checks that every edge flanking the component is
// covered at least coverageGap times better than the best-covered
// component edge.
func (rcc *RelativeCoverageComponentRemover) borderDominates(component map[EdgeID]bool) bool {
	g := rcc.g
	maxInner := 0.0
	for e := range component {
		for _, v := range []VertexID{g.EdgeStart(e), g.EdgeEnd(e)} {
			if c := rcc.flanking.LocalCoverage(e, v); c > maxInner {
				maxInner = c
			}
		}
	}
	if maxInner > rcc.maxCoverage {
		return false
	}
	hasBorder := false
	for e := range component {
		for _, v := range []VertexID{g.EdgeStart(e), g.EdgeEnd(e)} {
			for _, x := range append(g.IncomingEdges(v), g.OutgoingEdges(v)...) {
				if component[x] {
					continue
				}
				hasBorder = true
				if rcc.flanking.LocalCoverage(x, v) < maxInner*rcc.coverageGap {
					return false
				}
			}
		}
	}
	return hasBorder
}

// Process removes every relatively weak component and reports whether
// the graph changed.
func (rcc *RelativeCoverageComponentRemover) Process() bool {
	changed := false
	g := rcc.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) {
			continue
		}
		threshold := rcc.flanking.LocalCoverage(e, g.EdgeStart(e)) * rcc.coverageGap
		component, ok := rcc.component(e, threshold)
		if !ok || !rcc.borderDominates(component) {
			continue
		}
		for x := range component {
			if g.HasEdge(x) {
				removeEdgeAndCompress(g, x, rcc.observers)
			}
		}
		changed = true
	}
	return changed
}

// RemoveRelativelyLowCoverageComponents derives the bounds from the
// configuration and runs the component remover.
func RemoveRelativelyLowCoverageComponents(g *Graph, flanking *FlankingCoverage,
	cfg RelativeCoverageConfig, info *SimplifInfo, observers []EdgeRemovalObserver) bool {
	if !cfg.Enabled {
		log.Println("Removal of relatively low covered connections disabled")
		return false
	}
	log.Println("Removing relatively low covered connections")
	lengthBound := MaxErroneousConnectionLength(g.K(), cfg.MaxECLengthCoefficient)
	if rl := int(float64(info.ReadLength) * cfg.LengthCoefficient); rl > lengthBound {
		lengthBound = rl
	}
	rcc := NewRelativeCoverageComponentRemover(g, flanking, cfg.CoverageGap, lengthBound,
		info.DetectedCoverageBound*cfg.MaxCoverageCoefficient, cfg.VertexCountLimit, observers)
	return rcc.Process()
}
