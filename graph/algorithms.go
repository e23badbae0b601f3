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
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// An EdgeRemovalObserver is notified of every edge a simplification
// algorithm removes, before the removal happens. Observers are invoked
// in registration order; wrapping and composition are expressed by
// extending the observer list.
type EdgeRemovalObserver interface {
	OnEdgeRemoval(e EdgeID)
}

// EdgeRemovalFunc adapts a function to the EdgeRemovalObserver
// interface.
type EdgeRemovalFunc func(e EdgeID)

// OnEdgeRemoval implements the EdgeRemovalObserver interface.
func (f EdgeRemovalFunc) OnEdgeRemoval(e EdgeID) { f(e) }

// A CountingObserver counts removed edges. It is safe for concurrent
// use.
type CountingObserver struct {
	cnt uint64
}

// OnEdgeRemoval implements the EdgeRemovalObserver interface.
func (c *CountingObserver) OnEdgeRemoval(EdgeID) {
	atomic.AddUint64(&c.cnt, 1)
}

// Report logs and resets the removal count.
func (c *CountingObserver) Report() {
	log.Printf("%v edges were removed.", atomic.SwapUint64(&c.cnt, 0))
}

func notifyRemoval(observers []EdgeRemovalObserver, e EdgeID) {
	for _, obs := range observers {
		obs.OnEdgeRemoval(e)
	}
}

// removeEdgeAndCompress notifies the observers, deletes the edge, then
// compresses the former end vertices and cleans up isolated ones.
func removeEdgeAndCompress(g *Graph, e EdgeID, observers []EdgeRemovalObserver) {
	notifyRemoval(observers, e)
	start, end := g.EdgeStart(e), g.EdgeEnd(e)
	g.DeleteEdge(e)
	compressor := NewCompressor(g)
	for _, v := range []VertexID{start, end} {
		if !g.HasVertex(v) {
			continue
		}
		compressor.CompressVertex(v)
		if g.HasVertex(v) && g.IsIsolated(v) {
			g.DeleteVertex(v)
		}
	}
}

// pathSearchVertexLimit bounds the number of DFS steps in alternative
// path searches.
const pathSearchVertexLimit = 1000

// hasPath tells whether a directed path from one vertex to another
// exists with total length in [minLen, maxLen], avoiding the edges in
// skip. from == to is matched by the empty path when minLen <= 0.
func hasPath(g *Graph, from, to VertexID, minLen, maxLen int, skip map[EdgeID]bool) bool {
	if from == to && minLen <= 0 {
		return true
	}
	steps := 0
	var dfs func(v VertexID, length int) bool
	dfs = func(v VertexID, length int) bool {
		if steps++; steps > pathSearchVertexLimit {
			return false
		}
		for _, e := range g.OutgoingEdges(v) {
			if skip[e] {
				continue
			}
			next := length + g.Length(e)
			if next > maxLen {
				continue
			}
			if g.EdgeEnd(e) == to && next >= minLen {
				return true
			}
			if dfs(g.EdgeEnd(e), next) {
				return true
			}
		}
		return false
	}
	return dfs(from, 0)
}

// bestAlternativePath finds the alternative path between the endpoints
// of e, with length in [minLen, maxLen], that maximizes the
// length-weighted average coverage. The path never uses e or its
// conjugate.
func bestAlternativePath(g *Graph, cov *CoverageIndex, e EdgeID, minLen, maxLen int) ([]EdgeID, float64, bool) {
	from, to := g.EdgeStart(e), g.EdgeEnd(e)
	skip := map[EdgeID]bool{e: true, g.Conjugate(e): true}
	steps := 0
	var best []EdgeID
	bestCov := -1.0
	var path []EdgeID
	var dfs func(v VertexID, length int, rawCov int64)
	dfs = func(v VertexID, length int, rawCov int64) {
		if steps++; steps > pathSearchVertexLimit {
			return
		}
		for _, next := range g.OutgoingEdges(v) {
			if skip[next] {
				continue
			}
			nextLen := length + g.Length(next)
			if nextLen > maxLen {
				continue
			}
			path = append(path, next)
			nextCov := rawCov + cov.RawCoverage(next)
			if g.EdgeEnd(next) == to && nextLen >= minLen {
				if avg := float64(nextCov) / float64(nextLen); avg > bestCov {
					bestCov = avg
					best = append([]EdgeID(nil), path...)
				}
			}
			// keep exploring through the endpoint as well, longer
			// paths may still fit the window
			skip[next], skip[g.Conjugate(next)] = true, true
			dfs(g.EdgeEnd(next), nextLen, nextCov)
			delete(skip, next)
			delete(skip, g.Conjugate(next))
			path = path[:len(path)-1]
		}
	}
	dfs(from, 0, 0)
	return best, bestCov, best != nil
}
