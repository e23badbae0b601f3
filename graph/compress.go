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
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
)

// IsCompressible tells whether v has exactly one incoming and one
// outgoing edge that are neither the same edge nor each other's
// reverse complements.
func (g *Graph) IsCompressible(v VertexID) bool {
	vtx := g.mustVertex(v)
	if len(vtx.in) != 1 || len(vtx.out) != 1 {
		return false
	}
	in, out := vtx.in[0], vtx.out[0]
	return in != out && in != g.Conjugate(out)
}

// chainThrough returns the maximal mergeable chain of edges running
// through the compressible vertex v. The chain never revisits a vertex
// and never contains both an edge and its conjugate.
func (g *Graph) chainThrough(v VertexID) []EdgeID {
	in := g.mustVertex(v).in[0]
	out := g.mustVertex(v).out[0]
	path := []EdgeID{in, out}
	seen := map[EdgeID]bool{in: true, g.Conjugate(in): true, out: true, g.Conjugate(out): true}

	for {
		start := g.EdgeStart(path[0])
		if !g.IsCompressible(start) {
			break
		}
		prev := g.mustVertex(start).in[0]
		if seen[prev] || seen[g.Conjugate(prev)] {
			break
		}
		seen[prev], seen[g.Conjugate(prev)] = true, true
		path = append([]EdgeID{prev}, path...)
	}
	for {
		end := g.EdgeEnd(path[len(path)-1])
		if !g.IsCompressible(end) {
			break
		}
		next := g.mustVertex(end).out[0]
		if seen[next] || seen[g.Conjugate(next)] {
			break
		}
		seen[next], seen[g.Conjugate(next)] = true, true
		path = append(path, next)
	}
	return path
}

// A Compressor merges chains of compressible vertices into single
// edges, restoring the graph's canonical form.
type Compressor struct {
	g *Graph
}

// NewCompressor returns a compressor for the graph.
func NewCompressor(g *Graph) *Compressor {
	return &Compressor{g: g}
}

// CompressVertex merges the chain running through v if v is
// compressible. It reports whether the graph changed.
func (c *Compressor) CompressVertex(v VertexID) bool {
	if !c.g.IsCompressible(v) {
		return false
	}
	c.g.MergePath(c.g.chainThrough(v))
	return true
}

// CompressAllVertices compresses every compressible vertex. After it
// returns, no compressible vertex remains.
func (c *Compressor) CompressAllVertices() bool {
	changed := false
	it := c.g.SmartVertices()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		if c.CompressVertex(v) {
			changed = true
		}
	}
	return changed
}

// A ParallelCompressor compresses chains chunk by chunk: a parallel
// mark phase collects chains whose interior lies inside one chunk, a
// sequential apply phase merges them, and a final sequential pass
// closes chains crossing chunk boundaries and loops.
type ParallelCompressor struct {
	g        *Graph
	chunkCnt int
}

// NewParallelCompressor returns a parallel compressor using the given
// number of chunks.
func NewParallelCompressor(g *Graph, chunkCnt int) *ParallelCompressor {
	if chunkCnt < 1 {
		log.Panicf("compressor: chunk count %v", chunkCnt)
	}
	return &ParallelCompressor{g: g, chunkCnt: chunkCnt}
}

// CompressAllVertices runs the two-phase compression followed by the
// sequential closing pass.
func (pc *ParallelCompressor) CompressAllVertices() bool {
	g := pc.g
	vertices := g.Vertices()
	chunkSize := (len(vertices) + pc.chunkCnt - 1) / pc.chunkCnt
	if chunkSize == 0 {
		chunkSize = 1
	}

	inChunk := func(chunk int, v VertexID) bool {
		i := sort.Search(len(vertices), func(i int) bool { return vertices[i] >= v })
		return i < len(vertices) && vertices[i] == v && i/chunkSize == chunk
	}

	// phase 1: mark chains per chunk; reads only
	chains := make([][][]EdgeID, pc.chunkCnt)
	parallel.Range(0, pc.chunkCnt, pc.chunkCnt, func(low, high int) {
		for chunk := low; chunk < high; chunk++ {
			lo, hi := chunk*chunkSize, (chunk+1)*chunkSize
			if hi > len(vertices) {
				hi = len(vertices)
			}
			for _, v := range vertices[lo:hi] {
				if !g.IsCompressible(v) {
					continue
				}
				// only chain heads start a chain, so chains are
				// collected once
				start := g.EdgeStart(g.mustVertex(v).in[0])
				if g.IsCompressible(start) && inChunk(chunk, start) {
					continue
				}
				chain := g.chainThrough(v)
				interior := true
				for _, e := range chain[:len(chain)-1] {
					if !inChunk(chunk, g.EdgeEnd(e)) {
						interior = false
						break
					}
				}
				if interior {
					chains[chunk] = append(chains[chunk], chain)
				}
			}
		}
	})

	// phase 2: apply marks sequentially
	changed := false
	for _, chunkChains := range chains {
		for _, chain := range chunkChains {
			live := true
			for _, e := range chain {
				if !g.HasEdge(e) {
					live = false
					break
				}
			}
			if live && len(chain) > 1 {
				g.MergePath(chain)
				changed = true
			}
		}
	}

	// the parallel pass cannot close chains crossing chunks or loops
	if NewCompressor(g).CompressAllVertices() {
		changed = true
	}
	return changed
}

// A Cleaner removes isolated vertices left behind by edge removals.
type Cleaner struct {
	g *Graph
}

// NewCleaner returns a cleaner for the graph.
func NewCleaner(g *Graph) *Cleaner {
	return &Cleaner{g: g}
}

// Clean deletes every isolated vertex.
func (c *Cleaner) Clean() {
	it := c.g.SmartVertices()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		if c.g.HasVertex(v) && c.g.IsIsolated(v) {
			c.g.DeleteVertex(v)
		}
	}
}
