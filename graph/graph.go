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

// Package graph implements the de Bruijn assembly graph and its
// simplification: a directed multigraph under a reverse-complement
// involution, an action-observer protocol for structural mutations,
// the family of artifact-removing algorithms, and the scheduler that
// drives them to a fixpoint.
package graph

import (
	"bytes"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/fastq"
)

type (
	// A VertexID is a stable vertex identifier. Identifiers are never
	// reused, so a deleted id stays dead forever.
	VertexID int64

	// An EdgeID is a stable edge identifier. Identifiers are never
	// reused.
	EdgeID int64
)

// NilEdge is the zero EdgeID; it never identifies a live edge.
const NilEdge EdgeID = 0

// An ActionHandler observes every structural mutation of the graph.
// Handlers are invoked in registration order, before the identifiers
// involved are invalidated.
type ActionHandler interface {
	Name() string
	// ThreadSafe handlers may be invoked from the two-step parallel
	// runners; the scheduler falls back to sequential algorithms when
	// any registered handler is not thread-safe.
	ThreadSafe() bool
	HandleAdd(e EdgeID)
	HandleDelete(e EdgeID)
	HandleMerge(oldEdges []EdgeID, newEdge EdgeID)
	HandleGlue(newEdge, edge1, edge2 EdgeID)
	HandleSplit(oldEdge, newEdge1, newEdge2 EdgeID)
	HandleVertexSplit(newVertex VertexID, newEdges [][2]EdgeID, coefficients []float64, oldVertex VertexID)
}

// A BaseHandler provides no-op implementations of all ActionHandler
// events except Name.
type BaseHandler struct{}

func (BaseHandler) ThreadSafe() bool                                             { return false }
func (BaseHandler) HandleAdd(EdgeID)                                             {}
func (BaseHandler) HandleDelete(EdgeID)                                          {}
func (BaseHandler) HandleMerge([]EdgeID, EdgeID)                                 {}
func (BaseHandler) HandleGlue(EdgeID, EdgeID, EdgeID)                            {}
func (BaseHandler) HandleSplit(EdgeID, EdgeID, EdgeID)                           {}
func (BaseHandler) HandleVertexSplit(VertexID, [][2]EdgeID, []float64, VertexID) {}

type vertex struct {
	in, out []EdgeID
	conj    VertexID
}

type edge struct {
	start, end VertexID
	seq        []byte
	conj       EdgeID
}

// A Graph is a directed de Bruijn multigraph of order k. Every edge
// carries a nucleotide sequence of length at least k+1; every edge has
// a reverse-complement edge, and the involution commutes with edge
// start/end.
type Graph struct {
	k        int
	vertices map[VertexID]*vertex
	edges    map[EdgeID]*edge
	nextID   int64
	handlers []ActionHandler
}

// New returns an empty graph of the given order.
func New(k int) *Graph {
	return &Graph{
		k:        k,
		vertices: make(map[VertexID]*vertex),
		edges:    make(map[EdgeID]*edge),
	}
}

// K returns the graph order.
func (g *Graph) K() int { return g.k }

// RegisterHandler appends a handler to the observer list. The handler
// list must only be mutated between algorithm invocations.
func (g *Graph) RegisterHandler(h ActionHandler) {
	g.handlers = append(g.handlers, h)
}

// AllHandlersThreadSafe tells whether every registered handler may be
// invoked from the parallel runners.
func (g *Graph) AllHandlersThreadSafe() bool {
	for _, h := range g.handlers {
		if !h.ThreadSafe() {
			return false
		}
	}
	return true
}

func (g *Graph) fresh() int64 {
	g.nextID++
	return g.nextID
}

// ReverseComplement returns the reverse complement of a nucleotide
// sequence.
func ReverseComplement(seq []byte) []byte {
	rc := make([]byte, len(seq))
	for i := range seq {
		rc[len(seq)-1-i] = fastq.Complement(seq[i])
	}
	return rc
}

// AddVertex creates a vertex together with its conjugate and returns
// the primary vertex.
func (g *Graph) AddVertex() VertexID {
	v := VertexID(g.fresh())
	w := VertexID(g.fresh())
	g.vertices[v] = &vertex{conj: w}
	g.vertices[w] = &vertex{conj: v}
	return v
}

// ConjugateVertex returns the reverse-complement counterpart of a
// vertex.
func (g *Graph) ConjugateVertex(v VertexID) VertexID {
	return g.mustVertex(v).conj
}

func (g *Graph) mustVertex(v VertexID) *vertex {
	vtx := g.vertices[v]
	if vtx == nil {
		log.Panicf("graph: unknown vertex %v", v)
	}
	return vtx
}

func (g *Graph) mustEdge(e EdgeID) *edge {
	ed := g.edges[e]
	if ed == nil {
		log.Panicf("graph: unknown edge %v", e)
	}
	return ed
}

// AddEdge creates an edge from one vertex to another carrying the
// given sequence, together with its reverse-complement edge, and
// notifies all handlers. A sequence that is its own reverse complement
// between conjugate vertices yields a self-conjugate edge.
func (g *Graph) AddEdge(from, to VertexID, seq []byte) EdgeID {
	if len(seq) < g.k+1 {
		log.Panicf("graph: edge sequence of length %v is shorter than k+1=%v", len(seq), g.k+1)
	}
	fromV, toV := g.mustVertex(from), g.mustVertex(to)
	rc := ReverseComplement(seq)

	e := EdgeID(g.fresh())
	if bytes.Equal(rc, seq) && from == toV.conj {
		g.edges[e] = &edge{start: from, end: to, seq: append([]byte(nil), seq...), conj: e}
		fromV.out = append(fromV.out, e)
		toV.in = append(toV.in, e)
		g.fireAdd(e)
		return e
	}

	ebar := EdgeID(g.fresh())
	g.edges[e] = &edge{start: from, end: to, seq: append([]byte(nil), seq...), conj: ebar}
	g.edges[ebar] = &edge{start: toV.conj, end: fromV.conj, seq: rc, conj: e}
	fromV.out = append(fromV.out, e)
	toV.in = append(toV.in, e)
	g.vertices[toV.conj].out = append(g.vertices[toV.conj].out, ebar)
	g.vertices[fromV.conj].in = append(g.vertices[fromV.conj].in, ebar)
	g.fireAdd(e)
	g.fireAdd(ebar)
	return e
}

// Conjugate returns the reverse-complement counterpart of an edge.
func (g *Graph) Conjugate(e EdgeID) EdgeID {
	return g.mustEdge(e).conj
}

// EdgeStart returns the start vertex of an edge.
func (g *Graph) EdgeStart(e EdgeID) VertexID { return g.mustEdge(e).start }

// EdgeEnd returns the end vertex of an edge.
func (g *Graph) EdgeEnd(e EdgeID) VertexID { return g.mustEdge(e).end }

// EdgeSeq returns the nucleotide sequence of an edge.
func (g *Graph) EdgeSeq(e EdgeID) []byte { return g.mustEdge(e).seq }

// Length returns the length of an edge in k+1-mers.
func (g *Graph) Length(e EdgeID) int { return len(g.mustEdge(e).seq) - g.k }

// HasEdge tells whether the edge is still live.
func (g *Graph) HasEdge(e EdgeID) bool {
	_, ok := g.edges[e]
	return ok
}

// HasVertex tells whether the vertex is still live.
func (g *Graph) HasVertex(v VertexID) bool {
	_, ok := g.vertices[v]
	return ok
}

// OutgoingEdges returns a copy of the edges leaving v.
func (g *Graph) OutgoingEdges(v VertexID) []EdgeID {
	return append([]EdgeID(nil), g.mustVertex(v).out...)
}

// IncomingEdges returns a copy of the edges entering v.
func (g *Graph) IncomingEdges(v VertexID) []EdgeID {
	return append([]EdgeID(nil), g.mustVertex(v).in...)
}

// OutDegree returns the number of edges leaving v.
func (g *Graph) OutDegree(v VertexID) int { return len(g.mustVertex(v).out) }

// InDegree returns the number of edges entering v.
func (g *Graph) InDegree(v VertexID) int { return len(g.mustVertex(v).in) }

// IsDeadEnd tells whether no edge leaves v.
func (g *Graph) IsDeadEnd(v VertexID) bool { return len(g.mustVertex(v).out) == 0 }

// IsDeadStart tells whether no edge enters v.
func (g *Graph) IsDeadStart(v VertexID) bool { return len(g.mustVertex(v).in) == 0 }

// IsIsolated tells whether v has no incident edges.
func (g *Graph) IsIsolated(v VertexID) bool {
	vtx := g.mustVertex(v)
	return len(vtx.in) == 0 && len(vtx.out) == 0
}

// Vertices returns a sorted snapshot of all live vertex ids.
func (g *Graph) Vertices() []VertexID {
	ids := make([]VertexID, 0, len(g.vertices))
	for v := range g.vertices {
		ids = append(ids, v)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Edges returns a sorted snapshot of all live edge ids.
func (g *Graph) Edges() []EdgeID {
	ids := make([]EdgeID, 0, len(g.edges))
	for e := range g.edges {
		ids = append(ids, e)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumEdges returns the number of live edges, conjugates included.
func (g *Graph) NumEdges() int { return len(g.edges) }

// NumVertices returns the number of live vertices, conjugates
// included.
func (g *Graph) NumVertices() int { return len(g.vertices) }

func removeEdgeID(edges []EdgeID, e EdgeID) []EdgeID {
	for i, x := range edges {
		if x == e {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

func (g *Graph) unlinkEdge(e EdgeID) {
	ed := g.mustEdge(e)
	start, end := g.mustVertex(ed.start), g.mustVertex(ed.end)
	start.out = removeEdgeID(start.out, e)
	end.in = removeEdgeID(end.in, e)
	delete(g.edges, e)
}

// DeleteEdge removes an edge and its conjugate, notifying all handlers
// before the identifiers are invalidated.
func (g *Graph) DeleteEdge(e EdgeID) {
	conj := g.Conjugate(e)
	g.fireDelete(e)
	if conj != e {
		g.fireDelete(conj)
	}
	g.unlinkEdge(e)
	if conj != e {
		g.unlinkEdge(conj)
	}
}

// DeleteVertex removes an isolated vertex and its conjugate.
func (g *Graph) DeleteVertex(v VertexID) {
	if !g.IsIsolated(v) {
		log.Panicf("graph: deleting non-isolated vertex %v", v)
	}
	conj := g.ConjugateVertex(v)
	delete(g.vertices, v)
	if conj != v {
		delete(g.vertices, conj)
	}
}

// mergeSeqs concatenates edge sequences overlapping by k letters.
func (g *Graph) mergeSeqs(path []EdgeID) []byte {
	merged := append([]byte(nil), g.EdgeSeq(path[0])...)
	for _, e := range path[1:] {
		seq := g.EdgeSeq(e)
		if !bytes.Equal(merged[len(merged)-g.k:], seq[:g.k]) {
			log.Panicf("graph: non-overlapping path at edge %v", e)
		}
		merged = append(merged, seq[g.k:]...)
	}
	return merged
}

// MergePath replaces a chain of consecutive edges by a single edge
// carrying the concatenated sequence. Handlers observe HandleMerge for
// the path and for its conjugate, then HandleDelete for the replaced
// edges. Intermediate vertices become isolated and are removed.
func (g *Graph) MergePath(path []EdgeID) EdgeID {
	if len(path) == 0 {
		log.Panic("graph: merging empty path")
	}
	if len(path) == 1 {
		return path[0]
	}
	for i := 1; i < len(path); i++ {
		if g.EdgeStart(path[i]) != g.EdgeEnd(path[i-1]) {
			log.Panicf("graph: non-consecutive path at edge %v", path[i])
		}
	}
	onPath := make(map[EdgeID]bool, 2*len(path))
	for _, e := range path {
		if onPath[e] || onPath[g.Conjugate(e)] {
			log.Panicf("graph: path overlaps its own conjugate at edge %v", e)
		}
		onPath[e] = true
	}

	from, to := g.EdgeStart(path[0]), g.EdgeEnd(path[len(path)-1])
	seq := g.mergeSeqs(path)
	interior := make([]VertexID, 0, len(path)-1)
	for _, e := range path[:len(path)-1] {
		interior = append(interior, g.EdgeEnd(e))
	}

	newEdge := g.addEdgeNoFire(from, to, seq)
	newConj := g.Conjugate(newEdge)
	g.fireMerge(path, newEdge)
	if newConj != newEdge {
		conjPath := make([]EdgeID, len(path))
		for i, e := range path {
			conjPath[len(path)-1-i] = g.Conjugate(e)
		}
		g.fireMerge(conjPath, newConj)
	}
	for _, e := range path {
		g.DeleteEdge(e)
	}
	for _, v := range interior {
		if g.HasVertex(v) && g.IsIsolated(v) {
			g.DeleteVertex(v)
		}
	}
	return newEdge
}

// addEdgeNoFire creates an edge pair without notifying handlers; used
// by compound mutations that fire their own events.
func (g *Graph) addEdgeNoFire(from, to VertexID, seq []byte) EdgeID {
	fromV, toV := g.mustVertex(from), g.mustVertex(to)
	rc := ReverseComplement(seq)
	e := EdgeID(g.fresh())
	if bytes.Equal(rc, seq) && from == toV.conj {
		g.edges[e] = &edge{start: from, end: to, seq: append([]byte(nil), seq...), conj: e}
		fromV.out = append(fromV.out, e)
		toV.in = append(toV.in, e)
		return e
	}
	ebar := EdgeID(g.fresh())
	g.edges[e] = &edge{start: from, end: to, seq: append([]byte(nil), seq...), conj: ebar}
	g.edges[ebar] = &edge{start: toV.conj, end: fromV.conj, seq: rc, conj: e}
	fromV.out = append(fromV.out, e)
	toV.in = append(toV.in, e)
	g.vertices[toV.conj].out = append(g.vertices[toV.conj].out, ebar)
	g.vertices[fromV.conj].in = append(g.vertices[fromV.conj].in, ebar)
	return e
}

// SplitEdge splits an edge at the given offset (in k+1-mers, between 1
// and length-1), introducing a fresh vertex. Handlers observe
// HandleSplit for the edge and its conjugate, then HandleDelete.
func (g *Graph) SplitEdge(e EdgeID, offset int) (EdgeID, EdgeID) {
	length := g.Length(e)
	if offset <= 0 || offset >= length {
		log.Panicf("graph: split offset %v out of range (0, %v)", offset, length)
	}
	if g.Conjugate(e) == e {
		log.Panicf("graph: splitting self-conjugate edge %v", e)
	}
	seq := g.EdgeSeq(e)
	mid := g.AddVertex()
	n1 := g.addEdgeNoFire(g.EdgeStart(e), mid, append([]byte(nil), seq[:offset+g.k]...))
	n2 := g.addEdgeNoFire(mid, g.EdgeEnd(e), append([]byte(nil), seq[offset:]...))
	g.fireSplit(e, n1, n2)
	if conj := g.Conjugate(e); conj != e {
		g.fireSplit(conj, g.Conjugate(n2), g.Conjugate(n1))
	}
	g.DeleteEdge(e)
	return n1, n2
}

// GlueEdges projects edge1 onto the parallel edge2: a fresh edge with
// edge2's sequence replaces both. Handlers observe HandleGlue, then
// HandleDelete for both replaced edges.
func (g *Graph) GlueEdges(edge1, edge2 EdgeID) EdgeID {
	if g.EdgeStart(edge1) != g.EdgeStart(edge2) || g.EdgeEnd(edge1) != g.EdgeEnd(edge2) {
		log.Panicf("graph: gluing non-parallel edges %v and %v", edge1, edge2)
	}
	newEdge := g.addEdgeNoFire(g.EdgeStart(edge2), g.EdgeEnd(edge2), append([]byte(nil), g.EdgeSeq(edge2)...))
	g.fireGlue(newEdge, edge1, edge2)
	if conj := g.Conjugate(newEdge); conj != newEdge {
		g.fireGlue(conj, g.Conjugate(edge1), g.Conjugate(edge2))
	}
	g.DeleteEdge(edge1)
	g.DeleteEdge(edge2)
	return newEdge
}

// SplitVertex duplicates a vertex, reattaching a duplicate of every
// incident edge to the fresh vertex with the given weight
// coefficients, one per incident edge in incoming-then-outgoing order.
func (g *Graph) SplitVertex(v VertexID, coefficients []float64) VertexID {
	vtx := g.mustVertex(v)
	incident := append(append([]EdgeID(nil), vtx.in...), vtx.out...)
	if len(coefficients) != len(incident) {
		log.Panicf("graph: %v coefficients for %v incident edges", len(coefficients), len(incident))
	}
	nv := g.AddVertex()
	pairs := make([][2]EdgeID, 0, len(incident))
	for i, e := range incident {
		var ne EdgeID
		if i < len(vtx.in) {
			ne = g.addEdgeNoFire(g.EdgeStart(e), nv, append([]byte(nil), g.EdgeSeq(e)...))
		} else {
			ne = g.addEdgeNoFire(nv, g.EdgeEnd(e), append([]byte(nil), g.EdgeSeq(e)...))
		}
		pairs = append(pairs, [2]EdgeID{e, ne})
	}
	g.fireVertexSplit(nv, pairs, coefficients, v)
	return nv
}

// CheckConjugateInvariant panics unless rc(rc(e)) = e holds for every
// edge and the involution commutes with start/end.
func (g *Graph) CheckConjugateInvariant() {
	for e, ed := range g.edges {
		conj := g.mustEdge(ed.conj)
		if conj.conj != e {
			log.Panicf("graph: rc(rc(%v)) = %v", e, conj.conj)
		}
		if conj.start != g.mustVertex(ed.end).conj || conj.end != g.mustVertex(ed.start).conj {
			log.Panicf("graph: conjugate of edge %v does not mirror its endpoints", e)
		}
	}
}

func (g *Graph) fireAdd(e EdgeID) {
	for _, h := range g.handlers {
		h.HandleAdd(e)
	}
}

func (g *Graph) fireDelete(e EdgeID) {
	for _, h := range g.handlers {
		h.HandleDelete(e)
	}
}

func (g *Graph) fireMerge(old []EdgeID, newEdge EdgeID) {
	for _, h := range g.handlers {
		h.HandleMerge(old, newEdge)
	}
}

func (g *Graph) fireGlue(newEdge, e1, e2 EdgeID) {
	for _, h := range g.handlers {
		h.HandleGlue(newEdge, e1, e2)
	}
}

func (g *Graph) fireSplit(old, n1, n2 EdgeID) {
	for _, h := range g.handlers {
		h.HandleSplit(old, n1, n2)
	}
}

func (g *Graph) fireVertexSplit(nv VertexID, pairs [][2]EdgeID, coefficients []float64, old VertexID) {
	for _, h := range g.handlers {
		h.HandleVertexSplit(nv, pairs, coefficients, old)
	}
}
