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
	"math/rand"
	"testing"
)

// buildChain creates a chain of n consecutive edges and returns the
// graph with its coverage index.
func buildChain(rnd *rand.Rand, n int) (*Graph, *CoverageIndex, []EdgeID) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	var edges []EdgeID
	prev := g.AddVertex()
	var prevSeq []byte
	for i := 0; i < n; i++ {
		next := g.AddVertex()
		var seq []byte
		if prevSeq == nil {
			seq = randomEdgeSeq(rnd, 10)
		} else {
			seq = chainSeq(rnd, prevSeq, 10)
		}
		e := g.AddEdge(prev, next, seq)
		cov.SetRawCoverage(e, 100)
		cov.SetRawCoverage(g.Conjugate(e), 100)
		edges = append(edges, e)
		prev = next
		prevSeq = seq
	}
	return g, cov, edges
}

func TestCompressChain(t *testing.T) {
	rnd := rand.New(rand.NewSource(40))
	g, cov, _ := buildChain(rnd, 4)
	if !NewCompressor(g).CompressAllVertices() {
		t.Error("compressing a chain reported no change")
	}
	if g.NumEdges() != 2 { // one edge and its conjugate
		t.Errorf("chain compression failed: %v edges", g.NumEdges())
	}
	for _, v := range g.Vertices() {
		if g.IsCompressible(v) {
			t.Error("compressible vertex left after compression")
		}
	}
	for _, e := range g.Edges() {
		if g.Length(e) != 40 {
			t.Error("compressed edge length failed")
		}
		if cov.RawCoverage(e) != 400 {
			t.Error("compressed edge coverage failed")
		}
	}
}

func TestCompressIdempotent(t *testing.T) {
	rnd := rand.New(rand.NewSource(41))
	g, _, _ := buildChain(rnd, 4)
	NewCompressor(g).CompressAllVertices()
	edges := g.Edges()
	if NewCompressor(g).CompressAllVertices() {
		t.Error("second compression reported a change")
	}
	after := g.Edges()
	if len(edges) != len(after) {
		t.Error("second compression mutated the graph")
	}
	for i := range edges {
		if edges[i] != after[i] {
			t.Error("second compression replaced edges")
		}
	}
}

func TestParallelCompressMatchesSerial(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	g, _, _ := buildChain(rnd, 8)
	NewParallelCompressor(g, 3).CompressAllVertices()
	if g.NumEdges() != 2 {
		t.Errorf("parallel compression failed: %v edges", g.NumEdges())
	}
	for _, v := range g.Vertices() {
		if g.IsCompressible(v) {
			t.Error("compressible vertex left after parallel compression")
		}
	}
}

func TestCleaner(t *testing.T) {
	g := New(testK)
	rnd := rand.New(rand.NewSource(43))
	g.AddVertex() // isolated pair
	e := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 5))
	NewCleaner(g).Clean()
	if g.NumVertices() != 4 {
		t.Errorf("cleaner failed: %v vertices", g.NumVertices())
	}
	if !g.HasEdge(e) {
		t.Error("cleaner removed a live edge")
	}
}

func TestCompressibleNeedsInAndOut(t *testing.T) {
	g := New(testK)
	// a vertex with only an incoming edge is not compressible; one
	// outgoing edge more makes it a plain chain vertex
	a := g.AddVertex()
	v := g.AddVertex()
	seq := []byte("ACGTACGTAC")
	e := g.AddEdge(a, v, seq)
	if g.IsCompressible(v) {
		t.Error("vertex with only an incoming edge should not be compressible")
	}
	_ = e
	b := g.AddVertex()
	g.AddEdge(v, b, chainSeq(rand.New(rand.NewSource(44)), seq, 5))
	if !g.IsCompressible(v) {
		t.Error("plain chain vertex should be compressible")
	}
}
