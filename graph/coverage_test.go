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

func TestCoverageMerge(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(30))
	a, b, c := g.AddVertex(), g.AddVertex(), g.AddVertex()
	seq1 := randomEdgeSeq(rnd, 10)
	e1 := g.AddEdge(a, b, seq1)
	e2 := g.AddEdge(b, c, chainSeq(rnd, seq1, 10))
	cov.SetRawCoverage(e1, 100)
	cov.SetRawCoverage(e2, 60)

	merged := g.MergePath([]EdgeID{e1, e2})
	if cov.RawCoverage(merged) != 160 {
		t.Error("coverage merge sum failed")
	}
	if _, live := cov.storage[e1]; live {
		t.Error("coverage entry of a deleted edge not erased")
	}
}

func TestCoverageSplit(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(31))
	a, b := g.AddVertex(), g.AddVertex()
	e := g.AddEdge(a, b, randomEdgeSeq(rnd, 10))
	cov.SetRawCoverage(e, 100) // average 10 per k+1-mer

	n1, n2 := g.SplitEdge(e, 3)
	if cov.RawCoverage(n1) != 30 {
		t.Errorf("split coverage of first part failed: %v", cov.RawCoverage(n1))
	}
	if cov.RawCoverage(n2) != 70 {
		t.Errorf("split coverage of second part failed: %v", cov.RawCoverage(n2))
	}

	// a weakly covered edge still keeps at least count 1 per part
	e = g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 10))
	cov.SetRawCoverage(e, 1)
	n1, n2 = g.SplitEdge(e, 5)
	if cov.RawCoverage(n1) < 1 || cov.RawCoverage(n2) < 1 {
		t.Error("split coverage must stay at least 1")
	}
}

func TestCoverageGlue(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(32))
	a, b := g.AddVertex(), g.AddVertex()
	e1 := g.AddEdge(a, b, randomEdgeSeq(rnd, 7))
	e2 := g.AddEdge(a, b, randomEdgeSeq(rnd, 7))
	cov.SetRawCoverage(e1, 21)
	cov.SetRawCoverage(e2, 700)

	glued := g.GlueEdges(e1, e2)
	if cov.RawCoverage(glued) != 721 {
		t.Error("coverage glue sum failed")
	}
}

func TestCoverageVertexSplit(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(33))
	a, b, c := g.AddVertex(), g.AddVertex(), g.AddVertex()
	e1 := g.AddEdge(a, b, randomEdgeSeq(rnd, 10))
	e2 := g.AddEdge(b, c, randomEdgeSeq(rnd, 10))
	cov.SetRawCoverage(e1, 100)
	cov.SetRawCoverage(e2, 50)

	nv := g.SplitVertex(b, []float64{0.5, 0.5})
	if !g.HasVertex(nv) {
		t.Fatal("vertex split failed")
	}
	// each duplicate receives floor(count * coefficient)
	var dupIn, dupOut EdgeID
	for _, e := range g.IncomingEdges(nv) {
		dupIn = e
	}
	for _, e := range g.OutgoingEdges(nv) {
		dupOut = e
	}
	if cov.RawCoverage(dupIn) != 50 {
		t.Errorf("vertex split incoming coverage failed: %v", cov.RawCoverage(dupIn))
	}
	if cov.RawCoverage(dupOut) != 25 {
		t.Errorf("vertex split outgoing coverage failed: %v", cov.RawCoverage(dupOut))
	}
}

func TestMeanCoverage(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	if cov.MeanCoverage() != 0 {
		t.Error("mean coverage of an empty graph failed")
	}
	rnd := rand.New(rand.NewSource(34))
	e := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 10))
	cov.SetRawCoverage(e, 100)
	cov.SetRawCoverage(g.Conjugate(e), 100)
	if mean := cov.MeanCoverage(); mean != 10 {
		t.Errorf("mean coverage failed: %v", mean)
	}
}
