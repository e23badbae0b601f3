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
	"bytes"
	"math/rand"
	"testing"
)

const testK = 5

func randomEdgeSeq(rnd *rand.Rand, length int) []byte {
	seq := make([]byte, length+testK)
	for i := range seq {
		seq[i] = "ACGT"[rnd.Intn(4)]
	}
	return seq
}

// chainSeq produces an edge sequence that starts with the last k
// letters of prev, so consecutive edges overlap properly.
func chainSeq(rnd *rand.Rand, prev []byte, length int) []byte {
	seq := make([]byte, 0, length+testK)
	seq = append(seq, prev[len(prev)-testK:]...)
	for i := 0; i < length; i++ {
		seq = append(seq, "ACGT"[rnd.Intn(4)])
	}
	return seq
}

type eventLog struct {
	BaseHandler
	events []string
}

func (h *eventLog) Name() string { return "eventLog" }

func (h *eventLog) HandleAdd(EdgeID)    { h.events = append(h.events, "add") }
func (h *eventLog) HandleDelete(EdgeID) { h.events = append(h.events, "delete") }
func (h *eventLog) HandleMerge([]EdgeID, EdgeID) {
	h.events = append(h.events, "merge")
}
func (h *eventLog) HandleGlue(EdgeID, EdgeID, EdgeID) {
	h.events = append(h.events, "glue")
}
func (h *eventLog) HandleSplit(EdgeID, EdgeID, EdgeID) {
	h.events = append(h.events, "split")
}

func TestConjugateInvolution(t *testing.T) {
	g := New(testK)
	rnd := rand.New(rand.NewSource(20))
	a, b := g.AddVertex(), g.AddVertex()
	e := g.AddEdge(a, b, randomEdgeSeq(rnd, 10))

	conj := g.Conjugate(e)
	if conj == e {
		t.Error("random edge should not be self-conjugate")
	}
	if g.Conjugate(conj) != e {
		t.Error("rc(rc(e)) = e failed")
	}
	if g.EdgeStart(conj) != g.ConjugateVertex(g.EdgeEnd(e)) {
		t.Error("conjugate start vertex failed")
	}
	if g.EdgeEnd(conj) != g.ConjugateVertex(g.EdgeStart(e)) {
		t.Error("conjugate end vertex failed")
	}
	if !bytes.Equal(g.EdgeSeq(conj), ReverseComplement(g.EdgeSeq(e))) {
		t.Error("conjugate sequence failed")
	}
	g.CheckConjugateInvariant()

	g.DeleteEdge(e)
	if g.HasEdge(e) || g.HasEdge(conj) {
		t.Error("deleting an edge must delete its conjugate")
	}
}

func TestHandlerEvents(t *testing.T) {
	g := New(testK)
	rnd := rand.New(rand.NewSource(21))
	h := new(eventLog)
	g.RegisterHandler(h)

	a, b, c := g.AddVertex(), g.AddVertex(), g.AddVertex()
	seq1 := randomEdgeSeq(rnd, 10)
	e1 := g.AddEdge(a, b, seq1)
	e2 := g.AddEdge(b, c, chainSeq(rnd, seq1, 10))
	if len(h.events) != 4 { // each edge and its conjugate
		t.Errorf("add events failed: %v", h.events)
	}

	h.events = nil
	merged := g.MergePath([]EdgeID{e1, e2})
	if g.Length(merged) != 20 {
		t.Error("merged edge length failed")
	}
	// merge for both strands first, then the deletions
	if len(h.events) < 2 || h.events[0] != "merge" || h.events[1] != "merge" {
		t.Errorf("merge event order failed: %v", h.events)
	}
	for _, ev := range h.events[2:] {
		if ev != "delete" {
			t.Errorf("merge cleanup events failed: %v", h.events)
		}
	}

	h.events = nil
	n1, n2 := g.SplitEdge(merged, 8)
	if g.Length(n1) != 8 || g.Length(n2) != 12 {
		t.Error("split lengths failed")
	}
	if h.events[0] != "split" || h.events[1] != "split" {
		t.Errorf("split event order failed: %v", h.events)
	}
	g.CheckConjugateInvariant()
}

func TestSmartIteratorToleratesDeletion(t *testing.T) {
	g := New(testK)
	rnd := rand.New(rand.NewSource(22))
	var edges []EdgeID
	for i := 0; i < 5; i++ {
		a, b := g.AddVertex(), g.AddVertex()
		edges = append(edges, g.AddEdge(a, b, randomEdgeSeq(rnd, 5)))
	}

	seen := 0
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		seen++
		if g.HasEdge(e) {
			g.DeleteEdge(e)
		}
	}
	if g.NumEdges() != 0 {
		t.Error("smart iterator deletion failed")
	}
	if seen != 5 {
		t.Errorf("smart iterator visited %v edges instead of 5", seen)
	}
}

func TestGlueEdges(t *testing.T) {
	g := New(testK)
	rnd := rand.New(rand.NewSource(23))
	a, b := g.AddVertex(), g.AddVertex()
	e1 := g.AddEdge(a, b, randomEdgeSeq(rnd, 7))
	e2 := g.AddEdge(a, b, randomEdgeSeq(rnd, 7))
	want := append([]byte(nil), g.EdgeSeq(e2)...)

	glued := g.GlueEdges(e1, e2)
	if g.HasEdge(e1) || g.HasEdge(e2) {
		t.Error("glued edges must disappear")
	}
	if !bytes.Equal(g.EdgeSeq(glued), want) {
		t.Error("glue must keep the projection target sequence")
	}
	g.CheckConjugateInvariant()
}

func TestSerializeRoundTrip(t *testing.T) {
	g := New(testK)
	rnd := rand.New(rand.NewSource(24))
	cov := NewCoverageIndex(g)
	a, b, c := g.AddVertex(), g.AddVertex(), g.AddVertex()
	seq1 := randomEdgeSeq(rnd, 10)
	e1 := g.AddEdge(a, b, seq1)
	e2 := g.AddEdge(b, c, chainSeq(rnd, seq1, 12))
	cov.SetRawCoverage(e1, 100)
	cov.SetRawCoverage(g.Conjugate(e1), 100)
	cov.SetRawCoverage(e2, 60)
	cov.SetRawCoverage(g.Conjugate(e2), 60)

	name := t.TempDir() + "/graph.ser.gz"
	WriteGraph(g, cov, name)
	g2, cov2 := ReadGraph(name)

	if g2.K() != testK {
		t.Error("graph order round trip failed")
	}
	if g2.NumEdges() != g.NumEdges() {
		t.Error("edge count round trip failed")
	}
	g2.CheckConjugateInvariant()

	total := 0
	for _, e := range g2.Edges() {
		total += int(cov2.RawCoverage(e))
	}
	if total != 2*(100+60) {
		t.Error("coverage round trip failed")
	}
	compressible := 0
	for _, v := range g2.Vertices() {
		if g2.IsCompressible(v) {
			compressible++
		}
	}
	if compressible != 2 { // the middle vertex and its conjugate
		t.Errorf("middle vertex reconstruction failed: %v compressible vertices", compressible)
	}
}
