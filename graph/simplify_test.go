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

// tipGraph builds a well-covered path A -> X -> B with a weak tip
// X -> Y hanging off the junction.
func tipGraph(rnd *rand.Rand) (g *Graph, cov *CoverageIndex, tip EdgeID) {
	g = New(testK)
	cov = NewCoverageIndex(g)
	a, x, b, y := g.AddVertex(), g.AddVertex(), g.AddVertex(), g.AddVertex()
	seq1 := randomEdgeSeq(rnd, 60)
	e1 := g.AddEdge(a, x, seq1)
	e2 := g.AddEdge(x, b, chainSeq(rnd, seq1, 60))
	tip = g.AddEdge(x, y, chainSeq(rnd, seq1, 30))
	for _, e := range []EdgeID{e1, e2} {
		cov.SetRawCoverage(e, int64(10*g.Length(e)))
		cov.SetRawCoverage(g.Conjugate(e), int64(10*g.Length(e)))
	}
	cov.SetRawCoverage(tip, int64(2*g.Length(tip)))
	cov.SetRawCoverage(g.Conjugate(tip), int64(2*g.Length(tip)))
	return g, cov, tip
}

// TestClipTips is the tip scenario: a 30 bp coverage-2 tip under the
// condition "length < 50 && coverage < 5" disappears, the freed
// junction is compressed, and the dead-end vertex is cleaned.
func TestClipTips(t *testing.T) {
	rnd := rand.New(rand.NewSource(60))
	g, cov, tip := tipGraph(rnd)
	y := g.EdgeEnd(tip)
	counter := new(CountingObserver)
	var removed []EdgeID
	observers := []EdgeRemovalObserver{counter, EdgeRemovalFunc(func(e EdgeID) {
		removed = append(removed, e)
	})}

	if !ClipTips(g, cov, "length < 50 && coverage < 5", observers) {
		t.Fatal("tip clipping reported no change")
	}
	if g.HasEdge(tip) {
		t.Error("tip not removed")
	}
	if g.HasVertex(y) {
		t.Error("dead-end vertex not cleaned")
	}
	if len(removed) != 1 || removed[0] != tip {
		t.Errorf("removal observer failed: %v", removed)
	}
	if g.NumEdges() != 2 {
		t.Errorf("junction not compressed: %v edges", g.NumEdges())
	}
	for _, e := range g.Edges() {
		if g.Length(e) != 120 {
			t.Error("compressed path length failed")
		}
	}
}

func TestClipTipsZeroLengthBound(t *testing.T) {
	rnd := rand.New(rand.NewSource(61))
	g, cov, tip := tipGraph(rnd)
	if ClipTips(g, cov, "length < 0", nil) {
		t.Error("tip clipping with a zero length bound removed something")
	}
	if !g.HasEdge(tip) {
		t.Error("tip disappeared despite the zero length bound")
	}
}

func TestParallelClipTips(t *testing.T) {
	rnd := rand.New(rand.NewSource(62))
	g, cov, tip := tipGraph(rnd)
	if !ParallelClipTips(g, cov, "length < 50 && coverage < 5", 2, nil) {
		t.Fatal("parallel tip clipping reported no change")
	}
	if g.HasEdge(tip) {
		t.Error("parallel tip clipping left the tip")
	}
	for _, v := range g.Vertices() {
		if g.IsCompressible(v) {
			t.Error("compressible vertex left after parallel tip clipping")
		}
	}
}

// bulgeGraph builds two parallel edges between the same vertices with
// coverages 100 and 3.
func bulgeGraph(rnd *rand.Rand) (g *Graph, cov *CoverageIndex, strong, weak EdgeID) {
	g = New(testK)
	cov = NewCoverageIndex(g)
	a, b := g.AddVertex(), g.AddVertex()
	strong = g.AddEdge(a, b, randomEdgeSeq(rnd, 10))
	weak = g.AddEdge(a, b, randomEdgeSeq(rnd, 10))
	cov.SetRawCoverage(strong, 100*10)
	cov.SetRawCoverage(g.Conjugate(strong), 100*10)
	cov.SetRawCoverage(weak, 3*10)
	cov.SetRawCoverage(g.Conjugate(weak), 3*10)
	return g, cov, strong, weak
}

// TestRemoveBulges is the parallel edge scenario: with
// max_relative_coverage 10 the coverage-3 edge is glued onto the
// coverage-100 edge.
func TestRemoveBulges(t *testing.T) {
	rnd := rand.New(rand.NewSource(63))
	g, cov, strong, weak := bulgeGraph(rnd)
	var removed, projected []EdgeID
	br := NewBulgeRemover(g, cov, 50, 1000, 10, 3, 0.1,
		func(e EdgeID, path []EdgeID) { projected = append(projected, e) },
		[]EdgeRemovalObserver{EdgeRemovalFunc(func(e EdgeID) { removed = append(removed, e) })})

	if !br.Process() {
		t.Fatal("bulge removal reported no change")
	}
	if g.HasEdge(weak) || g.HasEdge(strong) {
		t.Error("glue must replace both parallel edges")
	}
	if len(removed) != 1 || removed[0] != weak {
		t.Errorf("bulge removal observer failed: %v", removed)
	}
	if len(projected) != 1 || projected[0] != weak {
		t.Errorf("projection callback failed: %v", projected)
	}
	if g.NumEdges() != 2 {
		t.Errorf("bulge removal left %v edges", g.NumEdges())
	}
	for _, e := range g.Edges() {
		if cov.RawCoverage(e) != 1030 {
			t.Errorf("glued coverage failed: %v", cov.RawCoverage(e))
		}
	}
}

func TestRemoveBulgesZeroMaxCoverage(t *testing.T) {
	rnd := rand.New(rand.NewSource(64))
	g, cov, strong, weak := bulgeGraph(rnd)
	br := NewBulgeRemover(g, cov, 50, 0, 10, 3, 0.1, nil, nil)
	if br.Process() {
		t.Error("bulge removal with max coverage 0 removed something")
	}
	if !g.HasEdge(weak) || !g.HasEdge(strong) {
		t.Error("bulge removal with max coverage 0 mutated the graph")
	}
}

func testSimplifyConfig() SimplifyConfig {
	return SimplifyConfig{
		Presimp: PresimplificationConfig{
			Enabled:       true,
			ChunkCount:    2,
			ActivationCov: 10,
			TipCondition:  "tip && length < 50 && coverage < 2",
			ECCondition:   "length < 30 && coverage < 1.2",
			IER: IsolatedEdgeRemoverConfig{
				MaxLength:       50,
				MaxCoverage:     2,
				MaxLengthAnyCov: 100,
			},
		},
		TC: TipClipperConfig{Condition: "tip && length < 100 && coverage < 10"},
		BR: BulgeRemoverConfig{
			Enabled:                      true,
			MaxBulgeLengthCoefficient:    3,
			MaxAdditiveLengthCoefficient: 100,
			MaxCoverage:                  1000,
			MaxRelativeCoverage:          1.1,
			MaxDelta:                     3,
			MaxRelativeDelta:             0.1,
		},
		EC: ECRemoverConfig{Condition: "length < 60 && coverage < 4"},
		RCC: RelativeCoverageConfig{
			Enabled:                true,
			CoverageGap:            20,
			MaxECLengthCoefficient: 30,
			LengthCoefficient:      2,
			MaxCoverageCoefficient: 5,
			VertexCountLimit:       30,
		},
		CBR: ComplexBulgeRemoverConfig{
			Enabled:             true,
			MaxRelativeLength:   5,
			MaxLengthDifference: 5,
		},
		IterationCount: 1,
		MainIteration:  true,
	}
}

// TestPostSimplificationFixpoint is the canonical form scenario: on a
// graph with nothing to simplify, the post-simplification loop settles
// after its first pass and no observer fires.
func TestPostSimplificationFixpoint(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(65))
	e := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 200))
	cov.SetRawCoverage(e, 50*200)
	cov.SetRawCoverage(g.Conjugate(e), 50*200)

	fired := 0
	s := NewSimplifier(g, cov, testSimplifyConfig(),
		SimplifInfo{ReadLength: 100, DetectedMeanCoverage: 50, DetectedCoverageBound: 10},
		EdgeRemovalFunc(func(EdgeID) { fired++ }))
	s.PostSimplification()

	if fired != 0 {
		t.Errorf("observer fired %v times on a canonical graph", fired)
	}
	if !g.HasEdge(e) || g.NumEdges() != 2 {
		t.Error("post-simplification mutated a canonical graph")
	}
}

// TestPreSimplificationBelowActivation: with the mean coverage below
// the activation bound, presimplification stops after the
// self-conjugate and isolated passes, leaving tips alone.
func TestPreSimplificationBelowActivation(t *testing.T) {
	rnd := rand.New(rand.NewSource(66))
	g, cov, tip := tipGraph(rnd)
	cfg := testSimplifyConfig()
	cfg.Presimp.TipCondition = "tip && length < 50 && coverage < 5"
	s := NewSimplifier(g, cov, cfg,
		SimplifInfo{ReadLength: 100, DetectedMeanCoverage: 5, DetectedCoverageBound: 10})
	s.PreSimplification()
	if !g.HasEdge(tip) {
		t.Error("presimplification below activation coverage removed a tip")
	}
}

// TestSimplifyGraphCanonical runs the whole schedule on the tip graph
// and checks the terminal invariants: the tip is gone, no compressible
// vertex remains, and the conjugate involution holds.
func TestSimplifyGraphCanonical(t *testing.T) {
	rnd := rand.New(rand.NewSource(67))
	g, cov, tip := tipGraph(rnd)
	cfg := testSimplifyConfig()
	err := SimplifyGraph(g, cov, cfg,
		SimplifInfo{ReadLength: 100, DetectedMeanCoverage: 50, DetectedCoverageBound: 10})
	if err != nil {
		t.Fatal(err)
	}
	if g.HasEdge(tip) {
		t.Error("simplification left the tip")
	}
	for _, v := range g.Vertices() {
		if g.IsCompressible(v) {
			t.Error("compressible vertex left after simplification")
		}
	}
	for _, e := range g.Edges() {
		if cov.RawCoverage(e) < 0 {
			t.Error("negative coverage after simplification")
		}
	}
}

func TestRemoveIsolatedEdges(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(68))
	short := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 40))
	long := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 120))
	weak := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 60))
	cov.SetRawCoverage(short, 10*40)
	cov.SetRawCoverage(long, 10*120)
	cov.SetRawCoverage(weak, 1*60)

	RemoveIsolatedEdges(g, cov, 80, 2, 50, nil)
	if g.HasEdge(short) {
		t.Error("short isolated edge not removed")
	}
	if !g.HasEdge(long) {
		t.Error("long well-covered isolated edge removed")
	}
	if g.HasEdge(weak) {
		t.Error("weak isolated edge not removed")
	}
}

func TestRemoveSelfConjugateEdges(t *testing.T) {
	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(69))
	// a palindromic sequence between conjugate vertices yields a
	// self-conjugate edge
	a := g.AddVertex()
	half := randomEdgeSeq(rnd, 3)[:4]
	palindrome := append(append([]byte(nil), half...), ReverseComplement(half)...)
	selfConj := g.AddEdge(a, g.ConjugateVertex(a), palindrome)
	if g.Conjugate(selfConj) != selfConj {
		t.Fatal("self-conjugate edge construction failed")
	}
	normal := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 10))
	cov.SetRawCoverage(selfConj, 1)
	cov.SetRawCoverage(normal, 1)
	cov.SetRawCoverage(g.Conjugate(normal), 1)

	RemoveSelfConjugateEdges(g, cov, testK+100, 1, nil)
	if g.HasEdge(selfConj) {
		t.Error("self-conjugate edge not removed")
	}
	if !g.HasEdge(normal) {
		t.Error("ordinary edge removed by the self-conjugate pass")
	}
}
