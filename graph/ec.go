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
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/pargo/parallel"
)

// ecCoverageSteps is the number of rising coverage thresholds the
// iterative low-coverage remover walks through.
const ecCoverageSteps = 10

// An IterativeLowCoverageEdgeRemover removes low-coverage erroneous
// connections, raising the coverage threshold step by step so that the
// weakest edges go first and compression can rescue their neighbors.
type IterativeLowCoverageEdgeRemover struct {
	g                *Graph
	cov              *CoverageIndex
	maxCoverageBound float64
	condition        *ParsedCondition
	observers        []EdgeRemovalObserver
}

// NewIterativeLowCoverageEdgeRemover returns an iterative low-coverage
// edge remover.
func NewIterativeLowCoverageEdgeRemover(g *Graph, cov *CoverageIndex, maxCoverageBound float64,
	condition *ParsedCondition, observers []EdgeRemovalObserver) *IterativeLowCoverageEdgeRemover {
	return &IterativeLowCoverageEdgeRemover{
		g:                g,
		cov:              cov,
		maxCoverageBound: maxCoverageBound,
		condition:        condition,
		observers:        observers,
	}
}

// Process removes every matching edge and reports whether the graph
// changed.
func (ec *IterativeLowCoverageEdgeRemover) Process() bool {
	changed := false
	steps := ecCoverageSteps
	if math.IsInf(ec.maxCoverageBound, 1) {
		steps = 1
	}
	for step := 1; step <= steps; step++ {
		threshold := ec.maxCoverageBound
		if steps > 1 {
			threshold = ec.maxCoverageBound * float64(step) / float64(steps)
		}
		it := ec.g.SmartEdges()
		for e, ok := it.Next(); ok; e, ok = it.Next() {
			if !ec.g.HasEdge(e) {
				continue
			}
			if !math.IsInf(threshold, 1) && ec.cov.Coverage(e) > threshold {
				continue
			}
			if !ec.condition.Pred(ec.g, ec.cov, e) {
				continue
			}
			removeEdgeAndCompress(ec.g, e, ec.observers)
			changed = true
		}
	}
	return changed
}

// RemoveLowCoverageEdges parses the EC condition and runs the
// iterative remover.
func RemoveLowCoverageEdges(g *Graph, cov *CoverageIndex, conditionStr string, observers []EdgeRemovalObserver) bool {
	log.Println("Removing low covered connections")
	condition, err := ParseCondition(conditionStr)
	if err != nil {
		log.Panic(err)
	}
	ec := NewIterativeLowCoverageEdgeRemover(g, cov, condition.MaxCoverageBound, condition, observers)
	return ec.Process()
}

// ParallelEC removes low-coverage erroneous connections with the
// two-step runner: marks are collected per edge chunk in parallel and
// applied under exclusion, followed by parallel compression.
func ParallelEC(g *Graph, cov *CoverageIndex, conditionStr string, chunkCnt int, observers []EdgeRemovalObserver) bool {
	log.Println("Parallel ec remover")
	condition, err := ParseCondition(conditionStr)
	if err != nil {
		log.Panic(err)
	}

	edges := g.Edges()
	chunkSize := (len(edges) + chunkCnt - 1) / chunkCnt
	if chunkSize == 0 {
		chunkSize = 1
	}
	marks := make([][]EdgeID, chunkCnt)
	parallel.Range(0, chunkCnt, chunkCnt, func(low, high int) {
		for chunk := low; chunk < high; chunk++ {
			lo, hi := chunk*chunkSize, (chunk+1)*chunkSize
			if hi > len(edges) {
				hi = len(edges)
			}
			for _, e := range edges[lo:hi] {
				if condition.Pred(g, cov, e) {
					marks[chunk] = append(marks[chunk], e)
				}
			}
		}
	})

	changed := false
	for _, chunkMarks := range marks {
		for _, e := range chunkMarks {
			if !g.HasEdge(e) || !condition.Pred(g, cov, e) {
				continue
			}
			notifyRemoval(observers, e)
			g.DeleteEdge(e)
			changed = true
		}
	}

	NewParallelCompressor(g, chunkCnt).CompressAllVertices()
	return changed
}

// RemoveSelfConjugateEdges removes short low-coverage edges that are
// their own reverse complements. The projection callback is
// deliberately not involved here.
func RemoveSelfConjugateEdges(g *Graph, cov *CoverageIndex, maxLength int, maxCoverage float64, observers []EdgeRemovalObserver) bool {
	log.Println("Removing short low covered self-conjugate connections")
	changed := false
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Conjugate(e) != e {
			continue
		}
		if g.Length(e) > maxLength || cov.Coverage(e) > maxCoverage {
			continue
		}
		removeEdgeAndCompress(g, e, observers)
		changed = true
	}
	return changed
}

// RemoveIsolatedEdges removes edges with no neighboring edges when
// they are short regardless of coverage, or somewhat longer but weakly
// covered.
func RemoveIsolatedEdges(g *Graph, cov *CoverageIndex, maxLength int, maxCoverage float64, maxLengthAnyCov int, observers []EdgeRemovalObserver) bool {
	log.Println("Removing isolated edges")
	changed := false
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) {
			continue
		}
		start, end := g.EdgeStart(e), g.EdgeEnd(e)
		conj := g.Conjugate(e)
		isolated := true
		for _, v := range []VertexID{start, end} {
			for _, x := range append(g.IncomingEdges(v), g.OutgoingEdges(v)...) {
				if x != e && x != conj {
					isolated = false
				}
			}
		}
		if !isolated {
			continue
		}
		length := g.Length(e)
		if length <= maxLengthAnyCov || (length <= maxLength && cov.Coverage(e) <= maxCoverage) {
			notifyRemoval(observers, e)
			g.DeleteEdge(e)
			for _, v := range []VertexID{start, end} {
				if g.HasVertex(v) && g.IsIsolated(v) {
					g.DeleteVertex(v)
				}
			}
			changed = true
		}
	}
	return changed
}

// uniqueness and plausibility predicates shared by the topology-based
// removers

func (g *Graph) hasUniqueFlank(e EdgeID, uniquenessLength int) bool {
	return uniqueLongIncoming(g, g.EdgeStart(e), uniquenessLength) ||
		uniqueLongOutgoing(g, g.EdgeEnd(e), uniquenessLength)
}

func (g *Graph) hasPlausibleAlternatives(e EdgeID, plausibilityLength int) bool {
	return plausibleAlternative(g, g.EdgeStart(e), e, plausibilityLength, true) &&
		plausibleAlternative(g, g.EdgeEnd(e), e, plausibilityLength, false)
}

// A TopologyChimericEdgeRemover removes short edges whose surroundings
// prove them chimeric: a unique long edge on both flanks and plausible
// alternative continuations on both sides.
type TopologyChimericEdgeRemover struct {
	g                  *Graph
	maxLength          int
	uniquenessLength   int
	plausibilityLength int
	observers          []EdgeRemovalObserver
}

// NewTopologyChimericEdgeRemover returns a topology-based remover.
func NewTopologyChimericEdgeRemover(g *Graph, maxLength, uniquenessLength, plausibilityLength int, observers []EdgeRemovalObserver) *TopologyChimericEdgeRemover {
	return &TopologyChimericEdgeRemover{
		g:                  g,
		maxLength:          maxLength,
		uniquenessLength:   uniquenessLength,
		plausibilityLength: plausibilityLength,
		observers:          observers,
	}
}

// Process removes every topology-approved chimeric edge.
func (tec *TopologyChimericEdgeRemover) Process() bool {
	changed := false
	g := tec.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Length(e) > tec.maxLength {
			continue
		}
		if !uniqueLongIncoming(g, g.EdgeStart(e), tec.uniquenessLength) ||
			!uniqueLongOutgoing(g, g.EdgeEnd(e), tec.uniquenessLength) {
			continue
		}
		if !g.hasPlausibleAlternatives(e, tec.plausibilityLength) {
			continue
		}
		removeEdgeAndCompress(g, e, tec.observers)
		changed = true
	}
	return changed
}

// A TopologyReliabilityEdgeRemover removes short edges flanked by a
// unique long edge when all surrounding coverage is reliable, which
// makes the weak connection itself the outlier.
type TopologyReliabilityEdgeRemover struct {
	g                  *Graph
	cov                *CoverageIndex
	maxLength          int
	uniquenessLength   int
	unreliableCoverage float64
	observers          []EdgeRemovalObserver
}

// NewTopologyReliabilityEdgeRemover returns a topology and reliability
// based remover.
func NewTopologyReliabilityEdgeRemover(g *Graph, cov *CoverageIndex, maxLength, uniquenessLength int,
	unreliableCoverage float64, observers []EdgeRemovalObserver) *TopologyReliabilityEdgeRemover {
	return &TopologyReliabilityEdgeRemover{
		g:                  g,
		cov:                cov,
		maxLength:          maxLength,
		uniquenessLength:   uniquenessLength,
		unreliableCoverage: unreliableCoverage,
		observers:          observers,
	}
}

// Process removes every approved edge.
func (trec *TopologyReliabilityEdgeRemover) Process() bool {
	changed := false
	g := trec.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Length(e) > trec.maxLength {
			continue
		}
		if !g.hasUniqueFlank(e, trec.uniquenessLength) {
			continue
		}
		if trec.cov.Coverage(e) >= trec.unreliableCoverage {
			continue
		}
		reliable := true
		for _, v := range []VertexID{g.EdgeStart(e), g.EdgeEnd(e)} {
			for _, x := range append(g.IncomingEdges(v), g.OutgoingEdges(v)...) {
				if x == e || x == g.Conjugate(e) {
					continue
				}
				if trec.cov.Coverage(x) < trec.unreliableCoverage {
					reliable = false
				}
			}
		}
		if !reliable {
			continue
		}
		removeEdgeAndCompress(g, e, trec.observers)
		changed = true
	}
	return changed
}

// A MultiplicityCountingEdgeRemover removes short edges whose
// flanking multiplicity count proves them chimeric: the unique long
// flank can only carry one genomic copy, and the plausible
// alternatives account for it.
type MultiplicityCountingEdgeRemover struct {
	g                  *Graph
	maxLength          int
	uniquenessLength   int
	plausibilityLength int
	observers          []EdgeRemovalObserver
}

// NewMultiplicityCountingEdgeRemover returns a multiplicity counting
// remover.
func NewMultiplicityCountingEdgeRemover(g *Graph, maxLength, uniquenessLength, plausibilityLength int, observers []EdgeRemovalObserver) *MultiplicityCountingEdgeRemover {
	return &MultiplicityCountingEdgeRemover{
		g:                  g,
		maxLength:          maxLength,
		uniquenessLength:   uniquenessLength,
		plausibilityLength: plausibilityLength,
		observers:          observers,
	}
}

// multiplicity estimates how many genomic copies pass through the side
// of v away from e: the number of long edges on that side.
func (mc *MultiplicityCountingEdgeRemover) multiplicity(v VertexID, e EdgeID, incoming bool) int {
	g := mc.g
	edges := g.IncomingEdges(v)
	if !incoming {
		edges = g.OutgoingEdges(v)
	}
	count := 0
	for _, x := range edges {
		if x == e || x == g.Conjugate(e) {
			continue
		}
		if g.Length(x) >= mc.uniquenessLength {
			count++
		}
	}
	return count
}

// Process removes every edge whose flanking multiplicities show it
// carries no genomic copy.
func (mc *MultiplicityCountingEdgeRemover) Process() bool {
	changed := false
	g := mc.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Length(e) > mc.maxLength {
			continue
		}
		start, end := g.EdgeStart(e), g.EdgeEnd(e)
		if mc.multiplicity(start, e, true) != 1 || mc.multiplicity(end, e, false) != 1 {
			continue
		}
		// the single incoming copy must have a plausible continuation
		// besides e on both sides
		if !g.hasPlausibleAlternatives(e, mc.plausibilityLength) {
			continue
		}
		removeEdgeAndCompress(g, e, mc.observers)
		changed = true
	}
	return changed
}

// A ThornRemover removes interstrand connections: short edges whose
// endpoints connect a strand to its own reverse complement within a
// bounded span.
type ThornRemover struct {
	g                *Graph
	maxLength        int
	uniquenessLength int
	spanDistance     int
	observers        []EdgeRemovalObserver
}

// NewThornRemover returns an interstrand connection remover.
func NewThornRemover(g *Graph, maxLength, uniquenessLength, spanDistance int, observers []EdgeRemovalObserver) *ThornRemover {
	return &ThornRemover{
		g:                g,
		maxLength:        maxLength,
		uniquenessLength: uniquenessLength,
		spanDistance:     spanDistance,
		observers:        observers,
	}
}

// Process removes every thorn.
func (tr *ThornRemover) Process() bool {
	changed := false
	g := tr.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Length(e) > tr.maxLength {
			continue
		}
		if !g.hasUniqueFlank(e, tr.uniquenessLength) {
			continue
		}
		// a thorn bridges a vertex to its own strand mirror
		end := g.EdgeEnd(e)
		mirror := g.ConjugateVertex(g.EdgeStart(e))
		if end != mirror && !hasPath(g, end, mirror, 1, tr.spanDistance, map[EdgeID]bool{e: true, g.Conjugate(e): true}) {
			continue
		}
		removeEdgeAndCompress(g, e, tr.observers)
		changed = true
	}
	return changed
}

// A MaxFlowECRemover removes short edges that carry no flow in any
// maximum flow between the unique long edges flanking their region.
type MaxFlowECRemover struct {
	g                  *Graph
	maxLength          int
	uniquenessLength   int
	plausibilityLength int
	observers          []EdgeRemovalObserver
}

// NewMaxFlowECRemover returns a max-flow based remover.
func NewMaxFlowECRemover(g *Graph, maxLength, uniquenessLength, plausibilityLength int, observers []EdgeRemovalObserver) *MaxFlowECRemover {
	return &MaxFlowECRemover{
		g:                  g,
		maxLength:          maxLength,
		uniquenessLength:   uniquenessLength,
		plausibilityLength: plausibilityLength,
		observers:          observers,
	}
}

// maxFlow computes the maximum number of edge-disjoint paths from
// source to sink over the allowed edges, optionally excluding one
// edge. The flanking unique edges are part of the allowed set, so
// their unit capacity bounds the flow through the region.
func (mf *MaxFlowECRemover) maxFlow(source, sink VertexID, allowed func(EdgeID) bool, exclude EdgeID) int {
	g := mf.g
	used := make(map[EdgeID]bool)
	if exclude != NilEdge {
		used[exclude] = true
		used[g.Conjugate(exclude)] = true
	}
	flow := 0
	for {
		// one augmenting path over unused allowed edges
		parent := make(map[VertexID]EdgeID)
		visited := map[VertexID]bool{source: true}
		queue := []VertexID{source}
		found := false
		for len(queue) > 0 && !found {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range g.OutgoingEdges(cur) {
				if used[e] || !allowed(e) {
					continue
				}
				w := g.EdgeEnd(e)
				if visited[w] {
					continue
				}
				visited[w] = true
				parent[w] = e
				if w == sink {
					found = true
					break
				}
				queue = append(queue, w)
			}
		}
		if !found {
			return flow
		}
		for v := sink; v != source; {
			e := parent[v]
			used[e] = true
			v = g.EdgeStart(e)
		}
		flow++
		if flow > pathSearchVertexLimit {
			return flow
		}
	}
}

// Process removes every short edge that no maximum flow between its
// flanking unique edges needs: the flow enters through the unique
// incoming edge and leaves through the unique outgoing one, and
// dropping the edge must not lower the flow value.
func (mf *MaxFlowECRemover) Process() bool {
	changed := false
	g := mf.g
	it := g.SmartEdges()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if !g.HasEdge(e) || g.Length(e) > mf.maxLength {
			continue
		}
		start, end := g.EdgeStart(e), g.EdgeEnd(e)
		if !uniqueLongIncoming(g, start, mf.uniquenessLength) ||
			!uniqueLongOutgoing(g, end, mf.uniquenessLength) {
			continue
		}
		uIn := g.IncomingEdges(start)[0]
		uOut := g.OutgoingEdges(end)[0]
		allowed := func(x EdgeID) bool {
			return x == uIn || x == uOut || g.Length(x) <= mf.maxLength
		}
		source, sink := g.EdgeStart(uIn), g.EdgeEnd(uOut)
		withEdge := mf.maxFlow(source, sink, allowed, NilEdge)
		if withEdge == 0 {
			continue
		}
		withoutEdge := mf.maxFlow(source, sink, allowed, e)
		if withoutEdge < withEdge {
			continue
		}
		removeEdgeAndCompress(g, e, mf.observers)
		changed = true
	}
	return changed
}

// A HiddenECRemover removes low-coverage edges masked behind
// well-covered flanks: at a branching vertex fed by a unique long
// edge, an outgoing edge whose local coverage falls below the relative
// threshold of its sibling is a hidden erroneous connection.
type HiddenECRemover struct {
	g                      *Graph
	cov                    *CoverageIndex
	flanking               *FlankingCoverage
	uniquenessLength       int
	unreliabilityThreshold float64
	relativeThreshold      float64
	observers              []EdgeRemovalObserver
}

// NewHiddenECRemover returns a hidden EC remover.
// unreliabilityThreshold is an absolute coverage bound derived from
// the detected coverage; relativeThreshold compares siblings.
func NewHiddenECRemover(g *Graph, cov *CoverageIndex, flanking *FlankingCoverage, uniquenessLength int,
	unreliabilityThreshold, relativeThreshold float64, observers []EdgeRemovalObserver) *HiddenECRemover {
	return &HiddenECRemover{
		g:                      g,
		cov:                    cov,
		flanking:               flanking,
		uniquenessLength:       uniquenessLength,
		unreliabilityThreshold: unreliabilityThreshold,
		relativeThreshold:      relativeThreshold,
		observers:              observers,
	}
}

// Process removes every hidden erroneous connection.
func (her *HiddenECRemover) Process() bool {
	changed := false
	g := her.g
	it := g.SmartVertices()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		if !g.HasVertex(v) || g.OutDegree(v) != 2 {
			continue
		}
		if !uniqueLongIncoming(g, v, her.uniquenessLength) {
			continue
		}
		out := g.OutgoingEdges(v)
		c0 := her.flanking.LocalCoverage(out[0], v)
		c1 := her.flanking.LocalCoverage(out[1], v)
		weak, weakCov, strongCov := out[0], c0, c1
		if c1 < c0 {
			weak, weakCov, strongCov = out[1], c1, c0
		}
		if weakCov > her.unreliabilityThreshold {
			continue
		}
		if weakCov*her.relativeThreshold > strongCov {
			continue
		}
		removeEdgeAndCompress(g, weak, her.observers)
		changed = true
	}
	return changed
}
