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
	"fmt"

	log "github.com/sirupsen/logrus"
)

type (
	// TipClipperConfig configures tip clipping.
	TipClipperConfig struct {
		Condition string
	}

	// BulgeRemoverConfig configures bulge removal.
	BulgeRemoverConfig struct {
		Enabled                      bool
		MaxBulgeLengthCoefficient    float64
		MaxAdditiveLengthCoefficient float64
		MaxCoverage                  float64
		MaxRelativeCoverage          float64
		MaxDelta                     int
		MaxRelativeDelta             float64
	}

	// ECRemoverConfig configures low-coverage erroneous connection
	// removal.
	ECRemoverConfig struct {
		Condition string
	}

	// RelativeCoverageConfig configures relative coverage component
	// removal.
	RelativeCoverageConfig struct {
		Enabled                bool
		CoverageGap            float64
		MaxECLengthCoefficient float64
		LengthCoefficient      float64
		MaxCoverageCoefficient float64
		VertexCountLimit       int
	}

	// TopologyECConfig configures the topology-based erroneous
	// connection removers.
	TopologyECConfig struct {
		MaxECLengthCoefficient float64
		UniquenessLength       int
		PlausibilityLength     int
	}

	// ReliabilityECConfig configures the topology and reliability
	// based remover.
	ReliabilityECConfig struct {
		MaxECLengthCoefficient float64
		UniquenessLength       int
		UnreliableCoverage     float64
	}

	// InterstrandECConfig configures the thorn remover.
	InterstrandECConfig struct {
		MaxECLengthCoefficient float64
		UniquenessLength       int
		SpanDistance           int
	}

	// MaxFlowECConfig configures the max-flow remover.
	MaxFlowECConfig struct {
		Enabled                bool
		MaxECLengthCoefficient float64
		UniquenessLength       int
		PlausibilityLength     int
	}

	// TopologyTipClipperConfig configures topology-based tip clipping.
	TopologyTipClipperConfig struct {
		LengthCoefficient  float64
		UniquenessLength   int
		PlausibilityLength int
	}

	// ComplexBulgeRemoverConfig configures complex bulge removal.
	ComplexBulgeRemoverConfig struct {
		Enabled             bool
		MaxRelativeLength   float64
		MaxLengthDifference int
	}

	// HiddenECConfig configures hidden erroneous connection removal.
	HiddenECConfig struct {
		Enabled                bool
		UniquenessLength       int
		UnreliabilityThreshold float64
		RelativeThreshold      float64
	}

	// IsolatedEdgeRemoverConfig configures isolated edge removal.
	IsolatedEdgeRemoverConfig struct {
		MaxLength       int
		MaxCoverage     float64
		MaxLengthAnyCov int
	}

	// PresimplificationConfig configures the pre-simplification stage.
	PresimplificationConfig struct {
		Enabled       bool
		Parallel      bool
		ChunkCount    int
		ActivationCov float64
		TipCondition  string
		ECCondition   string
		IER           IsolatedEdgeRemoverConfig
	}

	// A SimplifyConfig collects the configuration of the whole
	// simplification run.
	SimplifyConfig struct {
		Presimp                PresimplificationConfig
		TC                     TipClipperConfig
		BR                     BulgeRemoverConfig
		EC                     ECRemoverConfig
		RCC                    RelativeCoverageConfig
		TEC                    TopologyECConfig
		TREC                   ReliabilityECConfig
		ISEC                   InterstrandECConfig
		MFEC                   MaxFlowECConfig
		TTC                    TopologyTipClipperConfig
		CBR                    ComplexBulgeRemoverConfig
		HER                    HiddenECConfig
		IER                    IsolatedEdgeRemoverConfig
		TopologySimplifEnabled bool
		MainIteration          bool
		GraphReadCorrEnable    bool
		IterationCount         int
	}

	// SimplifInfo carries the measured properties of the data set the
	// thresholds derive from.
	SimplifInfo struct {
		ReadLength            int
		DetectedMeanCoverage  float64
		DetectedCoverageBound float64
		ChunkCount            int
	}
)

// Check validates every condition string in the configuration; an
// unparseable condition is a configuration error surfaced before any
// work runs.
func (cfg *SimplifyConfig) Check() error {
	for name, condition := range map[string]string{
		"tc.condition":          cfg.TC.Condition,
		"ec.condition":          cfg.EC.Condition,
		"presimp.tip_condition": cfg.Presimp.TipCondition,
		"presimp.ec_condition":  cfg.Presimp.ECCondition,
	} {
		if condition == "" {
			return fmt.Errorf("missing condition %v", name)
		}
		if _, err := ParseCondition(condition); err != nil {
			return fmt.Errorf("%v: %v", name, err)
		}
	}
	if cfg.IterationCount <= 0 {
		cfg.IterationCount = 1
	}
	return nil
}

// A Simplifier owns one simplification run: the graph, its coverage
// handlers, the configuration, and the removal observer list.
type Simplifier struct {
	g         *Graph
	cov       *CoverageIndex
	flanking  *FlankingCoverage
	cfg       SimplifyConfig
	info      SimplifInfo
	observers []EdgeRemovalObserver
	counter   *CountingObserver
}

// NewSimplifier prepares a simplification run. The extra observers are
// invoked, in order, after the built-in removal counter.
func NewSimplifier(g *Graph, cov *CoverageIndex, cfg SimplifyConfig, info SimplifInfo, observers ...EdgeRemovalObserver) *Simplifier {
	counter := new(CountingObserver)
	return &Simplifier{
		g:         g,
		cov:       cov,
		flanking:  NewFlankingCoverage(cov),
		cfg:       cfg,
		info:      info,
		observers: append([]EdgeRemovalObserver{counter}, observers...),
		counter:   counter,
	}
}

func (s *Simplifier) maxECLength(coefficient float64) int {
	return MaxErroneousConnectionLength(s.g.K(), coefficient)
}

func (s *Simplifier) projection() ProjectionCallback {
	if !s.cfg.GraphReadCorrEnable {
		return nil
	}
	return func(e EdgeID, path []EdgeID) {
		log.Printf("Projecting edge %v onto a path of %v edges.", e, len(path))
	}
}

// PreSimplification removes the cheap, unambiguous artifacts before
// the main cycles: self-conjugate connections and isolated edges
// always; tips and low-covered connections only when the mean coverage
// was reliably estimated and reaches the activation bound.
func (s *Simplifier) PreSimplification() {
	log.Println("PROCEDURE == Presimplification")
	presimp := &s.cfg.Presimp
	if !presimp.Enabled {
		log.Println("Further presimplification is disabled")
		return
	}

	RemoveSelfConjugateEdges(s.g, s.cov, s.g.K()+100, 1, s.observers)
	s.counter.Report()
	maxLengthAnyCov := presimp.IER.MaxLengthAnyCov
	if s.info.ReadLength > maxLengthAnyCov {
		maxLengthAnyCov = s.info.ReadLength
	}
	RemoveIsolatedEdges(s.g, s.cov, presimp.IER.MaxLength, presimp.IER.MaxCoverage, maxLengthAnyCov, s.observers)
	s.counter.Report()

	if s.info.DetectedMeanCoverage == 0 {
		log.Println("Mean coverage wasn't reliably estimated, no further presimplification")
		return
	}
	if s.info.DetectedMeanCoverage < presimp.ActivationCov {
		log.Printf("Estimated mean coverage %v is less than activation coverage %v, no further presimplification",
			s.info.DetectedMeanCoverage, presimp.ActivationCov)
		return
	}

	if s.enableParallel() {
		log.Println("Parallel mode")
		ParallelClipTips(s.g, s.cov, presimp.TipCondition, presimp.ChunkCount, s.observers)
		s.counter.Report()
		ParallelEC(s.g, s.cov, presimp.ECCondition, presimp.ChunkCount, s.observers)
		s.counter.Report()
	} else {
		log.Println("Non parallel mode")
		ClipTips(s.g, s.cov, presimp.TipCondition, s.observers)
		s.counter.Report()
		RemoveLowCoverageEdges(s.g, s.cov, presimp.ECCondition, s.observers)
		s.counter.Report()
	}
}

// enableParallel decides whether the parallel presimplification path
// may run: it requires the configuration to ask for it and every
// registered handler to declare itself thread-safe. The fallback is
// logged.
func (s *Simplifier) enableParallel() bool {
	presimp := &s.cfg.Presimp
	if !presimp.Parallel {
		return false
	}
	log.Printf("Trying to enable parallel presimplification. Chunk count = %v", presimp.ChunkCount)
	if presimp.ChunkCount <= 0 {
		log.Panicf("presimplification chunk count %v", presimp.ChunkCount)
	}
	if presimp.ChunkCount == 1 {
		return true
	}
	if s.g.AllHandlersThreadSafe() {
		return true
	}
	log.Println("Not all handlers are threadsafe, switching to non-parallel presimplif")
	return false
}

// SimplificationCycle runs one round of the main loop: tip clipping,
// bulge removal, and low-coverage connection removal.
func (s *Simplifier) SimplificationCycle(iteration int) {
	log.Printf("PROCEDURE == Simplification cycle, iteration %v", iteration+1)

	ClipTips(s.g, s.cov, s.cfg.TC.Condition, s.observers)
	s.counter.Report()

	RemoveBulges(s.g, s.cov, s.cfg.BR, s.projection(), s.observers, 0)
	s.counter.Report()

	RemoveLowCoverageEdges(s.g, s.cov, s.cfg.EC.Condition, s.observers)
	s.counter.Report()
}

// allTopology runs the topology-based removers and ORs their change
// reports.
func (s *Simplifier) allTopology() bool {
	changed := NewTopologyChimericEdgeRemover(s.g,
		s.maxECLength(s.cfg.TEC.MaxECLengthCoefficient),
		s.cfg.TEC.UniquenessLength, s.cfg.TEC.PlausibilityLength, s.observers).Process()
	changed = NewTopologyReliabilityEdgeRemover(s.g, s.cov,
		s.maxECLength(s.cfg.TREC.MaxECLengthCoefficient),
		s.cfg.TREC.UniquenessLength, s.cfg.TREC.UnreliableCoverage, s.observers).Process() || changed
	changed = NewThornRemover(s.g,
		s.maxECLength(s.cfg.ISEC.MaxECLengthCoefficient),
		s.cfg.ISEC.UniquenessLength, s.cfg.ISEC.SpanDistance, s.observers).Process() || changed
	changed = NewMultiplicityCountingEdgeRemover(s.g,
		s.maxECLength(s.cfg.TEC.MaxECLengthCoefficient),
		s.cfg.TEC.UniquenessLength, s.cfg.TEC.PlausibilityLength, s.observers).Process() || changed
	return changed
}

// FinalRemoveErroneousEdges runs the heavyweight removers of the
// post-simplification loop.
func (s *Simplifier) FinalRemoveErroneousEdges() bool {
	changed := RemoveRelativelyLowCoverageComponents(s.g, s.flanking, s.cfg.RCC, &s.info, s.observers)
	if s.cfg.TopologySimplifEnabled && s.cfg.MainIteration {
		changed = s.allTopology() || changed
		if s.cfg.MFEC.Enabled {
			log.Println("Removing connections based on max flow strategy")
			changed = NewMaxFlowECRemover(s.g,
				s.maxECLength(s.cfg.MFEC.MaxECLengthCoefficient),
				s.cfg.MFEC.UniquenessLength, s.cfg.MFEC.PlausibilityLength, s.observers).Process() || changed
		}
	}
	return changed
}

// PostSimplification repeats the final algorithm battery until a full
// pass changes nothing, then takes one shot at hidden erroneous
// connections.
func (s *Simplifier) PostSimplification() {
	log.Println("PROCEDURE == Post simplification")
	iteration := 0
	for changed := true; changed; iteration++ {
		changed = false
		log.Printf("Iteration %v", iteration)

		if s.cfg.TopologySimplifEnabled {
			changed = NewTopologyTipClipper(s.g,
				MaxTipLength(s.info.ReadLength, s.g.K(), s.cfg.TTC.LengthCoefficient),
				s.cfg.TTC.UniquenessLength, s.cfg.TTC.PlausibilityLength, s.observers).Process() || changed
		}

		changed = s.FinalRemoveErroneousEdges() || changed

		changed = ClipTips(s.g, s.cov, s.cfg.TC.Condition, s.observers) || changed

		changed = RemoveBulges(s.g, s.cov, s.cfg.BR, s.projection(), s.observers, 0) || changed

		changed = RemoveComplexBulges(s.g, s.cov, s.cfg.CBR, s.observers) || changed

		s.counter.Report()
	}

	if s.cfg.TopologySimplifEnabled && s.cfg.HER.Enabled {
		log.Println("Removing hidden erroneous connections")
		NewHiddenECRemover(s.g, s.cov, s.flanking, s.cfg.HER.UniquenessLength,
			s.cfg.HER.UnreliabilityThreshold*s.info.DetectedCoverageBound,
			s.cfg.HER.RelativeThreshold, s.observers).Process()
		s.counter.Report()
	}
}

// SimplifyGraph drives the full schedule: pre-simplification, the
// fixed number of simplification cycles, and the post-simplification
// fixpoint. The graph leaves in canonical form: no compressible vertex
// remains.
func SimplifyGraph(g *Graph, cov *CoverageIndex, cfg SimplifyConfig, info SimplifInfo, observers ...EdgeRemovalObserver) error {
	if err := cfg.Check(); err != nil {
		return err
	}
	log.Println("Graph simplification started")
	s := NewSimplifier(g, cov, cfg, info, observers...)

	s.PreSimplification()
	for i := 0; i < cfg.IterationCount; i++ {
		s.SimplificationCycle(i)
	}
	s.PostSimplification()

	NewCompressor(g).CompressAllVertices()
	NewCleaner(g).Clean()
	g.CheckConjugateInvariant()
	return nil
}
