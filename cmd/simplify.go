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

package cmd

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/graph"
)

// SimplifyHelp is the help string for the elassemble simplify command.
const SimplifyHelp = "\nsimplify parameters:\n" +
	"elassemble simplify graph-file output-file\n" +
	"[--read-length nr]\n" +
	"[--mean-coverage nr]\n" +
	"[--coverage-bound nr]\n" +
	"[--iteration-count nr]\n" +
	"[--tip-condition cond]\n" +
	"[--ec-condition cond]\n" +
	"[--presimp-tip-condition cond]\n" +
	"[--presimp-ec-condition cond]\n" +
	"[--presimp-activation-cov nr]\n" +
	"[--no-presimp]\n" +
	"[--parallel-presimp]\n" +
	"[--chunk-count nr]\n" +
	"[--topology-simplification]\n" +
	"[--nr-of-threads nr]\n" +
	"[--log-path path]\n"

// defaultSimplifyConfig mirrors the configuration the assembler uses
// for a standard isolate data set.
func defaultSimplifyConfig() graph.SimplifyConfig {
	return graph.SimplifyConfig{
		Presimp: graph.PresimplificationConfig{
			Enabled:       true,
			Parallel:      false,
			ChunkCount:    runtime.GOMAXPROCS(0),
			ActivationCov: 10,
			TipCondition:  "tip && length < 50 && coverage < 2",
			ECCondition:   "length < 30 && coverage < 1.2",
			IER: graph.IsolatedEdgeRemoverConfig{
				MaxLength:       50,
				MaxCoverage:     2,
				MaxLengthAnyCov: 150,
			},
		},
		TC: graph.TipClipperConfig{Condition: "tip && length < 100 && coverage < 10"},
		BR: graph.BulgeRemoverConfig{
			Enabled:                      true,
			MaxBulgeLengthCoefficient:    3,
			MaxAdditiveLengthCoefficient: 100,
			MaxCoverage:                  1000,
			MaxRelativeCoverage:          1.1,
			MaxDelta:                     3,
			MaxRelativeDelta:             0.1,
		},
		EC: graph.ECRemoverConfig{Condition: "length < 60 && coverage < 4"},
		RCC: graph.RelativeCoverageConfig{
			Enabled:                true,
			CoverageGap:            20,
			MaxECLengthCoefficient: 30,
			LengthCoefficient:      2,
			MaxCoverageCoefficient: 5,
			VertexCountLimit:       30,
		},
		TEC: graph.TopologyECConfig{
			MaxECLengthCoefficient: 55,
			UniquenessLength:       1500,
			PlausibilityLength:     200,
		},
		TREC: graph.ReliabilityECConfig{
			MaxECLengthCoefficient: 100,
			UniquenessLength:       1500,
			UnreliableCoverage:     2.5,
		},
		ISEC: graph.InterstrandECConfig{
			MaxECLengthCoefficient: 100,
			UniquenessLength:       1500,
			SpanDistance:           15000,
		},
		MFEC: graph.MaxFlowECConfig{
			Enabled:                false,
			MaxECLengthCoefficient: 30,
			UniquenessLength:       1500,
			PlausibilityLength:     200,
		},
		TTC: graph.TopologyTipClipperConfig{
			LengthCoefficient:  3.5,
			UniquenessLength:   1500,
			PlausibilityLength: 250,
		},
		CBR: graph.ComplexBulgeRemoverConfig{
			Enabled:             true,
			MaxRelativeLength:   5,
			MaxLengthDifference: 5,
		},
		HER: graph.HiddenECConfig{
			Enabled:                true,
			UniquenessLength:       1500,
			UnreliabilityThreshold: 0.2,
			RelativeThreshold:      5,
		},
		IER: graph.IsolatedEdgeRemoverConfig{
			MaxLength:       50,
			MaxCoverage:     2,
			MaxLengthAnyCov: 150,
		},
		TopologySimplifEnabled: false,
		MainIteration:          true,
		GraphReadCorrEnable:    false,
		IterationCount:         10,
	}
}

// Simplify implements the elassemble simplify command.
func Simplify() error {
	cfg := defaultSimplifyConfig()
	var info graph.SimplifInfo
	var noPresimp bool
	var nrOfThreads int
	var logPath string

	var flags flag.FlagSet

	flags.IntVar(&info.ReadLength, "read-length", 100, "read length of the data set")
	flags.Float64Var(&info.DetectedMeanCoverage, "mean-coverage", 0, "estimated mean coverage, 0 to estimate it from the graph")
	flags.Float64Var(&info.DetectedCoverageBound, "coverage-bound", 0, "detected erroneous coverage bound")
	flags.IntVar(&cfg.IterationCount, "iteration-count", cfg.IterationCount, "number of simplification cycles")
	flags.StringVar(&cfg.TC.Condition, "tip-condition", cfg.TC.Condition, "tip clipping condition")
	flags.StringVar(&cfg.EC.Condition, "ec-condition", cfg.EC.Condition, "erroneous connection condition")
	flags.StringVar(&cfg.Presimp.TipCondition, "presimp-tip-condition", cfg.Presimp.TipCondition, "presimplification tip condition")
	flags.StringVar(&cfg.Presimp.ECCondition, "presimp-ec-condition", cfg.Presimp.ECCondition, "presimplification erroneous connection condition")
	flags.Float64Var(&cfg.Presimp.ActivationCov, "presimp-activation-cov", cfg.Presimp.ActivationCov, "presimplification activation coverage")
	flags.BoolVar(&noPresimp, "no-presimp", false, "disable presimplification")
	flags.BoolVar(&cfg.Presimp.Parallel, "parallel-presimp", false, "enable parallel presimplification")
	flags.IntVar(&cfg.Presimp.ChunkCount, "chunk-count", cfg.Presimp.ChunkCount, "chunk count for parallel algorithms")
	flags.BoolVar(&cfg.TopologySimplifEnabled, "topology-simplification", false, "enable topology-based simplification")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.StringVar(&logPath, "log-path", "", "path for the log file")

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, SimplifyHelp)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], SimplifyHelp)
	output := getFilename(os.Args[3], SimplifyHelp)

	parseFlags(flags, 4, SimplifyHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}
	cfg.Presimp.Enabled = !noPresimp
	if err := cfg.Check(); err != nil {
		sanityChecksFailed = true
		log.Println("Error: ", err)
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, SimplifyHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}
	info.ChunkCount = cfg.Presimp.ChunkCount

	var err error
	timedRun("Simplifying assembly graph.", func() {
		g, cov := graph.ReadGraph(input)
		log.Printf("Graph loaded: %v vertices, %v edges.", g.NumVertices(), g.NumEdges())
		if info.DetectedMeanCoverage == 0 {
			info.DetectedMeanCoverage = cov.MeanCoverage()
			log.Printf("Estimated mean coverage: %v", info.DetectedMeanCoverage)
		}
		if info.DetectedCoverageBound == 0 {
			info.DetectedCoverageBound = info.DetectedMeanCoverage
		}
		err = graph.SimplifyGraph(g, cov, cfg, info)
		if err != nil {
			return
		}
		log.Printf("Graph simplified: %v vertices, %v edges.", g.NumVertices(), g.NumEdges())
		graph.WriteGraph(g, cov, output)
	})
	return err
}
