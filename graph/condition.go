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
	"math"
	"strconv"
	"strings"
)

// A Condition is a predicate on edges, evaluated against the graph and
// its coverage index.
type Condition func(g *Graph, cov *CoverageIndex, e EdgeID) bool

// A ParsedCondition is a compiled condition string together with the
// bounds derived from it. Condition strings are conjunctions of terms
// separated by "&&"; a term is "tip", "length < N", or
// "coverage < X", for example "tip && coverage < 5 && length < 50".
type ParsedCondition struct {
	Pred Condition
	// MaxLengthBound is the largest length bound occurring in the
	// condition, or math.MaxInt32 when lengths are unconstrained.
	MaxLengthBound int
	// MaxCoverageBound is the largest coverage bound occurring in the
	// condition, or +Inf when coverage is unconstrained.
	MaxCoverageBound float64
}

// IsTip tells whether e is a dead-end on one side: its start has no
// other incoming path or its end has no continuation.
func (g *Graph) IsTip(e EdgeID) bool {
	return g.IsDeadStart(g.EdgeStart(e)) || g.IsDeadEnd(g.EdgeEnd(e))
}

// ParseCondition compiles a condition string. Unparseable strings are
// a configuration error, surfaced before any simplification runs.
func ParseCondition(s string) (*ParsedCondition, error) {
	parsed := &ParsedCondition{
		MaxLengthBound:   math.MaxInt32,
		MaxCoverageBound: math.Inf(1),
	}
	var preds []Condition
	lengthBound := -1
	coverageBound := math.Inf(-1)
	for _, term := range strings.Split(s, "&&") {
		fields := strings.Fields(term)
		switch {
		case len(fields) == 1 && fields[0] == "tip":
			preds = append(preds, func(g *Graph, _ *CoverageIndex, e EdgeID) bool {
				return g.IsTip(e)
			})
		case len(fields) == 3 && fields[0] == "length" && fields[1] == "<":
			bound, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("bad length bound in condition %q: %v", s, err)
			}
			if bound > lengthBound {
				lengthBound = bound
			}
			preds = append(preds, func(g *Graph, _ *CoverageIndex, e EdgeID) bool {
				return g.Length(e) < bound
			})
		case len(fields) == 3 && fields[0] == "coverage" && fields[1] == "<":
			bound, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("bad coverage bound in condition %q: %v", s, err)
			}
			if bound > coverageBound {
				coverageBound = bound
			}
			preds = append(preds, func(_ *Graph, cov *CoverageIndex, e EdgeID) bool {
				return cov.Coverage(e) < bound
			})
		case len(fields) == 0:
			return nil, fmt.Errorf("empty term in condition %q", s)
		default:
			return nil, fmt.Errorf("unknown term %q in condition %q", strings.TrimSpace(term), s)
		}
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("empty condition")
	}
	if lengthBound >= 0 {
		parsed.MaxLengthBound = lengthBound
	}
	if !math.IsInf(coverageBound, -1) {
		parsed.MaxCoverageBound = coverageBound
	}
	parsed.Pred = func(g *Graph, cov *CoverageIndex, e EdgeID) bool {
		for _, p := range preds {
			if !p(g, cov, e) {
				return false
			}
		}
		return true
	}
	return parsed, nil
}
