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
	"math/rand"
	"testing"
)

func TestParseCondition(t *testing.T) {
	parsed, err := ParseCondition("tip && coverage < 5 && length < 50")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.MaxLengthBound != 50 {
		t.Error("derived length bound failed")
	}
	if parsed.MaxCoverageBound != 5 {
		t.Error("derived coverage bound failed")
	}

	g := New(testK)
	cov := NewCoverageIndex(g)
	rnd := rand.New(rand.NewSource(50))
	tip := g.AddEdge(g.AddVertex(), g.AddVertex(), randomEdgeSeq(rnd, 30))
	cov.SetRawCoverage(tip, 2*30)
	if !parsed.Pred(g, cov, tip) {
		t.Error("condition should accept a short weak tip")
	}
	cov.SetRawCoverage(tip, 100*30)
	if parsed.Pred(g, cov, tip) {
		t.Error("condition should reject a well covered edge")
	}
}

func TestParseConditionBoundsDefaults(t *testing.T) {
	parsed, err := ParseCondition("tip")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.MaxLengthBound != math.MaxInt32 {
		t.Error("default length bound failed")
	}
	if !math.IsInf(parsed.MaxCoverageBound, 1) {
		t.Error("default coverage bound failed")
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"coverage > 5",
		"length < x",
		"bogus",
		"tip && ",
	} {
		if _, err := ParseCondition(s); err == nil {
			t.Errorf("condition %q should not parse", s)
		}
	}
}

func TestThresholdFinders(t *testing.T) {
	if MaxBulgeLength(55, 3, 100) != 265 {
		t.Error("MaxBulgeLength failed")
	}
	if MaxErroneousConnectionLength(55, 30) != 1650 {
		t.Error("MaxErroneousConnectionLength failed")
	}
	if MaxTipLength(100, 55, 3.5) != 350 {
		t.Error("MaxTipLength failed")
	}
	if MaxTipLength(1, 55, 0.1) != 57 {
		t.Error("MaxTipLength lower bound failed")
	}
}
