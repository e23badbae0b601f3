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

package hammer

import (
	"math"

	"github.com/exascience/elassemble/fastq"
)

var errProbTable = func() (table [256]float64) {
	for q := range table {
		table[q] = math.Pow(10, -float64(q)/10)
	}
	return
}()

// ErrorProbability converts a Phred quality value to an error
// probability.
func ErrorProbability(q int) float64 {
	if q < 0 {
		q = 0
	} else if q > 255 {
		q = 255
	}
	return errProbTable[q]
}

// A ValidKMerGenerator yields every length-K window of a read that
// contains no ambiguous base, together with the window's aggregate
// error probability 1 - prod(1 - e_i).
type ValidKMerGenerator struct {
	seq        []byte
	qual       []byte
	commonProb float64
	pos        int
	ok         bool
}

// NewValidKMerGenerator positions a generator at the first valid
// window of seq. qual may be nil, in which case commonQuality is used
// for every base.
func NewValidKMerGenerator(seq, qual []byte, commonQuality int) *ValidKMerGenerator {
	g := &ValidKMerGenerator{
		seq:        seq,
		qual:       qual,
		commonProb: ErrorProbability(commonQuality),
		pos:        -1,
	}
	g.advance(0)
	return g
}

// advance finds the first valid window starting at or after from.
func (g *ValidKMerGenerator) advance(from int) {
	for start := from; start+K <= len(g.seq); start++ {
		valid := true
		for j := start + K - 1; j >= start; j-- {
			if !fastq.IsNucl(g.seq[j]) {
				// restart after the ambiguous base
				start = j
				valid = false
				break
			}
		}
		if valid {
			g.pos = start
			g.ok = true
			return
		}
	}
	g.ok = false
}

// HasMore tells whether the generator is positioned at a valid window.
func (g *ValidKMerGenerator) HasMore() bool {
	return g.ok
}

// Pos returns the start position of the current window.
func (g *ValidKMerGenerator) Pos() int {
	return g.pos
}

// KMer returns the bytes of the current window.
func (g *ValidKMerGenerator) KMer() []byte {
	return g.seq[g.pos : g.pos+K]
}

// ErrProb returns 1 - prod(1 - e_i) over the current window.
func (g *ValidKMerGenerator) ErrProb() float64 {
	correct := 1.0
	for j := g.pos; j < g.pos+K; j++ {
		if g.qual != nil {
			correct *= 1 - ErrorProbability(int(g.qual[j]))
		} else {
			correct *= 1 - g.commonProb
		}
	}
	return 1 - correct
}

// Next moves the generator to the next valid window.
func (g *ValidKMerGenerator) Next() {
	if g.ok {
		g.advance(g.pos + 1)
	}
}
