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

package fastq

// A Read is a single FASTQ record. Seq holds upper-case nucleotides,
// Qual holds Phred quality values with the encoding offset already
// removed.
type Read struct {
	Name []byte
	Seq  []byte
	Qual []byte
}

var complementTable = func() (table [256]byte) {
	for i := range table {
		table[i] = 'N'
	}
	table['A'] = 'T'
	table['C'] = 'G'
	table['G'] = 'C'
	table['T'] = 'A'
	return
}()

// Complement returns the complementary nucleotide, mapping any
// ambiguous base to N.
func Complement(base byte) byte {
	return complementTable[base]
}

// IsNucl tells whether base is one of ACGT.
func IsNucl(base byte) bool {
	switch base {
	case 'A', 'C', 'G', 'T':
		return true
	default:
		return false
	}
}

// Nucl maps the numeric codes 0-3 to ACGT.
func Nucl(code int) byte {
	return "ACGT"[code]
}

// NuclIndex maps ACGT to 0-3, and any other byte to -1.
func NuclIndex(base byte) int {
	switch base {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	default:
		return -1
	}
}

// ReverseComplement reverses the read in place and complements every
// base, keeping qualities aligned with their bases.
func (r *Read) ReverseComplement() {
	seq, qual := r.Seq, r.Qual
	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = complementTable[seq[j]], complementTable[seq[i]]
	}
	if len(seq)&1 == 1 {
		mid := len(seq) / 2
		seq[mid] = complementTable[seq[mid]]
	}
	for i, j := 0, len(qual)-1; i < j; i, j = i+1, j-1 {
		qual[i], qual[j] = qual[j], qual[i]
	}
}

// TrimBadQuality trims leading and trailing ambiguous bases, then
// trailing bases whose quality is below the given Phred threshold. It
// returns the remaining read length.
func (r *Read) TrimBadQuality(threshold int) int {
	seq, qual := r.Seq, r.Qual
	left := 0
	for left < len(seq) && !IsNucl(seq[left]) {
		left++
	}
	right := len(seq)
	for right > left && !IsNucl(seq[right-1]) {
		right--
	}
	if len(qual) >= right {
		for right > left && int(qual[right-1]) < threshold {
			right--
		}
	}
	r.Seq = seq[left:right]
	if len(qual) >= right {
		r.Qual = qual[left:right]
	}
	// interior Ns end the read at the first ambiguous base
	for i, base := range r.Seq {
		if !IsNucl(base) {
			r.Seq = r.Seq[:i]
			if len(r.Qual) >= i {
				r.Qual = r.Qual[:i]
			}
			break
		}
	}
	return len(r.Seq)
}

// Clone returns a deep copy of the read.
func (r *Read) Clone() *Read {
	return &Read{
		Name: append([]byte(nil), r.Name...),
		Seq:  append([]byte(nil), r.Seq...),
		Qual: append([]byte(nil), r.Qual...),
	}
}
