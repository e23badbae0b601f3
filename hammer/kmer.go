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
	"bytes"
	"sort"
	"sync/atomic"
)

// K is the k-mer length. It must be odd so that no k-mer equals its
// own reverse complement.
const K = 21

// NoChange marks a k-mer that is not redirected to a cluster center.
const NoChange = ^uint64(0)

// K-mer status flags.
const (
	// KMerGood marks a k-mer that passed the cluster-center quality
	// threshold.
	KMerGood uint32 = 1 << iota
	// KMerGoodIter marks a solid k-mer, trusted during correction.
	KMerGoodIter
)

// MaxQualSum caps per-position quality sums.
const MaxQualSum = 32767

// A QualSum holds per-position quality sums over all instances of a
// k-mer, capped at MaxQualSum. It is nil when a common quality
// constant is used.
type QualSum []uint16

// A KMerStat aggregates all instances of one distinct k-mer.
type KMerStat struct {
	Count     uint32
	Flags     uint32
	ChangeTo  uint64
	TotalQual float64
	Qual      QualSum
}

// Good tells whether the k-mer passed the cluster-center threshold.
func (s *KMerStat) Good() bool {
	return atomic.LoadUint32(&s.Flags)&KMerGood != 0
}

// GoodIter tells whether the k-mer is solid.
func (s *KMerStat) GoodIter() bool {
	return atomic.LoadUint32(&s.Flags)&KMerGoodIter != 0
}

// MakeGood sets the KMerGood flag.
func (s *KMerStat) MakeGood() {
	for {
		old := atomic.LoadUint32(&s.Flags)
		if old&KMerGood != 0 || atomic.CompareAndSwapUint32(&s.Flags, old, old|KMerGood) {
			return
		}
	}
}

// MakeGoodIter promotes the k-mer to solid. It returns true if the
// flag was newly set, false if the k-mer was already solid.
func (s *KMerStat) MakeGoodIter() bool {
	for {
		old := atomic.LoadUint32(&s.Flags)
		if old&KMerGoodIter != 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&s.Flags, old, old|KMerGoodIter) {
			return true
		}
	}
}

// Change tells whether the k-mer is redirected to a cluster center.
func (s *KMerStat) Change() bool {
	return s.ChangeTo != NoChange
}

// A KMerCount pairs a distinct k-mer, identified by its blob offset,
// with its aggregated statistics.
type KMerCount struct {
	Pos  BlobPos
	Stat KMerStat
}

// A KMerTable is the frozen result of the split/merge counter: all
// distinct k-mers in blob-byte order, plus their offsets. It is built
// on one goroutine and then shared read-only; only the atomic status
// flags may change afterwards.
type KMerTable struct {
	Blob  *Blob
	KMers []KMerCount
	Nos   []BlobPos
}

// Lookup finds the table index of the given k-mer bytes by binary
// search. The second result is false when the k-mer does not occur in
// the table.
func (t *KMerTable) Lookup(kmer []byte) (int, bool) {
	i := sort.Search(len(t.Nos), func(i int) bool {
		return bytes.Compare(t.Blob.KMerBytes(t.Nos[i]), kmer) >= 0
	})
	if i < len(t.Nos) && bytes.Equal(t.Blob.KMerBytes(t.Nos[i]), kmer) {
		return i, true
	}
	return 0, false
}

// HammingDistance returns the Hamming distance between two k-mers,
// stopping early once it exceeds limit (the return value is then
// limit+1).
func HammingDistance(a, b []byte, limit int) int {
	dist := 0
	for i := 0; i < K; i++ {
		if a[i] != b[i] {
			if dist++; dist > limit {
				return dist
			}
		}
	}
	return dist
}
