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
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/fastq"
)

// A BlobPos is a byte offset into the blob. K-mers are identified by
// their blob offset; a BlobPos must never outlive the blob it indexes.
type BlobPos uint64

// A PositionRead locates one stored read in the blob.
type PositionRead struct {
	Start BlobPos
	Size  uint32
	ID    uint64
	done  uint32
}

// Done tells whether the read has been fully covered by solid k-mers
// during iterative expansion.
func (pr *PositionRead) Done() bool {
	return atomic.LoadUint32(&pr.done) != 0
}

func (pr *PositionRead) markDone() {
	atomic.StoreUint32(&pr.done, 1)
}

// A Blob is an append-only byte arena holding all read sequences, and
// optionally their qualities. Reads are stored twice, forward then
// reverse-complement, so a single k-mer scan yields both strands.
// Building is single-threaded; after the build the blob is immutable
// for the rest of the iteration and may be freely shared.
type Blob struct {
	B     []byte
	Q     []byte // nil when a common quality constant is used
	Reads []PositionRead
	RevNo uint64
}

// NewBlob returns an empty blob. When commonQuality is true, per-base
// qualities are not stored.
func NewBlob(commonQuality bool) *Blob {
	b := new(Blob)
	if commonQuality {
		b.Q = nil
	} else {
		b.Q = []byte{}
	}
	return b
}

// AppendRead stores a trimmed read in the blob and returns its id.
// The read must be at least K bases long.
func (b *Blob) AppendRead(seq, qual []byte) uint64 {
	if len(seq) < K {
		log.Panicf("blob: read of length %v is shorter than K=%v", len(seq), K)
	}
	id := uint64(len(b.Reads))
	b.Reads = append(b.Reads, PositionRead{
		Start: BlobPos(len(b.B)),
		Size:  uint32(len(seq)),
		ID:    id,
	})
	b.B = append(b.B, seq...)
	if b.Q != nil {
		b.Q = append(b.Q, qual...)
	}
	return id
}

// AppendReverseComplements duplicates all reads stored so far as their
// reverse complements and records the boundary in RevNo.
func (b *Blob) AppendReverseComplements() {
	b.RevNo = uint64(len(b.Reads))
	for i := uint64(0); i < b.RevNo; i++ {
		pr := b.Reads[i]
		seq := append([]byte(nil), b.ReadSeq(&pr)...)
		var qual []byte
		if b.Q != nil {
			qual = append([]byte(nil), b.ReadQual(&pr)...)
		}
		r := fastq.Read{Seq: seq, Qual: qual}
		r.ReverseComplement()
		b.AppendRead(r.Seq, r.Qual)
	}
}

// KMerBytes returns the K bytes at the given blob offset.
func (b *Blob) KMerBytes(pos BlobPos) []byte {
	if uint64(pos)+K > uint64(len(b.B)) {
		log.Panicf("blob: k-mer offset %v out of range %v", pos, len(b.B))
	}
	return b.B[pos : pos+K]
}

// ReadSeq returns the sequence bytes of a stored read.
func (b *Blob) ReadSeq(pr *PositionRead) []byte {
	return b.B[pr.Start : pr.Start+BlobPos(pr.Size)]
}

// ReadQual returns the quality bytes of a stored read, or nil when a
// common quality constant is used.
func (b *Blob) ReadQual(pr *PositionRead) []byte {
	if b.Q == nil {
		return nil
	}
	return b.Q[pr.Start : pr.Start+BlobPos(pr.Size)]
}
