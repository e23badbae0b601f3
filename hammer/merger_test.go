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
	"math/rand"
	"reflect"
	"testing"

	"github.com/exascience/elassemble/fastq"
)

func testContext(t *testing.T) *Context {
	cfg := Config{
		Tau:               1,
		NumFiles:          4,
		SplitBuffer:       512,
		MergeNumThreads:   2,
		QVOffset:          33,
		TrimQuality:       2,
		CorrectNumThreads: 2,
		ReadBuffer:        64,
		FileBufferExp:     12,
		GoodThreshold:     2,
		MaxIterations:     1,
		WorkingDir:        t.TempDir(),
		InputFiles:        []string{"unused.fastq"},
	}
	if err := cfg.Check(); err != nil {
		t.Fatal(err)
	}
	return &Context{Config: cfg}
}

// buildTable fills a blob with the given reads (constant quality 35)
// and runs the split/merge counter.
func buildTable(t *testing.T, ctx *Context, seqs [][]byte) *KMerTable {
	ctx.Blob = NewBlob(false)
	for _, seq := range seqs {
		ctx.Blob.AppendRead(seq, constQual(len(seq), 35))
	}
	ctx.Blob.AppendReverseComplements()
	ctx.InitSubKMerPositions()
	return ctx.CountKMersBySplitAndMerge()
}

func TestSplitAndMergeCounts(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(5))
	var seqs [][]byte
	for i := 0; i < 200; i++ {
		seqs = append(seqs, randomSeq(rnd, 30))
	}
	table := buildTable(t, ctx, seqs)

	// ground truth multiset over both strands
	expected := make(map[string]uint32)
	var total uint32
	for _, seq := range seqs {
		for _, s := range [][]byte{seq, reverseComplement(seq)} {
			for pos := 0; pos+K <= len(s); pos++ {
				expected[string(s[pos:pos+K])]++
				total++
			}
		}
	}

	if len(table.KMers) != len(expected) {
		t.Errorf("distinct k-mer count failed: %v instead of %v", len(table.KMers), len(expected))
	}
	var sum uint32
	for i := range table.KMers {
		kmer := table.Blob.KMerBytes(table.KMers[i].Pos)
		if table.KMers[i].Stat.Count != expected[string(kmer)] {
			t.Error("per k-mer count failed")
		}
		sum += table.KMers[i].Stat.Count
		if i > 0 && bytes.Compare(table.Blob.KMerBytes(table.KMers[i-1].Pos), kmer) >= 0 {
			t.Error("merged table ordering failed")
		}
	}
	if sum != total {
		t.Errorf("total k-mer occurrence count failed: %v instead of %v", sum, total)
	}
}

func reverseComplement(seq []byte) []byte {
	rc := make([]byte, len(seq))
	for i := range seq {
		rc[len(seq)-1-i] = fastq.Complement(seq[i])
	}
	return rc
}

func TestKMerTableLookup(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(6))
	seq := randomSeq(rnd, 60)
	table := buildTable(t, ctx, [][]byte{seq})
	for pos := 0; pos+K <= len(seq); pos++ {
		idx, found := table.Lookup(seq[pos : pos+K])
		if !found {
			t.Fatal("lookup of a stored k-mer failed")
		}
		if !bytes.Equal(table.Blob.KMerBytes(table.KMers[idx].Pos), seq[pos:pos+K]) {
			t.Error("lookup returned the wrong k-mer")
		}
	}
	if _, found := table.Lookup(bytes.Repeat([]byte{'A'}, K)); found {
		// the odds of a poly-A k-mer in 60 random bases are negligible
		t.Error("lookup of an absent k-mer failed")
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(7))
	table := buildTable(t, ctx, [][]byte{randomSeq(rnd, 50), randomSeq(rnd, 50)})

	name := ctx.filename("kmers.test.ser")
	ctx.SerializeKMerTable(table, name)
	restored := ctx.DeserializeKMerTable(ctx.Blob, name)
	if !reflect.DeepEqual(table.KMers, restored.KMers) {
		t.Error("k-mer table serialization round trip failed")
	}
	if !reflect.DeepEqual(table.Nos, restored.Nos) {
		t.Error("k-mer numbers round trip failed")
	}

	nosName := ctx.filename("kmers.nos.test.ser")
	ctx.SerializeKMerNos(table.Nos, nosName)
	if !reflect.DeepEqual(table.Nos, ctx.DeserializeKMerNos(nosName)) {
		t.Error("k-mer numbers serialization round trip failed")
	}
}
