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
	"io"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/exascience/elassemble/fastq"
	"github.com/exascience/elassemble/internal"
)

// prepareTable runs counting, clustering, seeding, and expansion over
// the given reads.
func prepareTable(t *testing.T, ctx *Context, seqs [][]byte) *KMerTable {
	table := buildTable(t, ctx, seqs)
	ctx.ClusterKMers(table)
	ctx.SeedSolidKMers(table)
	ctx.IterativeExpansion(table)
	return table
}

// TestCorrectRead is the end-to-end correction scenario: four
// identical reads plus one copy with a single error. The erroneous
// read is rewritten to the consensus; the clean reads pass unchanged.
func TestCorrectRead(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(11))
	good := randomSeq(rnd, 50)
	bad := append([]byte(nil), good...)
	bad[20] = mutate(bad[20])

	table := prepareTable(t, ctx, [][]byte{good, good, good, good, bad})

	var v voteMatrix
	r := &fastq.Read{Seq: append([]byte(nil), bad...), Qual: constQual(50, 35)}
	r.Qual[20] = 10
	changed, ok := ctx.CorrectRead(table, &v, r)
	if !ok {
		t.Fatal("correction of a 1-error read failed")
	}
	if changed != 1 {
		t.Errorf("changed base count failed: %v instead of 1", changed)
	}
	if !bytes.Equal(r.Seq, good) {
		t.Error("corrected sequence does not match the consensus")
	}

	r = &fastq.Read{Seq: append([]byte(nil), good...), Qual: constQual(50, 35)}
	changed, ok = ctx.CorrectRead(table, &v, r)
	if !ok || changed != 0 {
		t.Error("correction of a clean read failed")
	}
	if !bytes.Equal(r.Seq, good) {
		t.Error("clean read mutated by correction")
	}
}

func TestCorrectReadExactK(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(12))
	seq := randomSeq(rnd, K)
	table := prepareTable(t, ctx, [][]byte{seq, seq, seq, seq})

	var v voteMatrix
	r := &fastq.Read{Seq: append([]byte(nil), seq...), Qual: constQual(K, 35)}
	if _, ok := ctx.CorrectRead(table, &v, r); !ok {
		t.Error("read of length exactly K not corrected")
	}
	if !bytes.Equal(r.Seq, seq) {
		t.Error("read of length exactly K mutated")
	}

	// an unrelated read of length K has no solid k-mer and is bad
	other := randomSeq(rnd, K)
	r = &fastq.Read{Seq: other, Qual: constQual(K, 35)}
	if _, ok := ctx.CorrectRead(table, &v, r); ok {
		t.Error("unrelated read of length K should be classified bad")
	}
}

// TestIterativeExpansion checks the solid set fixpoint: the junction
// k-mers of a read bridging two well-covered fragments are promoted
// once the read is fully covered, and a second step changes nothing.
func TestIterativeExpansion(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(13))
	left := randomSeq(rnd, 50)
	right := randomSeq(rnd, 50)
	bridge := append(append([]byte(nil), left...), right...)

	seqs := [][]byte{left, left, left, left, right, right, right, right, bridge}
	table := buildTable(t, ctx, seqs)
	ctx.ClusterKMers(table)
	ctx.SeedSolidKMers(table)

	promoted := ctx.IterativeExpansionStep(table)
	if promoted == 0 {
		t.Error("expansion promoted no junction k-mers")
	}
	if !ctx.Blob.Reads[8].Done() {
		t.Error("fully covered read not marked done")
	}
	if again := ctx.IterativeExpansionStep(table); again != 0 {
		t.Errorf("expansion fixpoint failed: %v promotions on second step", again)
	}

	// every junction window is solid now
	for pos := 0; pos+K <= len(bridge); pos++ {
		idx, found := table.Lookup(bridge[pos : pos+K])
		if !found {
			t.Fatal("bridge k-mer missing from table")
		}
		if !table.KMers[idx].Stat.GoodIter() {
			t.Error("bridge k-mer not solid after expansion")
		}
	}
}

func countRecords(t *testing.T, name string) int {
	in, err := fastq.Open(name, 33, 12)
	if err != nil {
		t.Fatal(err)
	}
	defer internal.Close(in)
	count := 0
	var r fastq.Read
	for {
		err := in.ReadRecord(&r)
		if err == io.EOF {
			return count
		}
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
}

// TestCorrectPairedReadFiles is the paired routing scenario: the left
// mate is correctable, the right mate is not, so the left goes to the
// unpaired stream, the right to its bad stream, and the paired
// corrected outputs stay empty.
func TestCorrectPairedReadFiles(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(14))
	good := randomSeq(rnd, 50)
	junk := randomSeq(rnd, 50)
	table := prepareTable(t, ctx, [][]byte{good, good, good, good})

	dir := t.TempDir()
	write := func(name string, seq []byte) string {
		path := filepath.Join(dir, name)
		out, err := fastq.Create(path, ctx.QVOffset, ctx.FileBufferExp)
		if err != nil {
			t.Fatal(err)
		}
		if err := out.WriteRecord(&fastq.Read{Name: []byte("r"), Seq: seq, Qual: constQual(len(seq), 35)}); err != nil {
			t.Fatal(err)
		}
		internal.Close(out)
		return path
	}
	left := write("left.fastq", good)
	right := write("right.fastq", junk)

	create := func(name string) *fastq.OutputFile {
		f, err := fastq.Create(filepath.Join(dir, name), ctx.QVOffset, ctx.FileBufferExp)
		if err != nil {
			t.Fatal(err)
		}
		return f
	}
	corL, badL := create("cor_l.fastq"), create("bad_l.fastq")
	corR, badR := create("cor_r.fastq"), create("bad_r.fastq")
	unpaired := create("unpaired.fastq")

	var stats CorrectionStats
	ctx.CorrectPairedReadFiles(table, left, right, corL, badL, corR, badR, unpaired, &stats)
	for _, f := range []*fastq.OutputFile{corL, badL, corR, badR, unpaired} {
		internal.Close(f)
	}

	if n := countRecords(t, filepath.Join(dir, "unpaired.fastq")); n != 1 {
		t.Errorf("unpaired stream failed: %v records instead of 1", n)
	}
	if n := countRecords(t, filepath.Join(dir, "bad_r.fastq")); n != 1 {
		t.Errorf("bad right stream failed: %v records instead of 1", n)
	}
	if countRecords(t, filepath.Join(dir, "cor_l.fastq")) != 0 ||
		countRecords(t, filepath.Join(dir, "cor_r.fastq")) != 0 {
		t.Error("paired corrected streams should stay empty")
	}
	if countRecords(t, filepath.Join(dir, "bad_l.fastq")) != 0 {
		t.Error("bad left stream should stay empty")
	}
}

// TestCorrectReadFile drives the pipeline-based single stream
// correction.
func TestCorrectReadFile(t *testing.T) {
	ctx := testContext(t)
	rnd := rand.New(rand.NewSource(15))
	good := randomSeq(rnd, 50)
	bad := append([]byte(nil), good...)
	bad[10] = mutate(bad[10])
	table := prepareTable(t, ctx, [][]byte{good, good, good, good, bad})

	dir := t.TempDir()
	input := filepath.Join(dir, "input.fastq")
	out, err := fastq.Create(input, ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := out.WriteRecord(&fastq.Read{Name: []byte("g"), Seq: good, Qual: constQual(50, 35)}); err != nil {
			t.Fatal(err)
		}
	}
	qual := constQual(50, 35)
	qual[10] = 10
	if err := out.WriteRecord(&fastq.Read{Name: []byte("b"), Seq: bad, Qual: qual}); err != nil {
		t.Fatal(err)
	}
	internal.Close(out)

	corrected, err := fastq.Create(filepath.Join(dir, "cor.fastq"), ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		t.Fatal(err)
	}
	badOut, err := fastq.Create(filepath.Join(dir, "bad.fastq"), ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		t.Fatal(err)
	}
	var stats CorrectionStats
	ctx.CorrectReadFile(table, input, corrected, badOut, &stats)
	internal.Close(corrected)
	internal.Close(badOut)

	if stats.ChangedReads != 1 {
		t.Errorf("change counter failed: %v instead of 1", stats.ChangedReads)
	}
	if countRecords(t, filepath.Join(dir, "bad.fastq")) != 0 {
		t.Error("bad stream should stay empty")
	}

	in, err := fastq.Open(filepath.Join(dir, "cor.fastq"), ctx.QVOffset, ctx.FileBufferExp)
	if err != nil {
		t.Fatal(err)
	}
	defer internal.Close(in)
	count := 0
	var r fastq.Read
	for {
		err := in.ReadRecord(&r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(r.Seq, good) {
			t.Error("corrected stream contains a non-consensus read")
		}
		count++
	}
	if count != 5 {
		t.Errorf("corrected stream failed: %v records instead of 5", count)
	}
}
