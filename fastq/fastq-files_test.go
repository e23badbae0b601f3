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

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
)

func TestReverseComplement(t *testing.T) {
	r := &Read{Seq: []byte("AACGT"), Qual: []byte{1, 2, 3, 4, 5}}
	r.ReverseComplement()
	if !bytes.Equal(r.Seq, []byte("ACGTT")) {
		t.Error("ReverseComplement seq failed")
	}
	if !bytes.Equal(r.Qual, []byte{5, 4, 3, 2, 1}) {
		t.Error("ReverseComplement qual failed")
	}
	r.ReverseComplement()
	if !bytes.Equal(r.Seq, []byte("AACGT")) {
		t.Error("ReverseComplement involution failed")
	}
}

func TestTrimBadQuality(t *testing.T) {
	r := &Read{
		Seq:  []byte("NNACGTACGTNN"),
		Qual: []byte{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30},
	}
	if r.TrimBadQuality(2) != 8 {
		t.Error("TrimBadQuality N trimming failed")
	}
	if !bytes.Equal(r.Seq, []byte("ACGTACGT")) {
		t.Error("TrimBadQuality N trimming seq failed")
	}

	r = &Read{
		Seq:  []byte("ACGTACGT"),
		Qual: []byte{30, 30, 30, 30, 30, 30, 1, 1},
	}
	if r.TrimBadQuality(2) != 6 {
		t.Error("TrimBadQuality tail trimming failed")
	}

	r = &Read{
		Seq:  []byte("ACGTNACGT"),
		Qual: []byte{30, 30, 30, 30, 30, 30, 30, 30, 30},
	}
	if r.TrimBadQuality(2) != 4 {
		t.Error("TrimBadQuality interior N failed")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	for _, name := range []string{"reads.fastq", "reads.fastq.gz"} {
		path := filepath.Join(t.TempDir(), name)
		out, err := Create(path, 33, 12)
		if err != nil {
			t.Fatal(err)
		}
		records := []*Read{
			{Name: []byte("read1"), Seq: []byte("ACGTACGT"), Qual: []byte{30, 31, 32, 33, 34, 35, 36, 37}},
			{Name: []byte("read2"), Seq: []byte("TTTTACGT"), Qual: []byte{2, 2, 2, 2, 40, 40, 40, 40}},
		}
		for _, r := range records {
			if err := out.WriteRecord(r); err != nil {
				t.Fatal(err)
			}
		}
		if err := out.Close(); err != nil {
			t.Fatal(err)
		}

		in, err := Open(path, 33, 12)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range records {
			var got Read
			if err := in.ReadRecord(&got); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got.Name, want.Name) || !bytes.Equal(got.Seq, want.Seq) || !bytes.Equal(got.Qual, want.Qual) {
				t.Errorf("record round trip failed for %v in %v", string(want.Name), name)
			}
		}
		var extra Read
		if err := in.ReadRecord(&extra); err != io.EOF {
			t.Error("expected EOF after last record")
		}
		if err := in.Close(); err != nil {
			t.Fatal(err)
		}
	}
}
