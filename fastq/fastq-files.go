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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
)

// GzExt is the filename extension that triggers transparent
// (de)compression.
const GzExt = ".gz"

// An InputFile represents a FASTQ file for input. Compressed files are
// decompressed transparently based on the filename extension.
type InputFile struct {
	rc       io.ReadCloser
	gz       *pgzip.Reader
	buf      *bufio.Reader
	qvOffset byte

	// pipeline.Source state
	batch []*Read
	err   error
}

// An OutputFile represents a FASTQ file for output.
type OutputFile struct {
	wc       io.WriteCloser
	gz       *pgzip.Writer
	buf      *bufio.Writer
	qvOffset byte
}

// Open opens a FASTQ file for input. qvOffset is subtracted from every
// quality byte; bufExp is the log2 of the read buffer size.
func Open(name string, qvOffset, bufExp int) (*InputFile, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	f := &InputFile{rc: file, qvOffset: byte(qvOffset)}
	if filepath.Ext(name) == GzExt {
		gz, err := pgzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("%v, while opening %v", err, name)
		}
		f.gz = gz
		f.buf = bufio.NewReaderSize(gz, 1<<bufExp)
	} else {
		f.buf = bufio.NewReaderSize(file, 1<<bufExp)
	}
	return f, nil
}

// Create creates a FASTQ file for output. qvOffset is added to every
// quality value on output.
func Create(name string, qvOffset, bufExp int) (*OutputFile, error) {
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	f := &OutputFile{wc: file, qvOffset: byte(qvOffset)}
	if filepath.Ext(name) == GzExt {
		f.gz = pgzip.NewWriter(file)
		f.buf = bufio.NewWriterSize(f.gz, 1<<bufExp)
	} else {
		f.buf = bufio.NewWriterSize(file, 1<<bufExp)
	}
	return f, nil
}

// Close closes a FASTQ input file.
func (f *InputFile) Close() error {
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			_ = f.rc.Close()
			return err
		}
	}
	return f.rc.Close()
}

// Close flushes and closes a FASTQ output file.
func (f *OutputFile) Close() error {
	if err := f.buf.Flush(); err != nil {
		_ = f.wc.Close()
		return err
	}
	if f.gz != nil {
		if err := f.gz.Close(); err != nil {
			_ = f.wc.Close()
			return err
		}
	}
	return f.wc.Close()
}

func chomp(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}

// ReadRecord parses the next 4-line FASTQ record into r. It returns
// io.EOF at the end of the file, and an error for malformed records.
func (f *InputFile) ReadRecord(r *Read) error {
	name, err := f.buf.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(chomp(name)) == 0 {
			return io.EOF
		}
		return err
	}
	name = chomp(name)
	if len(name) == 0 || name[0] != '@' {
		return fmt.Errorf("malformed FASTQ record: name line %q", name)
	}
	seq, err := f.buf.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	plus, err := f.buf.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if plus = chomp(plus); len(plus) == 0 || plus[0] != '+' {
		return fmt.Errorf("malformed FASTQ record %s: separator line %q", name[1:], plus)
	}
	qual, err := f.buf.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	r.Name = append(r.Name[:0], name[1:]...)
	r.Seq = append(r.Seq[:0], chomp(seq)...)
	qual = chomp(qual)
	if len(qual) != len(r.Seq) {
		return fmt.Errorf("malformed FASTQ record %s: %d quality values for %d bases", r.Name, len(qual), len(r.Seq))
	}
	r.Qual = r.Qual[:0]
	for _, q := range qual {
		if q < f.qvOffset {
			return fmt.Errorf("malformed FASTQ record %s: quality value below offset %d", r.Name, f.qvOffset)
		}
		r.Qual = append(r.Qual, q-f.qvOffset)
	}
	return nil
}

// WriteRecord writes a 4-line FASTQ record, re-encoding qualities with
// the configured offset.
func (f *OutputFile) WriteRecord(r *Read) error {
	if err := f.buf.WriteByte('@'); err != nil {
		return err
	}
	if _, err := f.buf.Write(r.Name); err != nil {
		return err
	}
	if err := f.buf.WriteByte('\n'); err != nil {
		return err
	}
	if _, err := f.buf.Write(r.Seq); err != nil {
		return err
	}
	if _, err := f.buf.WriteString("\n+\n"); err != nil {
		return err
	}
	for _, q := range r.Qual {
		if err := f.buf.WriteByte(q + f.qvOffset); err != nil {
			return err
		}
	}
	return f.buf.WriteByte('\n')
}

const sourceBatchSize = 4096

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	if f.err == io.EOF {
		return nil
	}
	return f.err
}

// Prepare implements the method of the pipeline.Source interface.
func (f *InputFile) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) int {
	if f.err != nil {
		return 0
	}
	if size <= 0 || size > sourceBatchSize {
		size = sourceBatchSize
	}
	batch := make([]*Read, 0, size)
	for len(batch) < size {
		r := new(Read)
		if err := f.ReadRecord(r); err != nil {
			f.err = err
			break
		}
		batch = append(batch, r)
	}
	f.batch = batch
	return len(batch)
}

// Data implements the method of the pipeline.Source interface.
func (f *InputFile) Data() interface{} {
	batch := f.batch
	f.batch = nil
	return batch
}
