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
	"bufio"
	"encoding/gob"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/internal"
)

// SerializeKMerTable writes the k-mer vector as a binary gob dump.
func (ctx *Context) SerializeKMerTable(table *KMerTable, name string) {
	f := internal.FileCreate(name)
	defer internal.Close(f)
	buf := bufio.NewWriterSize(f, 1<<ctx.FileBufferExp)
	if err := gob.NewEncoder(buf).Encode(table.KMers); err != nil {
		log.Panic(err)
	}
	if err := buf.Flush(); err != nil {
		log.Panic(err)
	}
}

// DeserializeKMerTable reads back a k-mer vector dump and rebinds it
// to the given blob.
func (ctx *Context) DeserializeKMerTable(blob *Blob, name string) *KMerTable {
	f := internal.FileOpen(name)
	defer internal.Close(f)
	table := &KMerTable{Blob: blob}
	if err := gob.NewDecoder(bufio.NewReaderSize(f, 1<<ctx.FileBufferExp)).Decode(&table.KMers); err != nil {
		log.Panic(err)
	}
	table.Nos = make([]BlobPos, len(table.KMers))
	for i := range table.KMers {
		table.Nos[i] = table.KMers[i].Pos
	}
	return table
}

// SerializeKMerNos writes the k-mer offset vector as a binary gob
// dump.
func (ctx *Context) SerializeKMerNos(nos []BlobPos, name string) {
	f := internal.FileCreate(name)
	defer internal.Close(f)
	buf := bufio.NewWriterSize(f, 1<<ctx.FileBufferExp)
	if err := gob.NewEncoder(buf).Encode(nos); err != nil {
		log.Panic(err)
	}
	if err := buf.Flush(); err != nil {
		log.Panic(err)
	}
}

// DeserializeKMerNos reads back a k-mer offset dump.
func (ctx *Context) DeserializeKMerNos(name string) []BlobPos {
	f := internal.FileOpen(name)
	defer internal.Close(f)
	var nos []BlobPos
	if err := gob.NewDecoder(bufio.NewReaderSize(f, 1<<ctx.FileBufferExp)).Decode(&nos); err != nil {
		log.Panic(err)
	}
	return nos
}

// WriteKMerResult writes a human-readable dump of the k-mer table.
func (ctx *Context) WriteKMerResult(table *KMerTable, name string) {
	w := ctx.createTmp(name)
	for i := range table.KMers {
		kmc := &table.KMers[i]
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%8v\t", kmc.Pos,
			table.Blob.KMerBytes(kmc.Pos), kmc.Stat.Count, kmc.Stat.ChangeTo, kmc.Stat.TotalQual)
		for j := 0; j < K; j++ {
			if kmc.Stat.Qual != nil {
				fmt.Fprintf(w, "%d ", kmc.Stat.Qual[j])
			} else {
				fmt.Fprint(w, "0 ")
			}
		}
		fmt.Fprintln(w)
	}
	w.Close()
}
