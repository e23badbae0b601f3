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
	"bufio"
	"encoding/gob"
	"io"
	"path/filepath"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"

	"github.com/exascience/elassemble/internal"
)

type (
	gobEdge struct {
		ID       EdgeID
		Start    VertexID
		End      VertexID
		Seq      []byte
		Coverage int64
	}

	gobGraph struct {
		K int
		// conjugate partner of every vertex referenced by Edges
		VertexConj map[VertexID]VertexID
		Edges      []gobEdge
	}
)

// WriteGraph dumps the graph and its coverage to a gob file,
// compressed when the filename ends in .gz. Conjugate edges are
// restored on load and not stored.
func WriteGraph(g *Graph, cov *CoverageIndex, name string) {
	dump := gobGraph{K: g.k, VertexConj: make(map[VertexID]VertexID)}
	for _, e := range g.Edges() {
		if g.Conjugate(e) < e {
			continue
		}
		start, end := g.EdgeStart(e), g.EdgeEnd(e)
		dump.VertexConj[start] = g.ConjugateVertex(start)
		dump.VertexConj[end] = g.ConjugateVertex(end)
		dump.Edges = append(dump.Edges, gobEdge{
			ID:       e,
			Start:    start,
			End:      end,
			Seq:      g.EdgeSeq(e),
			Coverage: cov.RawCoverage(e),
		})
	}
	file := internal.FileCreate(name)
	defer internal.Close(file)
	var w io.Writer = file
	var gz *pgzip.Writer
	if filepath.Ext(name) == ".gz" {
		gz = pgzip.NewWriter(file)
		w = gz
	}
	buf := bufio.NewWriter(w)
	if err := gob.NewEncoder(buf).Encode(dump); err != nil {
		log.Panic(err)
	}
	if err := buf.Flush(); err != nil {
		log.Panic(err)
	}
	if gz != nil {
		internal.Close(gz)
	}
}

// ReadGraph loads a graph dump, reconstructing vertices, conjugate
// edges, and the coverage index.
func ReadGraph(name string) (*Graph, *CoverageIndex) {
	file := internal.FileOpen(name)
	defer internal.Close(file)
	var r io.Reader = file
	if filepath.Ext(name) == ".gz" {
		gz, err := pgzip.NewReader(file)
		if err != nil {
			log.Panic(err)
		}
		defer internal.Close(gz)
		r = gz
	}
	var dump gobGraph
	if err := gob.NewDecoder(bufio.NewReader(r)).Decode(&dump); err != nil {
		log.Panic(err)
	}

	g := New(dump.K)
	cov := NewCoverageIndex(g)
	vertices := make(map[VertexID]VertexID)
	mapVertex := func(old VertexID) VertexID {
		if v, ok := vertices[old]; ok {
			return v
		}
		// the conjugate partner may already have been materialized
		if conj, ok := dump.VertexConj[old]; ok {
			if w, ok := vertices[conj]; ok {
				v := g.ConjugateVertex(w)
				vertices[old] = v
				return v
			}
		}
		v := g.AddVertex()
		vertices[old] = v
		if conj, ok := dump.VertexConj[old]; ok && conj != old {
			vertices[conj] = g.ConjugateVertex(v)
		}
		return v
	}
	for _, ge := range dump.Edges {
		from := mapVertex(ge.Start)
		to := mapVertex(ge.End)
		e := g.AddEdge(from, to, ge.Seq)
		cov.SetRawCoverage(e, ge.Coverage)
		if conj := g.Conjugate(e); conj != e {
			cov.SetRawCoverage(conj, ge.Coverage)
		}
	}
	return g, cov
}
