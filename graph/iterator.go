package graph

// Smart iterators snapshot the current id set and skip elements that
// are deleted while iterating. Identifiers are never reused, so a
// liveness check against the graph's maps is exact: elements created
// after the snapshot are not visited, elements deleted after the
// snapshot are skipped.

// A SmartEdgeIterator iterates over a snapshot of the graph's edges,
// tolerating deletion of the current element.
type SmartEdgeIterator struct {
	g   *Graph
	ids []EdgeID
	pos int
}

// SmartEdges returns a smart iterator over all edges in id order.
func (g *Graph) SmartEdges() *SmartEdgeIterator {
	return &SmartEdgeIterator{g: g, ids: g.Edges()}
}

// Next returns the next live edge, or false when the snapshot is
// exhausted.
func (it *SmartEdgeIterator) Next() (EdgeID, bool) {
	for it.pos < len(it.ids) {
		e := it.ids[it.pos]
		it.pos++
		if it.g.HasEdge(e) {
			return e, true
		}
	}
	return NilEdge, false
}

// A SmartVertexIterator iterates over a snapshot of the graph's
// vertices, tolerating deletion of the current element.
type SmartVertexIterator struct {
	g   *Graph
	ids []VertexID
	pos int
}

// SmartVertices returns a smart iterator over all vertices in id
// order.
func (g *Graph) SmartVertices() *SmartVertexIterator {
	return &SmartVertexIterator{g: g, ids: g.Vertices()}
}

// Next returns the next live vertex, or false when the snapshot is
// exhausted.
func (it *SmartVertexIterator) Next() (VertexID, bool) {
	for it.pos < len(it.ids) {
		v := it.ids[it.pos]
		it.pos++
		if it.g.HasVertex(v) {
			return v, true
		}
	}
	return 0, false
}
