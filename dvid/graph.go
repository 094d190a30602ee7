/*
   This file defines fundamental graph structures exchanged with the
   store's labelgraph datatype.
*/

package dvid

// VertexID is a 64 bit label ID for vertices in the graph.
type VertexID uint64

// Vertex is a graph vertex with an accumulated weight.  Identity is the id.
type Vertex struct {
	Id     VertexID
	Weight float64
}

// Edge is an undirected graph edge with an accumulated weight.  Identity is
// the id pair regardless of order.
type Edge struct {
	Id1    VertexID
	Id2    VertexID
	Weight float64
}

// Graph holds vertices, edges, and edge weights exchanged with the store.
type Graph struct {
	Vertices []Vertex
	Edges    []Edge
}

// VertexTransactions maps a vertex id to the transaction token the store
// issued for it.  Tokens are opaque: the client only echoes them back on
// writes so the store can detect stale writers.  A token is valid until the
// store observes any write to that vertex, from any client.
type VertexTransactions map[VertexID]uint64
