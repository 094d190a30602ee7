/*
	This file implements label graph operations: weighted vertex and edge
	updates, subgraph retrieval, and optimistically locked property
	transactions keyed by opaque per-vertex tokens.
*/

package node

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// maxGraphBatch bounds the elements per weight update request.
const maxGraphBatch = 1000

// Property transactions on busy vertices retry with a short pause.
const (
	maxTransactionAttempts = 100
	transactionRetryPause  = 10 * time.Millisecond
)

// graphSchema validates graph JSON from the server before decoding.
const graphSchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"title": "Graph of label vertices and edges",
	"type": "object",
	"properties": {
		"Transactions": { "type": ["array", "null"] },
		"Vertices": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"Id":     { "type": "integer", "minimum": 0 },
					"Weight": { "type": "number" }
				},
				"required": ["Id"]
			}
		},
		"Edges": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"properties": {
					"Id1":    { "type": "integer", "minimum": 0 },
					"Id2":    { "type": "integer", "minimum": 0 },
					"Weight": { "type": "number" }
				},
				"required": ["Id1", "Id2"]
			}
		}
	}
}`

var compiledGraphSchema = jsonschema.MustCompileString("labelgraph.json", graphSchema)

// labelGraph is the JSON wire form of a graph or graph delta.
type labelGraph struct {
	Transactions json.RawMessage `json:"Transactions,omitempty"`
	Vertices     []dvid.Vertex   `json:"Vertices,omitempty"`
	Edges        []dvid.Edge     `json:"Edges,omitempty"`
}

func decodeGraph(uri string, body []byte) (*dvid.Graph, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("bad graph payload from %s: %v", uri, err)
	}
	if err := compiledGraphSchema.Validate(doc); err != nil {
		return nil, dvid.StructuralError{Reason: fmt.Sprintf("graph payload from %s fails schema: %v", uri, err)}
	}
	var wire labelGraph
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("bad graph payload from %s: %v", uri, err)
	}
	return &dvid.Graph{Vertices: wire.Vertices, Edges: wire.Edges}, nil
}

// GetSubgraph retrieves the subgraph induced by the given vertices, or the
// whole graph when vertices is empty.
func (s *Service) GetSubgraph(instance string, vertices []dvid.VertexID) (*dvid.Graph, error) {
	uri := fmt.Sprintf("/node/%s/%s/subgraph", s.uuid, instance)
	var payload []byte
	if len(vertices) > 0 {
		wire := labelGraph{Vertices: make([]dvid.Vertex, len(vertices))}
		for i, id := range vertices {
			wire.Vertices[i] = dvid.Vertex{Id: id}
		}
		var err error
		if payload, err = json.Marshal(wire); err != nil {
			return nil, err
		}
	}
	status, body, err := s.conn.Do(uri, connection.GET, payload)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	return decodeGraph(uri, body)
}

// GetVertexNeighbors retrieves the vertex, its neighbors, and the edges
// between them.
func (s *Service) GetVertexNeighbors(instance string, id dvid.VertexID) (*dvid.Graph, error) {
	uri := fmt.Sprintf("/node/%s/%s/neighbors/%d", s.uuid, instance, id)
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	return decodeGraph(uri, body)
}

func (s *Service) postWeights(instance string, wire labelGraph) error {
	payload, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	uri := fmt.Sprintf("/node/%s/%s/weight", s.uuid, instance)
	status, body, err := s.conn.Do(uri, connection.POST, payload)
	if err != nil {
		return err
	}
	return connection.StatusError(status, uri, body)
}

// UpdateVertices adds the given weights to the named vertices, creating any
// that do not exist.  Weights accumulate across calls.  Large updates are
// split into batches.
func (s *Service) UpdateVertices(instance string, vertices []dvid.Vertex) error {
	for start := 0; start < len(vertices); start += maxGraphBatch {
		end := start + maxGraphBatch
		if end > len(vertices) {
			end = len(vertices)
		}
		if err := s.postWeights(instance, labelGraph{Vertices: vertices[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEdges adds the given weights to the named edges, creating any that
// do not exist.  Both endpoints of every edge must already be vertices.
// Weights accumulate across calls.  Large updates are split into batches.
func (s *Service) UpdateEdges(instance string, edges []dvid.Edge) error {
	for start := 0; start < len(edges); start += maxGraphBatch {
		end := start + maxGraphBatch
		if end > len(edges) {
			end = len(edges)
		}
		if err := s.postWeights(instance, labelGraph{Edges: edges[start:end]}); err != nil {
			var httpErr *connection.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == 400 {
				return dvid.StructuralError{Reason: fmt.Sprintf("edge update rejected, likely a missing endpoint vertex: %v", err)}
			}
			return err
		}
	}
	return nil
}

// EdgeID names an edge by its endpoints for property operations.  The
// canonical form puts the smaller id first.
type EdgeID struct {
	Id1, Id2 dvid.VertexID
}

func (e EdgeID) canonical() EdgeID {
	if e.Id2 < e.Id1 {
		return EdgeID{e.Id2, e.Id1}
	}
	return e
}

// ordered returns the endpoints smaller id first.
func (e EdgeID) ordered() (dvid.VertexID, dvid.VertexID) {
	if e.Id1 <= e.Id2 {
		return e.Id1, e.Id2
	}
	return e.Id2, e.Id1
}

// propertyTransactionURI addresses a vertex or edge property store.
func (s *Service) propertyTransactionURI(instance, kind, property string) string {
	return fmt.Sprintf("/node/%s/%s/propertytransaction/%s/%s", s.uuid, instance, kind, property)
}

// encodeLocks writes the lock section: a count followed by (vertex, token)
// pairs in sorted vertex order.
func encodeLocks(buf *bytes.Buffer, vertices []dvid.VertexID, transactions dvid.VertexTransactions) {
	sorted := make([]dvid.VertexID, len(vertices))
	copy(sorted, vertices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	binary.Write(buf, binary.LittleEndian, uint64(len(sorted)))
	for _, id := range sorted {
		binary.Write(buf, binary.LittleEndian, uint64(id))
		binary.Write(buf, binary.LittleEndian, transactions[id])
	}
}

// decodeLockResults reads the locked (vertex, token) pairs into the
// transactions map and returns the ids the server refused to lock.
func decodeLockResults(buf *bytes.Reader, transactions dvid.VertexTransactions) ([]dvid.VertexID, error) {
	var numLocked uint64
	if err := binary.Read(buf, binary.LittleEndian, &numLocked); err != nil {
		return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated transaction response: %v", err)}
	}
	for i := uint64(0); i < numLocked; i++ {
		var id, token uint64
		if err := binary.Read(buf, binary.LittleEndian, &id); err != nil {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated lock %d of %d: %v", i, numLocked, err)}
		}
		if err := binary.Read(buf, binary.LittleEndian, &token); err != nil {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated lock %d of %d: %v", i, numLocked, err)}
		}
		transactions[dvid.VertexID(id)] = token
	}
	var numFailed uint64
	if err := binary.Read(buf, binary.LittleEndian, &numFailed); err != nil {
		return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated transaction response: %v", err)}
	}
	failed := make([]dvid.VertexID, 0, numFailed)
	for i := uint64(0); i < numFailed; i++ {
		var id uint64
		if err := binary.Read(buf, binary.LittleEndian, &id); err != nil {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated failed id %d of %d: %v", i, numFailed, err)}
		}
		failed = append(failed, dvid.VertexID(id))
	}
	return failed, nil
}

func failedSet(failed []dvid.VertexID) map[dvid.VertexID]struct{} {
	set := make(map[dvid.VertexID]struct{}, len(failed))
	for _, id := range failed {
		set[id] = struct{}{}
	}
	return set
}

// GetVertexProperties retrieves the named binary property for the given
// vertices.  The transactions map is updated with the tokens the server
// issued; pass the same map to a later set to detect interleaved writers.
// Vertices the server could not lock are retried until they succeed or the
// attempt budget runs out.  Vertices with no stored value are simply absent
// from the result.
func (s *Service) GetVertexProperties(instance, property string, vertices []dvid.VertexID, transactions dvid.VertexTransactions) (map[dvid.VertexID][]byte, error) {
	uri := s.propertyTransactionURI(instance, "vertices", property)
	props := make(map[dvid.VertexID][]byte)

	pending := make([]dvid.VertexID, len(vertices))
	copy(pending, vertices)
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt >= maxTransactionAttempts {
			return nil, fmt.Errorf("could not lock %d vertices for property %q after %d attempts", len(pending), property, attempt)
		}
		if attempt > 0 {
			time.Sleep(transactionRetryPause)
		}

		var buf bytes.Buffer
		// Reads request fresh tokens, so every lock entry sends token 0.
		binary.Write(&buf, binary.LittleEndian, uint64(len(pending)))
		for _, id := range pending {
			binary.Write(&buf, binary.LittleEndian, uint64(id))
			binary.Write(&buf, binary.LittleEndian, uint64(0))
		}
		binary.Write(&buf, binary.LittleEndian, uint64(len(pending)))
		for _, id := range pending {
			binary.Write(&buf, binary.LittleEndian, uint64(id))
		}

		status, body, err := s.conn.Do(uri, connection.GET, buf.Bytes())
		if err != nil {
			return nil, err
		}
		if err := connection.StatusError(status, uri, body); err != nil {
			return nil, err
		}

		reader := bytes.NewReader(body)
		failed, err := decodeLockResults(reader, transactions)
		if err != nil {
			return nil, err
		}

		var numProps uint64
		if err := binary.Read(reader, binary.LittleEndian, &numProps); err != nil {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property section: %v", err)}
		}
		for i := uint64(0); i < numProps; i++ {
			var id, size uint64
			if err := binary.Read(reader, binary.LittleEndian, &id); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property %d of %d: %v", i, numProps, err)}
			}
			if err := binary.Read(reader, binary.LittleEndian, &size); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property %d of %d: %v", i, numProps, err)}
			}
			blob := make([]byte, size)
			if _, err := io.ReadFull(reader, blob); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property blob for vertex %d: %v", id, err)}
			}
			if size > 0 {
				props[dvid.VertexID(id)] = blob
			}
		}
		pending = failed
	}
	return props, nil
}

// SetVertexProperties stores the named binary property for the given
// vertices under the tokens in transactions.  Vertices whose token no
// longer matches are not written and are returned as leftover; re-read
// them to obtain fresh tokens before retrying.  Leftovers are expected
// under contention and are not an error.
func (s *Service) SetVertexProperties(instance, property string, props map[dvid.VertexID][]byte, transactions dvid.VertexTransactions) ([]dvid.VertexID, error) {
	uri := s.propertyTransactionURI(instance, "vertices", property)

	ids := make([]dvid.VertexID, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf bytes.Buffer
	encodeLocks(&buf, ids, transactions)
	binary.Write(&buf, binary.LittleEndian, uint64(len(ids)))
	for _, id := range ids {
		binary.Write(&buf, binary.LittleEndian, uint64(id))
		binary.Write(&buf, binary.LittleEndian, uint64(len(props[id])))
		buf.Write(props[id])
	}

	status, body, err := s.conn.Do(uri, connection.POST, buf.Bytes())
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}

	reader := bytes.NewReader(body)
	failed, err := decodeLockResults(reader, transactions)
	if err != nil {
		return nil, err
	}
	return failed, nil
}

// GetEdgeProperties retrieves the named binary property for the given
// edges.  Both endpoints of every edge are locked, smaller id first.  The
// transactions map is updated with the issued tokens.
func (s *Service) GetEdgeProperties(instance, property string, edges []EdgeID, transactions dvid.VertexTransactions) (map[EdgeID][]byte, error) {
	uri := s.propertyTransactionURI(instance, "edges", property)
	props := make(map[EdgeID][]byte)

	pending := make([]EdgeID, len(edges))
	copy(pending, edges)
	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt >= maxTransactionAttempts {
			return nil, fmt.Errorf("could not lock endpoints of %d edges for property %q after %d attempts", len(pending), property, attempt)
		}
		if attempt > 0 {
			time.Sleep(transactionRetryPause)
		}

		locks := edgeEndpoints(pending)
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint64(len(locks)))
		for _, id := range locks {
			binary.Write(&buf, binary.LittleEndian, uint64(id))
			binary.Write(&buf, binary.LittleEndian, uint64(0))
		}
		binary.Write(&buf, binary.LittleEndian, uint64(len(pending)))
		for _, edge := range pending {
			id1, id2 := edge.ordered()
			binary.Write(&buf, binary.LittleEndian, uint64(id1))
			binary.Write(&buf, binary.LittleEndian, uint64(id2))
		}

		status, body, err := s.conn.Do(uri, connection.GET, buf.Bytes())
		if err != nil {
			return nil, err
		}
		if err := connection.StatusError(status, uri, body); err != nil {
			return nil, err
		}

		reader := bytes.NewReader(body)
		failed, err := decodeLockResults(reader, transactions)
		if err != nil {
			return nil, err
		}
		failedIDs := failedSet(failed)

		var numProps uint64
		if err := binary.Read(reader, binary.LittleEndian, &numProps); err != nil {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property section: %v", err)}
		}
		for i := uint64(0); i < numProps; i++ {
			var id1, id2, size uint64
			if err := binary.Read(reader, binary.LittleEndian, &id1); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property %d of %d: %v", i, numProps, err)}
			}
			if err := binary.Read(reader, binary.LittleEndian, &id2); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property %d of %d: %v", i, numProps, err)}
			}
			if err := binary.Read(reader, binary.LittleEndian, &size); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property %d of %d: %v", i, numProps, err)}
			}
			blob := make([]byte, size)
			if _, err := io.ReadFull(reader, blob); err != nil {
				return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated property blob for edge (%d, %d): %v", id1, id2, err)}
			}
			if size > 0 {
				props[EdgeID{dvid.VertexID(id1), dvid.VertexID(id2)}.canonical()] = blob
			}
		}

		// An edge is pending while either endpoint failed to lock.
		var retry []EdgeID
		for _, edge := range pending {
			id1, id2 := edge.ordered()
			_, bad1 := failedIDs[id1]
			_, bad2 := failedIDs[id2]
			if bad1 || bad2 {
				retry = append(retry, edge)
			}
		}
		pending = retry
	}
	return props, nil
}

// SetEdgeProperties stores the named binary property for the given edges
// under the endpoint tokens in transactions.  Edges with a stale endpoint
// token are not written and are returned as leftover with fresh endpoint
// tokens placed in the map.
func (s *Service) SetEdgeProperties(instance, property string, props map[EdgeID][]byte, transactions dvid.VertexTransactions) ([]EdgeID, error) {
	uri := s.propertyTransactionURI(instance, "edges", property)

	edges := make([]EdgeID, 0, len(props))
	for edge := range props {
		edges = append(edges, edge.canonical())
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Id1 != edges[j].Id1 {
			return edges[i].Id1 < edges[j].Id1
		}
		return edges[i].Id2 < edges[j].Id2
	})

	var buf bytes.Buffer
	encodeLocks(&buf, edgeEndpoints(edges), transactions)
	binary.Write(&buf, binary.LittleEndian, uint64(len(edges)))
	for _, edge := range edges {
		id1, id2 := edge.ordered()
		blob := props[edge]
		if blob == nil {
			blob = props[EdgeID{edge.Id2, edge.Id1}]
		}
		binary.Write(&buf, binary.LittleEndian, uint64(id1))
		binary.Write(&buf, binary.LittleEndian, uint64(id2))
		binary.Write(&buf, binary.LittleEndian, uint64(len(blob)))
		buf.Write(blob)
	}

	status, body, err := s.conn.Do(uri, connection.POST, buf.Bytes())
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}

	reader := bytes.NewReader(body)
	failed, err := decodeLockResults(reader, transactions)
	if err != nil {
		return nil, err
	}
	failedIDs := failedSet(failed)
	var leftover []EdgeID
	for _, edge := range edges {
		_, bad1 := failedIDs[edge.Id1]
		_, bad2 := failedIDs[edge.Id2]
		if bad1 || bad2 {
			leftover = append(leftover, edge)
		}
	}
	return leftover, nil
}

// edgeEndpoints returns the distinct endpoint vertices of the edges in
// sorted order.
func edgeEndpoints(edges []EdgeID) []dvid.VertexID {
	seen := make(map[dvid.VertexID]struct{}, 2*len(edges))
	var ids []dvid.VertexID
	for _, edge := range edges {
		for _, id := range []dvid.VertexID{edge.Id1, edge.Id2} {
			if _, found := seen[id]; !found {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
