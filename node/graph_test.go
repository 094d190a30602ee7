package node

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"testing"

	"github.com/janelia-flyem/godvid/dvid"
)

func TestVertexWeightAccumulation(t *testing.T) {
	weights := make(map[dvid.VertexID]float64)
	var posts int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/weight",
		func(w http.ResponseWriter, r *http.Request) {
			posts++
			var wire labelGraph
			if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if len(wire.Vertices) > maxGraphBatch {
				http.Error(w, "batch too large", http.StatusBadRequest)
				return
			}
			for _, v := range wire.Vertices {
				weights[v.Id] += v.Weight
			}
		})
	svc, _ := newTestService(t, mux)

	update := []dvid.Vertex{{Id: 1, Weight: 2.5}, {Id: 2, Weight: 1.0}}
	if err := svc.UpdateVertices("graph", update); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdateVertices("graph", update); err != nil {
		t.Fatal(err)
	}
	if weights[1] != 5.0 || weights[2] != 2.0 {
		t.Errorf("weights did not accumulate: %v", weights)
	}

	// A large update splits into server-sized batches.
	many := make([]dvid.Vertex, 1500)
	for i := range many {
		many[i] = dvid.Vertex{Id: dvid.VertexID(100 + i), Weight: 1}
	}
	posts = 0
	if err := svc.UpdateVertices("graph", many); err != nil {
		t.Fatal(err)
	}
	if posts != 2 {
		t.Errorf("1500 vertices should post in 2 batches, posted %d", posts)
	}
}

func TestUpdateEdgesMissingVertex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/weight",
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "vertex 9 does not exist", http.StatusBadRequest)
		})
	svc, _ := newTestService(t, mux)

	err := svc.UpdateEdges("graph", []dvid.Edge{{Id1: 1, Id2: 9, Weight: 1}})
	var serr dvid.StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}

func TestGetSubgraph(t *testing.T) {
	var requested labelGraph
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/subgraph",
		func(w http.ResponseWriter, r *http.Request) {
			if body, _ := io.ReadAll(r.Body); len(body) > 0 {
				json.Unmarshal(body, &requested)
			}
			json.NewEncoder(w).Encode(labelGraph{
				Vertices: []dvid.Vertex{{Id: 1, Weight: 2}, {Id: 2, Weight: 3}},
				Edges:    []dvid.Edge{{Id1: 1, Id2: 2, Weight: 0.5}},
			})
		})
	svc, _ := newTestService(t, mux)

	graph, err := svc.GetSubgraph("graph", []dvid.VertexID{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(graph.Vertices) != 2 || len(graph.Edges) != 1 {
		t.Errorf("got %d vertices, %d edges", len(graph.Vertices), len(graph.Edges))
	}
	if len(requested.Vertices) != 2 {
		t.Errorf("vertex filter not sent: %v", requested)
	}
}

func TestGetVertexNeighbors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/neighbors/7",
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(labelGraph{
				Vertices: []dvid.Vertex{{Id: 7}, {Id: 8}},
				Edges:    []dvid.Edge{{Id1: 7, Id2: 8, Weight: 1}},
			})
		})
	svc, _ := newTestService(t, mux)

	graph, err := svc.GetVertexNeighbors("graph", 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(graph.Vertices) != 2 {
		t.Errorf("got %d vertices", len(graph.Vertices))
	}
}

func TestGraphSchemaRejectsMalformed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/subgraph",
		func(w http.ResponseWriter, r *http.Request) {
			// Vertices must carry an Id.
			w.Write([]byte(`{"Vertices": [{"Weight": 2}]}`))
		})
	svc, _ := newTestService(t, mux)

	_, err := svc.GetSubgraph("graph", nil)
	var serr dvid.StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StructuralError from schema check, got %v", err)
	}
}

// parseVertexTx decodes a property transaction request body.
func parseVertexTx(t *testing.T, body []byte, withBlobs bool) (locks map[uint64]uint64, props map[uint64][]byte, order []uint64) {
	t.Helper()
	reader := bytes.NewReader(body)
	locks = make(map[uint64]uint64)
	props = make(map[uint64][]byte)

	var numLocks uint64
	binary.Read(reader, binary.LittleEndian, &numLocks)
	for i := uint64(0); i < numLocks; i++ {
		var id, token uint64
		binary.Read(reader, binary.LittleEndian, &id)
		binary.Read(reader, binary.LittleEndian, &token)
		locks[id] = token
	}
	var numProps uint64
	binary.Read(reader, binary.LittleEndian, &numProps)
	for i := uint64(0); i < numProps; i++ {
		var id uint64
		binary.Read(reader, binary.LittleEndian, &id)
		order = append(order, id)
		if withBlobs {
			var size uint64
			binary.Read(reader, binary.LittleEndian, &size)
			blob := make([]byte, size)
			io.ReadFull(reader, blob)
			props[id] = blob
		}
	}
	return locks, props, order
}

func writePair(buf *bytes.Buffer, id, token uint64) {
	binary.Write(buf, binary.LittleEndian, id)
	binary.Write(buf, binary.LittleEndian, token)
}

func TestVertexPropertyConflict(t *testing.T) {
	// Server-side store: vertex 1 currently at token 5 with no property.
	currentToken := uint64(5)
	var stored []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/propertytransaction/vertices/annotation",
		func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			locks, props, _ := parseVertexTx(t, body, r.Method == "POST")

			var resp bytes.Buffer
			if locks[1] == currentToken {
				currentToken++
				stored = props[1]
				binary.Write(&resp, binary.LittleEndian, uint64(1))
				writePair(&resp, 1, currentToken)
				binary.Write(&resp, binary.LittleEndian, uint64(0)) // no failures
			} else {
				binary.Write(&resp, binary.LittleEndian, uint64(0)) // nothing locked
				binary.Write(&resp, binary.LittleEndian, uint64(1))
				binary.Write(&resp, binary.LittleEndian, uint64(1)) // failed vertex 1
			}
			w.Write(resp.Bytes())
		})
	svc, _ := newTestService(t, mux)

	// Two writers hold the same token; only the first lands.
	txA := dvid.VertexTransactions{1: 5}
	txB := dvid.VertexTransactions{1: 5}

	leftover, err := svc.SetVertexProperties("graph", "annotation",
		map[dvid.VertexID][]byte{1: []byte("from A")}, txA)
	if err != nil {
		t.Fatal(err)
	}
	if len(leftover) != 0 {
		t.Fatalf("first writer should win, leftover %v", leftover)
	}
	if txA[1] != 6 {
		t.Errorf("winner token not refreshed: %v", txA)
	}
	if string(stored) != "from A" {
		t.Errorf("stored %q", stored)
	}

	leftover, err = svc.SetVertexProperties("graph", "annotation",
		map[dvid.VertexID][]byte{1: []byte("from B")}, txB)
	if err != nil {
		t.Fatalf("a lost race is data, not an error: %v", err)
	}
	if !reflect.DeepEqual(leftover, []dvid.VertexID{1}) {
		t.Fatalf("second writer should be leftover, got %v", leftover)
	}
	if string(stored) != "from A" {
		t.Errorf("loser overwrote the property: %q", stored)
	}
}

func TestGetVertexPropertiesRetry(t *testing.T) {
	var attempts int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/propertytransaction/vertices/annotation",
		func(w http.ResponseWriter, r *http.Request) {
			attempts++
			body, _ := io.ReadAll(r.Body)
			_, _, order := parseVertexTx(t, body, false)

			var resp bytes.Buffer
			if attempts == 1 {
				// Vertex 2 is busy on the first attempt.
				binary.Write(&resp, binary.LittleEndian, uint64(1))
				writePair(&resp, 1, 10)
				binary.Write(&resp, binary.LittleEndian, uint64(1))
				binary.Write(&resp, binary.LittleEndian, uint64(2))
				binary.Write(&resp, binary.LittleEndian, uint64(1)) // one property
				binary.Write(&resp, binary.LittleEndian, uint64(1))
				binary.Write(&resp, binary.LittleEndian, uint64(5))
				resp.WriteString("alpha")
				w.Write(resp.Bytes())
				return
			}
			if len(order) != 1 || order[0] != 2 {
				t.Errorf("retry should only re-request vertex 2, asked for %v", order)
			}
			binary.Write(&resp, binary.LittleEndian, uint64(1))
			writePair(&resp, 2, 11)
			binary.Write(&resp, binary.LittleEndian, uint64(0))
			binary.Write(&resp, binary.LittleEndian, uint64(1))
			binary.Write(&resp, binary.LittleEndian, uint64(2))
			binary.Write(&resp, binary.LittleEndian, uint64(4))
			resp.WriteString("beta")
			w.Write(resp.Bytes())
		})
	svc, _ := newTestService(t, mux)

	tx := make(dvid.VertexTransactions)
	props, err := svc.GetVertexProperties("graph", "annotation", []dvid.VertexID{1, 2}, tx)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, server saw %d", attempts)
	}
	if string(props[1]) != "alpha" || string(props[2]) != "beta" {
		t.Errorf("got props %v", props)
	}
	if tx[1] != 10 || tx[2] != 11 {
		t.Errorf("tokens not recorded: %v", tx)
	}
}

func TestEdgePropertyRoundTrip(t *testing.T) {
	var setBody []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/graph/propertytransaction/edges/strength",
		func(w http.ResponseWriter, r *http.Request) {
			var resp bytes.Buffer
			switch r.Method {
			case "POST":
				setBody, _ = io.ReadAll(r.Body)
				binary.Write(&resp, binary.LittleEndian, uint64(2))
				writePair(&resp, 3, 1)
				writePair(&resp, 8, 1)
				binary.Write(&resp, binary.LittleEndian, uint64(0))
			default:
				binary.Write(&resp, binary.LittleEndian, uint64(2))
				writePair(&resp, 3, 2)
				writePair(&resp, 8, 2)
				binary.Write(&resp, binary.LittleEndian, uint64(0))
				binary.Write(&resp, binary.LittleEndian, uint64(1)) // one property
				binary.Write(&resp, binary.LittleEndian, uint64(3))
				binary.Write(&resp, binary.LittleEndian, uint64(8))
				binary.Write(&resp, binary.LittleEndian, uint64(6))
				resp.WriteString("strong")
			}
			w.Write(resp.Bytes())
		})
	svc, _ := newTestService(t, mux)

	tx := make(dvid.VertexTransactions)
	// Endpoints given larger id first must canonicalize on the wire.
	leftover, err := svc.SetEdgeProperties("graph", "strength",
		map[EdgeID][]byte{{8, 3}: []byte("strong")}, tx)
	if err != nil {
		t.Fatal(err)
	}
	if len(leftover) != 0 {
		t.Fatalf("unexpected leftover %v", leftover)
	}

	reader := bytes.NewReader(setBody)
	var numLocks uint64
	binary.Read(reader, binary.LittleEndian, &numLocks)
	if numLocks != 2 {
		t.Fatalf("both endpoints must be locked, got %d locks", numLocks)
	}
	var firstLock, token uint64
	binary.Read(reader, binary.LittleEndian, &firstLock)
	binary.Read(reader, binary.LittleEndian, &token)
	if firstLock != 3 {
		t.Errorf("locks not in sorted order, first is %d", firstLock)
	}

	props, err := svc.GetEdgeProperties("graph", "strength", []EdgeID{{8, 3}}, tx)
	if err != nil {
		t.Fatal(err)
	}
	if string(props[EdgeID{3, 8}]) != "strong" {
		t.Errorf("got props %v", props)
	}
	if tx[3] != 2 || tx[8] != 2 {
		t.Errorf("tokens not recorded: %v", tx)
	}
}
