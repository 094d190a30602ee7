/*
	Package node provides access to the data of one version node in a DVID
	store: dense grayscale and label volumes, raw block transfer, regions
	of interest, sparse label bodies, a property graph with optimistic
	concurrency, key-value data, and precomputed tiles.

	A Service is stateless apart from its connection; instantiate as many
	as needed.  Throttled volume transfers from all services in a process
	contend for a single gate unless a private gate is injected.
*/
package node

import (
	"encoding/json"
	"fmt"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// Datatype names understood by the store.
const (
	GrayscaleTypeName = "uint8blk"
	LabelblkTypeName  = "labelblk"
	LabelvolTypeName  = "labelvol"
	KeyvalueTypeName  = "keyvalue"
	GraphTypeName     = "labelgraph"
	ROITypeName       = "roi"
)

// Service accesses the data instances under one version node (UUID).
type Service struct {
	conn *connection.Connection
	uuid string
	gate *Gate

	tileCache *freecache.Cache

	// Posting label blocks is not verified against any released store
	// version, so it stays off unless explicitly enabled.
	labelBlockPut bool
}

// Option configures a Service.
type Option func(*Service)

// WithGate injects a private throttle gate instead of the process-wide one.
func WithGate(gate *Gate) Option {
	return func(s *Service) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// WithTileCache enables a client-side cache of the given byte size for
// tile fetches.  Tiles are immutable for a node so entries never expire.
func WithTileCache(sizeBytes int) Option {
	return func(s *Service) {
		s.tileCache = freecache.NewCache(sizeBytes)
	}
}

// WithSpeculativeLabelBlockPut enables PutLabelBlocks, whose wire
// compatibility is not verified against released store versions.
func WithSpeculativeLabelBlockPut() Option {
	return func(s *Service) {
		s.labelBlockPut = true
	}
}

// OpenService connects to the DVID server at the given address and returns
// a service for the version node with the given UUID, verifying the node
// exists.
func OpenService(addr, uuid string, opts ...Option) (*Service, error) {
	conn, err := connection.New(addr)
	if err != nil {
		return nil, err
	}
	return NewService(conn, uuid, opts...)
}

// NewService returns a service over an existing connection, verifying the
// node exists.  Multiple services can share one connection.
func NewService(conn *connection.Connection, uuid string, opts ...Option) (*Service, error) {
	s := &Service{
		conn: conn,
		uuid: uuid,
		gate: processGate,
	}
	for _, opt := range opts {
		opt(s)
	}
	endpoint := fmt.Sprintf("/repo/%s/info", uuid)
	status, body, err := conn.Do(endpoint, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, endpoint, body); err != nil {
		if connection.IsNotFound(err) {
			return nil, fmt.Errorf("no version node %q on server %s: %w", uuid, conn.Addr(), dvid.ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

// UUID returns the version node this service is bound to.
func (s *Service) UUID() string {
	return s.uuid
}

// CustomRequest issues an arbitrary request under this node's endpoint.  A
// request to /node/<uuid>/blah should supply "/blah".
func (s *Service) CustomRequest(endpoint string, method connection.Method, payload []byte) ([]byte, error) {
	full := "/node/" + s.uuid + endpoint
	status, body, err := s.conn.Do(full, method, payload)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, full, body); err != nil {
		return nil, err
	}
	return body, nil
}

// TypeInfo retrieves metadata for a datatype instance under this node.
func (s *Service) TypeInfo(instance string) (map[string]interface{}, error) {
	body, err := s.CustomRequest("/"+instance+"/info", connection.GET, nil)
	if err != nil {
		return nil, err
	}
	info := make(map[string]interface{})
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("bad instance info for %q: %v", instance, err)
	}
	return info, nil
}

// Exists checks whether a GET of the given node-relative endpoint succeeds.
func (s *Service) Exists(endpoint string) (bool, error) {
	full := "/node/" + s.uuid + endpoint
	status, _, err := s.conn.Do(full, connection.GET, nil)
	if err != nil {
		return false, err
	}
	return status >= 200 && status <= 299, nil
}

// CreateGrayscale8 creates a uint8 grayscale volume instance.  Returns
// false without error if the instance already exists.
func (s *Service) CreateGrayscale8(name string) (bool, error) {
	return s.createInstance(GrayscaleTypeName, name, "")
}

// CreateLabelblk creates a uint64 label volume instance, optionally synced
// with a new labelvol instance for sparse body queries.  Returns false if
// either instance already exists.
func (s *Service) CreateLabelblk(name, labelvolName string) (bool, error) {
	if labelvolName == "" {
		return s.createInstance(LabelblkTypeName, name, "")
	}
	created, err := s.createInstance(LabelblkTypeName, name, labelvolName)
	if err != nil || !created {
		return created, err
	}
	return s.createInstance(LabelvolTypeName, labelvolName, name)
}

// CreateKeyvalue creates a key-value instance.
func (s *Service) CreateKeyvalue(name string) (bool, error) {
	return s.createInstance(KeyvalueTypeName, name, "")
}

// CreateGraph creates a labelgraph instance.
func (s *Service) CreateGraph(name string) (bool, error) {
	return s.createInstance(GraphTypeName, name, "")
}

// CreateROI creates a region-of-interest instance.
func (s *Service) CreateROI(name string) (bool, error) {
	return s.createInstance(ROITypeName, name, "")
}

func (s *Service) createInstance(typename, name, syncName string) (bool, error) {
	exists, err := s.Exists("/" + name + "/info")
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	config := map[string]string{
		"typename": typename,
		"dataname": name,
	}
	if syncName != "" {
		config["sync"] = syncName
	}
	payload, err := json.Marshal(config)
	if err != nil {
		return false, err
	}
	endpoint := fmt.Sprintf("/repo/%s/instance", s.uuid)
	status, body, err := s.conn.Do(endpoint, connection.POST, payload)
	if err != nil {
		return false, err
	}
	if err := connection.StatusError(status, endpoint, body); err != nil {
		return false, err
	}
	return true, nil
}
