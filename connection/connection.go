/*
	Package connection issues HTTP requests against a DVID server and owns
	the transport-level concerns: keep-alive, timeouts, and retry/backoff
	for transient failures.  Layers above treat it as a simple
	(method, endpoint, payload) -> (status, body) collaborator.
*/
package connection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/blang/semver"

	"github.com/janelia-flyem/godvid/dvid"
)

// Method is the HTTP verb for a request.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	DELETE Method = "DELETE"
)

// WebAPIPath prefixes every DVID REST endpoint.
const WebAPIPath = "/api"

// minServerVersion is the oldest DVID release whose wire formats this
// client speaks.
var minServerVersion = semver.MustParse("0.8.0")

// HTTPError is a non-2xx response from the server, kept with enough context
// to diagnose which request failed.
type HTTPError struct {
	StatusCode int
	Endpoint   string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bad status %d on %q: %s", e.StatusCode, e.Endpoint, string(e.Body))
}

// IsNotFound returns true if the error is a 404 from the server.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Connection is a client connection to one DVID server.  It is safe for
// concurrent use; the underlying http.Client pools keep-alive connections.
type Connection struct {
	addr   string
	client *http.Client

	// retries for transient failures (connection errors, 408/429/5xx).
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures a Connection.
type Option func(*Connection)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.client.Timeout = d
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) Option {
	return func(c *Connection) {
		c.maxRetries = n
	}
}

// New opens a connection to the DVID server at the given address, e.g.
// "http://emdata.janelia.org:7000", and verifies the server is reachable
// and recent enough for this client's wire formats.
func New(addr string, opts ...Option) (*Connection, error) {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	c := &Connection{
		addr:       strings.TrimRight(addr, "/"),
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  250 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.checkServer(); err != nil {
		return nil, err
	}
	return c, nil
}

// Addr returns the normalized server address.
func (c *Connection) Addr() string {
	return c.addr
}

// checkServer pings /api/server/info and checks the advertised version.
func (c *Connection) checkServer() error {
	status, body, err := c.Do("/server/info", GET, nil)
	if err != nil {
		return fmt.Errorf("unable to reach DVID server at %s: %v", c.addr, err)
	}
	if status != http.StatusOK {
		return &HTTPError{status, "/server/info", body}
	}
	info := make(map[string]string)
	if err := json.Unmarshal(body, &info); err != nil {
		dvid.Warningf("Could not parse server info from %s: %v\n", c.addr, err)
		return nil
	}
	verStr, found := info["DVID Version"]
	if !found {
		verStr = info["DVID datastore"]
	}
	ver, err := semver.ParseTolerant(verStr)
	if err != nil {
		dvid.Warningf("Server at %s advertises unparseable version %q\n", c.addr, verStr)
		return nil
	}
	if ver.LT(minServerVersion) {
		return fmt.Errorf("server version %s below minimum supported %s", ver, minServerVersion)
	}
	dvid.Debugf("Connected to DVID server %s, version %s\n", c.addr, ver)
	return nil
}

// NodeEndpoint joins path parts under the given node's API prefix.  A part
// list of ("grayscale", "raw", "0_1_2") for uuid "f8a0" yields
// "/node/f8a0/grayscale/raw/0_1_2".
func NodeEndpoint(uuid string, parts ...string) string {
	return "/node/" + uuid + "/" + strings.Join(parts, "/")
}

// Do issues one request against the API endpoint (the portion after "/api")
// and returns the status code and response body.  Transient failures are
// retried with capped exponential backoff; the payload is replayable so a
// retried request resends identical bytes.  Non-2xx statuses are returned
// to the caller without error so protocol layers can decide what absence
// or failure means; use StatusError to promote them.
func (c *Connection) Do(endpoint string, method Method, payload []byte) (status int, body []byte, err error) {
	url := c.addr + WebAPIPath + endpoint

	delay := c.baseDelay
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, reqErr := http.NewRequest(string(method), url, reader)
		if reqErr != nil {
			return 0, nil, reqErr
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/octet-stream")
		}

		resp, doErr := c.client.Do(req)
		if doErr != nil {
			if attempt >= c.maxRetries {
				return 0, nil, fmt.Errorf("request %s %q failed after %d attempts: %v",
					method, endpoint, attempt+1, doErr)
			}
			dvid.Debugf("Transient error on %s %q, retrying: %v\n", method, endpoint, doErr)
			time.Sleep(delay)
			delay = nextDelay(delay, c.maxDelay)
			continue
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return resp.StatusCode, nil, err
		}
		if transientStatus(resp.StatusCode) && attempt < c.maxRetries {
			dvid.Debugf("Status %d on %s %q, retrying\n", resp.StatusCode, method, endpoint)
			time.Sleep(delay)
			delay = nextDelay(delay, c.maxDelay)
			continue
		}
		return resp.StatusCode, body, nil
	}
}

// StatusError converts a non-2xx status into an *HTTPError, or nil for 2xx.
func StatusError(status int, endpoint string, body []byte) error {
	if status >= 200 && status <= 299 {
		return nil
	}
	return &HTTPError{status, endpoint, body}
}

func transientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		(status >= 500 && status <= 599)
}

// nextDelay doubles the backoff up to max, with jitter so stampeding
// clients spread out.
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		next = max
	}
	return next/2 + time.Duration(rand.Int63n(int64(next/2)+1))
}
