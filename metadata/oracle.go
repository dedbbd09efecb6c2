/*
Package metadata provides the metadata oracle: the out-of-process
service ebuild metadata (DEPEND, IUSE, KEYWORDS, ...) is sourced from
when it isn't already cached, plus the two-tier cache sitting in front
of it.

PipeOracle is a direct port of original_source's agentrpc.py: a
length-prefixed JSON-over-pipe protocol, one big-endian uint32 byte
count followed by that many bytes of UTF-8 JSON, read and written over
whatever io.ReadWriter the caller hands in (a real pipe from an
injected file descriptor, a socket, or — for tests — an in-memory
pipe). Unlike agentrpc.py, which discovers its file descriptors from
the CB_AGENT_RPC_FDS environment variable, spec.md §9's redesign note
replaces that environment-variable handoff with an explicit transport
argument: the caller constructs the ReadWriter however it likes and
passes it in, so nothing here reads the process environment.
*/
package metadata

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Request is one oracle query: which package, which metadata keys.
type Request struct {
	Category string   `json:"category"`
	Package  string   `json:"package"`
	Version  string   `json:"version"`
	Keys     []string `json:"keys"`
}

// Response is the oracle's answer: the requested keys' raw string
// values, or an error message if the package could not be evaluated.
type Response struct {
	Values map[string]string `json:"values,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Oracle fetches ebuild metadata out of process.
type Oracle interface {
	Fetch(req Request) (Response, error)
}

// PipeOracle speaks the length-prefixed JSON protocol over rw.
type PipeOracle struct {
	mu sync.Mutex
	rw io.ReadWriter
	r  *bufio.Reader
}

// NewPipeOracle wraps rw (typically the two ends of an injected
// transport handle) as an Oracle.
func NewPipeOracle(rw io.ReadWriter) *PipeOracle {
	return &PipeOracle{rw: rw, r: bufio.NewReader(rw)}
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("metadata: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("metadata: writing frame body: %w", err)
	}
	return nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("metadata: reading frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("metadata: reading frame body: %w", err)
	}
	return buf, nil
}

// Fetch sends req and waits for the matching response. The oracle
// protocol is strictly request/response over one shared transport, so
// Fetch serializes concurrent callers the same way agentrpc.py's single
// in/out pipe pair does.
func (o *PipeOracle) Fetch(req Request) (Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("metadata: encoding request: %w", err)
	}
	if err := writeFrame(o.rw, payload); err != nil {
		return Response{}, err
	}
	respBytes, err := readFrame(o.r)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return Response{}, fmt.Errorf("metadata: decoding response: %w", err)
	}
	if resp.Error != "" {
		return Response{}, &Error{Msg: resp.Error}
	}
	return resp, nil
}

// Error is returned when the oracle itself reports a failure evaluating
// a package (a malformed ebuild, a sandbox violation, etc), as opposed
// to a transport-level problem.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("metadata oracle: %s", e.Msg) }
