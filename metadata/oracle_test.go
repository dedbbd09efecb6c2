package metadata

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"
)

// pipe implements io.ReadWriter over two in-memory io.Pipe halves, so
// a PipeOracle can be tested without touching a real file descriptor.
type pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipe) Write(b []byte) (int, error) { return p.w.Write(b) }

func newLoopback() (client, server pipe) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return pipe{r1, w2}, pipe{r2, w1}
}

func TestPipeOracleRoundTrip(t *testing.T) {
	client, server := newLoopback()

	done := make(chan struct{})
	go func() {
		defer close(done)
		br := bufio.NewReader(server)
		if _, err := readFrame(br); err != nil {
			t.Errorf("server readFrame: %v", err)
			return
		}
		payload, err := json.Marshal(Response{Values: map[string]string{"SLOT": "0"}})
		if err != nil {
			t.Errorf("marshal: %v", err)
			return
		}
		if err := writeFrame(server, payload); err != nil {
			t.Errorf("server writeFrame: %v", err)
		}
	}()

	o := NewPipeOracle(client)
	resp, err := o.Fetch(Request{Category: "dev-lang", Package: "python", Version: "3.10", Keys: []string{"SLOT"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Values["SLOT"] != "0" {
		t.Fatalf("resp = %+v", resp)
	}
	<-done
}

func TestPipeOracleErrorResponse(t *testing.T) {
	client, server := newLoopback()
	go func() {
		br := bufio.NewReader(server)
		if _, err := readFrame(br); err != nil {
			return
		}
		payload, _ := json.Marshal(Response{Error: "sandbox violation"})
		_ = writeFrame(server, payload)
	}()

	o := NewPipeOracle(client)
	_, err := o.Fetch(Request{Category: "dev-lang", Package: "broken", Version: "1"})
	if err == nil {
		t.Fatal("expected error from oracle-reported failure")
	}
}
