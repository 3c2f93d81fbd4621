// Package jsonrpc implements the ndjson framer (spec.md §4.1) and the
// JSON-RPC 2.0 multiplexer (spec.md §4.2) the Transport plumbs the agent
// subprocess's stdio through. The framing style is generalized from
// pkg/codex/client.go's bufio.Scanner read loop and single-writer send,
// which was the one hand-rolled JSON-RPC client in the teacher tree not
// built atop the dropped coder/acp-go-sdk.
package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxLineSize bounds a single ndjson frame; the teacher's codex client
// uses the same 1MiB scanner buffer ceiling.
const maxLineSize = 1024 * 1024

// ErrSink receives lines that failed to parse as JSON, per spec.md §4.1
// ("does not terminate the stream").
type ErrSink func(line []byte, err error)

// Decoder reads ndjson frames from an io.Reader, producing one decoded
// json.RawMessage per call to Next. Partial trailing bytes are retained
// across chunk boundaries by the underlying bufio.Scanner.
type Decoder struct {
	scanner *bufio.Scanner
	onError ErrSink
}

// NewDecoder wraps r in an ndjson Decoder. onError may be nil, in which
// case malformed lines are silently skipped.
func NewDecoder(r io.Reader, onError ErrSink) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: scanner, onError: onError}
}

// Next blocks until the next well-formed ndjson frame is available,
// returns io.EOF when the stream is exhausted, or surfaces a read error.
// Lines that fail to parse as JSON are reported to onError and skipped
// rather than returned as an error, matching spec.md §4.1.
func (d *Decoder) Next() (json.RawMessage, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			if d.onError != nil {
				cp := make([]byte, len(line))
				copy(cp, line)
				d.onError(cp, fmt.Errorf("jsonrpc: invalid json frame"))
			}
			continue
		}
		msg := make(json.RawMessage, len(line))
		copy(msg, line)
		return msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Encoder serializes values as ndjson frames onto an io.Writer. All
// writers go through a single mutex so concurrent Encode calls never
// interleave a partial frame (spec.md §4.1 "writers serialize through a
// single outbound queue").
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder wraps w in an ndjson Encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v, appends a single '\n', and writes the result
// atomically with respect to other Encode calls.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal frame: %w", err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(data)
	if err != nil {
		return fmt.Errorf("jsonrpc: write frame: %w", err)
	}
	return nil
}
