package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
)

// RequestHandler answers an inbound JSON-RPC request (the agent calling
// back on the client, e.g. session/request_permission). It may suspend
// for an unbounded time — Conn dispatches requests on their own goroutine
// precisely so a long-suspended handler never blocks the read loop.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (result any, rpcErr *Error)

// NotificationHandler answers an inbound JSON-RPC notification (e.g.
// session/update). It is invoked synchronously from the read loop and
// must not suspend, preserving the arrival-order dispatch guarantee of
// spec.md §5.
type NotificationHandler func(method string, params json.RawMessage)

type pendingRequest struct {
	ch   chan *Response
	once sync.Once
}

func (p *pendingRequest) deliver(resp *Response) {
	p.once.Do(func() {
		p.ch <- resp
		close(p.ch)
	})
}

// Conn is the JSON-RPC 2.0 multiplexer of spec.md §4.2: it assigns
// monotonically increasing ids to outbound requests, correlates inbound
// responses to the matching PendingRequest, and dispatches inbound
// requests/notifications to registered handlers. Grounded on
// pkg/codex/client.go's Call/Notify/pending-map/normalizeID/handleResponse,
// generalized off Codex's single-client shape into a reusable two-sided
// connection.
type Conn struct {
	enc *Encoder
	dec *Decoder

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]*pendingRequest

	onRequest      RequestHandler
	onNotification NotificationHandler

	log *corelog.Logger

	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error
}

// New wires a Conn over an already-established stdin writer / stdout
// reader pair (typically the Transport's piped subprocess streams).
// Malformed ndjson lines are logged through log and otherwise ignored
// (spec.md §4.1).
func New(w io.Writer, r io.Reader, log *corelog.Logger) *Conn {
	if log == nil {
		log = corelog.Default()
	}
	c := &Conn{
		pending: make(map[int64]*pendingRequest),
		log:     log.WithComponent("jsonrpc"),
		closeCh: make(chan struct{}),
	}
	c.enc = NewEncoder(w)
	c.dec = NewDecoder(r, func(line []byte, err error) {
		c.log.Warn("dropped malformed ndjson frame", corelog.Field("error", err.Error()))
	})
	return c
}

// SetRequestHandler registers the handler invoked for inbound requests.
func (c *Conn) SetRequestHandler(h RequestHandler) { c.onRequest = h }

// SetNotificationHandler registers the handler invoked for inbound
// notifications.
func (c *Conn) SetNotificationHandler(h NotificationHandler) { c.onNotification = h }

// Call sends a request and blocks until a matching response arrives, the
// context is cancelled, or the connection closes. It sets no deadline of
// its own (as needed for authenticate/session/prompt per spec.md §4.3);
// use CallWithTimeout for a per-request deadline.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.call(ctx, method, params, 0)
}

// CallWithTimeout is Call with an explicit per-request deadline.
func (c *Conn) CallWithTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	return c.call(ctx, method, params, timeout)
}

func (c *Conn) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	select {
	case <-c.closeCh:
		return nil, acperr.New(acperr.KindTransportClosed, "connection closed")
	default:
	}

	id := c.nextID.Add(1)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		paramsJSON = data
	}

	pr := &pendingRequest{ch: make(chan *Response, 1)}
	c.mu.Lock()
	c.pending[id] = pr
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := &Request{JSONRPC: Version, ID: id, Method: method, Params: paramsJSON}
	if err := c.enc.Encode(req); err != nil {
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case resp := <-pr.ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutCh:
		return nil, acperr.New(acperr.KindTimeout, fmt.Sprintf("request %q timed out after %s", method, timeout))
	case <-c.closeCh:
		return nil, acperr.New(acperr.KindTransportClosed, "connection closed")
	}
}

// Notify sends a fire-and-forget notification; no response is awaited
// (spec.md §4.7's session/cancel).
func (c *Conn) Notify(method string, params any) error {
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("jsonrpc: marshal params: %w", err)
		}
		paramsJSON = data
	}
	return c.enc.Encode(&Notification{JSONRPC: Version, Method: method, Params: paramsJSON})
}

// Respond sends a response to an inbound request, used by RequestHandler
// implementations that answer asynchronously.
func (c *Conn) Respond(id json.RawMessage, result any, rpcErr *Error) error {
	resp := &Response{JSONRPC: Version, ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("jsonrpc: marshal result: %w", err)
		}
		resp.Result = data
	} else {
		resp.Result = json.RawMessage("null")
	}
	return c.enc.Encode(resp)
}

// Run drives the read loop until the stream ends, ctx is cancelled, or
// Close is called. It returns the terminal error (io.EOF on a clean
// subprocess-closed-stdout exit).
func (c *Conn) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeCh:
			return c.closeErr
		default:
		}

		raw, err := c.dec.Next()
		if err != nil {
			return err
		}
		c.dispatch(ctx, raw)
	}
}

func (c *Conn) dispatch(ctx context.Context, raw json.RawMessage) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Warn("failed to sniff frame shape", corelog.Field("error", err.Error()))
		return
	}

	hasID := len(msg.ID) > 0 && string(msg.ID) != "null"
	hasMethod := msg.Method != ""
	hasResultOrError := msg.Result != nil || msg.Error != nil

	switch {
	case hasID && !hasMethod && hasResultOrError:
		c.handleResponse(&Response{ID: msg.ID, Result: msg.Result, Error: msg.Error})
	case hasID && hasMethod:
		c.handleRequest(ctx, msg.ID, msg.Method, msg.Params)
	case hasMethod && !hasID:
		c.handleNotification(msg.Method, msg.Params)
	default:
		c.log.Warn("dropped frame matching no JSON-RPC shape")
	}
}

func (c *Conn) handleResponse(resp *Response) {
	id, ok := normalizeID(resp.ID)
	if !ok {
		c.log.Warn("response carried non-numeric id")
		return
	}
	c.mu.Lock()
	pr, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("received response for unknown request", corelog.Field("id", id))
		return
	}
	pr.deliver(resp)
}

// handleRequest dispatches on its own goroutine so a handler that
// suspends (permission arbitration, terminal wait) never blocks the read
// loop from delivering subsequent notifications (spec.md §5).
func (c *Conn) handleRequest(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
	if c.onRequest == nil {
		_ = c.Respond(id, nil, &Error{Code: ErrCodeMethodNotFound, Message: "method not found: " + method})
		return
	}
	go func() {
		result, rpcErr := c.onRequest(ctx, method, params)
		if err := c.Respond(id, result, rpcErr); err != nil {
			c.log.Warn("failed to send response", corelog.Field("error", err.Error()))
		}
	}()
}

func (c *Conn) handleNotification(method string, params json.RawMessage) {
	if c.onNotification == nil {
		return
	}
	c.onNotification(method, params)
}

// Close completes every pending request with a transport-closed error
// and stops the read loop. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = acperr.New(acperr.KindTransportClosed, "connection closed")
		close(c.closeCh)

		c.mu.Lock()
		pending := make([]*pendingRequest, 0, len(c.pending))
		for _, pr := range c.pending {
			pending = append(pending, pr)
		}
		c.pending = make(map[int64]*pendingRequest)
		c.mu.Unlock()

		for _, pr := range pending {
			pr.deliver(&Response{Error: &Error{Code: ErrCodeInternalError, Message: "transport closed"}})
		}
	})
	return nil
}

// normalizeID coerces a JSON-encoded id (number or string) back to the
// int64 this Conn assigned it, mirroring pkg/codex/client.go's
// normalizeID float64-vs-json.Number handling.
func normalizeID(raw json.RawMessage) (int64, bool) {
	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return asInt, true
	}
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err == nil {
		return int64(asFloat), true
	}
	return 0, false
}

// ErrClosed is returned by ndjson encode/decode plumbing layered above a
// closed Conn.
var ErrClosed = acperr.New(acperr.KindTransportClosed, "connection closed")
