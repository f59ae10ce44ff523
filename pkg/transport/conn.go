// Package transport owns one websocket session to the browser debug
// endpoint: framing, command/reply correlation, and the per-connection read
// loop that separates correlated replies from unsolicited events.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
	"github.com/odvcencio/cdpbridge/pkg/logging"
	"github.com/odvcencio/cdpbridge/pkg/metrics"
)

// State tracks pool-visible connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateInUse
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// EventSink receives unsolicited events from the read loop. Implemented by
// the event aggregator; ingestion must never block on caller activity.
type EventSink interface {
	Ingest(method string, params json.RawMessage, sourceConn string)
}

// Conn is one persistent socket session to the debugged browser. It is owned
// exclusively by the pool; exactly one dispatcher holds it at a time, though
// the correlation table also admits domain activation commands issued by the
// lifecycle manager while a dispatch is in flight.
type Conn struct {
	id   string
	ws   *websocket.Conn
	sink EventSink
	log  *logging.Logger

	writeMu sync.Mutex // serializes frame writes on the socket

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan cdp.Response

	state      atomic.Int32
	lastActive atomic.Int64 // unix nanos

	dead     chan struct{}
	deadOnce sync.Once
}

// Dial opens a websocket session to the debug endpoint and starts the read
// loop. The returned connection is Idle.
func Dial(ctx context.Context, endpoint string, sink EventSink, log *logging.Logger) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		id:      uuid.NewString(),
		ws:      ws,
		sink:    sink,
		pending: make(map[int64]chan cdp.Response),
		dead:    make(chan struct{}),
	}
	c.log = log.WithConn(c.id)
	c.touch()

	go c.readLoop()
	return c, nil
}

// ID returns the connection's identity, used for diagnostics only.
func (c *Conn) ID() string { return c.id }

// State returns the pool-visible state.
func (c *Conn) State() State { return State(c.state.Load()) }

// SetState is called by the pool on checkout/checkin. A dead connection
// never leaves the dead state.
func (c *Conn) SetState(s State) {
	if c.State() == StateDead {
		return
	}
	c.state.Store(int32(s))
}

// LastActive returns the time of the last frame sent or received.
func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Healthy reports whether the socket is still usable.
func (c *Conn) Healthy() bool { return c.State() != StateDead }

// Dead returns a channel closed when the socket fails.
func (c *Conn) Dead() <-chan struct{} { return c.dead }

// SendAndAwait writes a command frame and blocks until the correlated reply
// arrives, the context expires, or the socket dies. On timeout the pending
// entry is removed so a late reply is discarded by the read loop instead of
// leaking.
func (c *Conn) SendAndAwait(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if !c.Healthy() {
		return nil, cdp.ErrTransportDead
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan cdp.Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := cdp.Request{ID: id, Method: method, Params: params}

	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		c.markDead()
		return nil, cdp.ErrTransportDead
	}

	c.touch()
	c.log.CommandSent(c.id, id, method)

	select {
	case resp := <-ch:
		c.touch()
		if resp.Error != nil {
			return nil, &cdp.CommandError{Method: method, Payload: *resp.Error}
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.removePending(id)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, cdp.ErrCommandTimeout
	case <-c.dead:
		c.removePending(id)
		return nil, cdp.ErrTransportDead
	}
}

// Close shuts the socket down. Any in-flight waiter observes TransportDead.
func (c *Conn) Close() error {
	c.markDead()
	return nil
}

// readLoop continuously parses incoming frames. Frames carrying a recognized
// id fulfill the matching waiter; frames without an id are unsolicited events
// forwarded to the sink, never to a waiting caller.
func (c *Conn) readLoop() {
	defer c.markDead()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		var frame cdp.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("unparseable frame dropped", "error", err)
			continue
		}

		if frame.IsEvent() {
			c.sink.Ingest(frame.Method, frame.Params, c.id)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.ID]
		if ok {
			delete(c.pending, frame.ID)
		}
		c.mu.Unlock()

		if !ok {
			// The waiter timed out and was removed, or the frame carries an
			// id this connection never issued.
			c.log.LateReply(c.id, frame.ID)
			metrics.LateReplies.Inc()
			continue
		}

		ch <- cdp.Response{ID: frame.ID, Result: frame.Result, Error: frame.Error}
	}
}

func (c *Conn) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) markDead() {
	c.deadOnce.Do(func() {
		c.state.Store(int32(StateDead))
		close(c.dead)
		_ = c.ws.Close()
	})
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}
