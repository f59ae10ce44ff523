package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
	"github.com/odvcencio/cdpbridge/pkg/config"
	"github.com/odvcencio/cdpbridge/pkg/logging"
	"github.com/odvcencio/cdpbridge/pkg/transport"
)

// browserHarness fakes the browser side of the debug websocket. Every command
// gets an empty success reply unless the test scripts a failure, a delay, or
// a dropped reply for its method.
type browserHarness struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	calls   map[string]int
	fail    map[string]bool
	drop    map[string]bool
	stall   map[string]chan struct{}
	results map[string]json.RawMessage
}

func newBrowserHarness(t *testing.T) *browserHarness {
	h := &browserHarness{
		t:       t,
		calls:   make(map[string]int),
		fail:    make(map[string]bool),
		drop:    make(map[string]bool),
		stall:   make(map[string]chan struct{}),
		results: make(map[string]json.RawMessage),
	}
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *browserHarness) url() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *browserHarness) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	for {
		var req cdp.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		h.mu.Lock()
		h.calls[req.Method]++
		fail := h.fail[req.Method]
		drop := h.drop[req.Method]
		stall := h.stall[req.Method]
		result, scripted := h.results[req.Method]
		h.mu.Unlock()

		if stall != nil {
			<-stall
		}
		if drop {
			continue
		}
		resp := cdp.Response{ID: req.ID, Result: json.RawMessage(`{}`)}
		if scripted {
			resp.Result = result
		}
		if fail {
			resp.Result = nil
			resp.Error = &cdp.ErrorPayload{Code: -32000, Message: "injected failure"}
		}
		_ = conn.WriteJSON(resp)
	}
}

func (h *browserHarness) callCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[method]
}

func (h *browserHarness) failOn(method string) {
	h.mu.Lock()
	h.fail[method] = true
	h.mu.Unlock()
}

func (h *browserHarness) healOn(method string) {
	h.mu.Lock()
	delete(h.fail, method)
	h.mu.Unlock()
}

func (h *browserHarness) dropOn(method string) {
	h.mu.Lock()
	h.drop[method] = true
	h.mu.Unlock()
}

// stallOn holds every reply for method until unstallOn runs. Note the stalled
// socket reads nothing else while it waits.
func (h *browserHarness) stallOn(method string) {
	h.mu.Lock()
	h.stall[method] = make(chan struct{})
	h.mu.Unlock()
}

func (h *browserHarness) unstallOn(method string) {
	h.mu.Lock()
	if ch, ok := h.stall[method]; ok && ch != nil {
		close(ch)
		h.stall[method] = nil
	}
	h.mu.Unlock()
}

// closeConn severs the server side of the i-th accepted socket.
func (h *browserHarness) closeConn(i int) {
	h.mu.Lock()
	conn := h.conns[i]
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *browserHarness) resultFor(method, result string) {
	h.mu.Lock()
	h.results[method] = json.RawMessage(result)
	h.mu.Unlock()
}

// waitForConns blocks until the server side has registered n sockets. The
// dialer returns after the client handshake, which can race the handler's
// bookkeeping.
func (h *browserHarness) waitForConns(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.conns) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *browserHarness) emitEvent(method, params string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		_ = conn.WriteJSON(map[string]any{
			"method": method,
			"params": json.RawMessage(params),
		})
	}
}

func testLogger() *logging.Logger {
	return logging.NewLogger("test", slog.LevelError)
}

// nopSink discards unsolicited events in tests that only care about the pool.
type nopSink struct{}

func (nopSink) Ingest(string, json.RawMessage, string) {}

func harnessDialer(h *browserHarness, sink transport.EventSink) DialFunc {
	return func(ctx context.Context) (*transport.Conn, error) {
		return transport.Dial(ctx, h.url(), sink, testLogger())
	}
}

func newTestPool(t *testing.T, h *browserHarness, size int) *Pool {
	t.Helper()
	pool, err := NewPool(context.Background(), size, harnessDialer(h, nopSink{}), testLogger())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func testDomainConfig(idle, sweep time.Duration) config.DomainConfig {
	return config.DomainConfig{
		SweepInterval: sweep,
		IdleTimeouts:  config.TierTimeouts{Low: idle, Medium: idle, High: idle},
	}
}

func testBridgeConfig(endpoint string, poolSize int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.Pool.Size = poolSize
	cfg.Pool.AcquireTimeout = 500 * time.Millisecond
	cfg.Commands.Timeout = 2 * time.Second
	cfg.Commands.ActivationTimeout = 2 * time.Second
	cfg.Domains.SweepInterval = time.Hour
	cfg.Events.BufferCapacity = 50
	return cfg
}

func newTestBridge(t *testing.T, h *browserHarness, poolSize int) *Bridge {
	t.Helper()
	b, err := New(context.Background(), testBridgeConfig(h.url(), poolSize), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}
