package events

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_IngestPartitionsByDomain(t *testing.T) {
	agg := NewAggregator(10, nil)

	agg.Ingest("Network.requestWillBeSent", json.RawMessage(`{"requestId":"1"}`), "conn-a")
	agg.Ingest("Network.responseReceived", json.RawMessage(`{"requestId":"1"}`), "conn-b")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"error"}}`), "conn-a")

	assert.Equal(t, []string{"Log", "Network"}, agg.Domains())

	network := agg.Query("Network", Filter{OldestFirst: true})
	require.Len(t, network, 2)
	assert.Equal(t, "Network.requestWillBeSent", network[0].Method)
	assert.Equal(t, "Network.responseReceived", network[1].Method)

	// Storage is merged across connections, never keyed by source.
	assert.Equal(t, "conn-a", network[0].SourceConn)
	assert.Equal(t, "conn-b", network[1].SourceConn)
}

func TestAggregator_QueryUnknownDomain(t *testing.T) {
	agg := NewAggregator(10, nil)
	assert.Nil(t, agg.Query("Security", Filter{}))
}

func TestAggregator_SeverityExtraction(t *testing.T) {
	agg := NewAggregator(10, nil)

	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"error"}}`), "c")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"warning"}}`), "c")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"verbose"}}`), "c")

	recs := agg.Query("Log", Filter{OldestFirst: true})
	require.Len(t, recs, 3)
	assert.Equal(t, SeverityError, recs[0].Level)
	assert.Equal(t, SeverityWarn, recs[1].Level)
	assert.Equal(t, SeverityDebug, recs[2].Level)

	agg.Ingest("Runtime.exceptionThrown", json.RawMessage(`{}`), "c")
	runtime := agg.Query("Runtime", Filter{})
	require.Len(t, runtime, 1)
	assert.Equal(t, SeverityError, runtime[0].Level)
}

func TestAggregator_FilterMinLevel(t *testing.T) {
	agg := NewAggregator(10, nil)
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"verbose"}}`), "c")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"info"}}`), "c")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"error"}}`), "c")

	recs := agg.Query("Log", Filter{MinLevel: SeverityWarn})
	require.Len(t, recs, 1)
	assert.Equal(t, SeverityError, recs[0].Level)

	recs = agg.Query("Log", Filter{MinLevel: SeverityInfo})
	assert.Len(t, recs, 2)
}

func TestAggregator_FilterPattern(t *testing.T) {
	agg := NewAggregator(10, nil)
	agg.Ingest("Network.requestWillBeSent", json.RawMessage(`{"url":"https://example.com/app.js"}`), "c")
	agg.Ingest("Network.responseReceived", json.RawMessage(`{"url":"https://example.com/index.html"}`), "c")

	// Matches against the method name.
	recs := agg.Query("Network", Filter{Pattern: "responseReceived"})
	require.Len(t, recs, 1)
	assert.Equal(t, "Network.responseReceived", recs[0].Method)

	// Matches against the payload.
	recs = agg.Query("Network", Filter{Pattern: "app.js"})
	require.Len(t, recs, 1)
	assert.Equal(t, "Network.requestWillBeSent", recs[0].Method)

	assert.Empty(t, agg.Query("Network", Filter{Pattern: "no-such-substring"}))
}

func TestAggregator_FilterSince(t *testing.T) {
	agg := NewAggregator(10, nil)
	agg.Ingest("Page.frameNavigated", json.RawMessage(`{}`), "c")

	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)

	agg.Ingest("Page.loadEventFired", json.RawMessage(`{}`), "c")

	recs := agg.Query("Page", Filter{Since: cutoff})
	require.Len(t, recs, 1)
	assert.Equal(t, "Page.loadEventFired", recs[0].Method)
}

func TestAggregator_QueryLimitAndOrder(t *testing.T) {
	agg := NewAggregator(10, nil)
	for i := 0; i < 5; i++ {
		agg.Ingest("Page.frameNavigated", json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)), "c")
		time.Sleep(2 * time.Millisecond)
	}

	// Default order is most-recent-first.
	recs := agg.Query("Page", Filter{Limit: 2})
	require.Len(t, recs, 2)
	assert.JSONEq(t, `{"seq":4}`, string(recs[0].Params))
	assert.JSONEq(t, `{"seq":3}`, string(recs[1].Params))

	recs = agg.Query("Page", Filter{Limit: 2, OldestFirst: true})
	require.Len(t, recs, 2)
	assert.JSONEq(t, `{"seq":0}`, string(recs[0].Params))
	assert.JSONEq(t, `{"seq":1}`, string(recs[1].Params))
}

func TestAggregator_CapacityEviction(t *testing.T) {
	agg := NewAggregator(3, nil)
	for i := 0; i < 5; i++ {
		agg.Ingest("Console.messageAdded", json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)), "c")
	}

	recs := agg.Query("Console", Filter{OldestFirst: true})
	require.Len(t, recs, 3)
	assert.JSONEq(t, `{"seq":2}`, string(recs[0].Params))
	assert.JSONEq(t, `{"seq":4}`, string(recs[2].Params))
}

func TestAggregator_ClearIsPerDomain(t *testing.T) {
	agg := NewAggregator(10, nil)
	agg.Ingest("Network.requestWillBeSent", json.RawMessage(`{}`), "c")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"info"}}`), "c")

	agg.Clear("Network")

	assert.Empty(t, agg.Query("Network", Filter{}))
	assert.Len(t, agg.Query("Log", Filter{}), 1)

	// Clearing an unknown domain is a no-op, not a panic.
	agg.Clear("Security")

	// A cleared domain keeps accepting events.
	agg.Ingest("Network.responseReceived", json.RawMessage(`{}`), "c")
	assert.Len(t, agg.Query("Network", Filter{}), 1)
}

func TestAggregator_PublishesToHub(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	agg := NewAggregator(10, hub)

	ch, cancel := hub.Subscribe()
	defer cancel()

	agg.Ingest("Page.frameNavigated", json.RawMessage(`{"frame":"f1"}`), "conn-a")

	select {
	case rec := <-ch:
		assert.Equal(t, "Page.frameNavigated", rec.Method)
		assert.Equal(t, "Page", rec.Domain)
		assert.Equal(t, "conn-a", rec.SourceConn)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the ingested record")
	}
}

func TestAggregator_Fill(t *testing.T) {
	agg := NewAggregator(10, nil)
	agg.Ingest("Network.requestWillBeSent", json.RawMessage(`{}`), "c")
	agg.Ingest("Network.responseReceived", json.RawMessage(`{}`), "c")
	agg.Ingest("Log.entryAdded", json.RawMessage(`{"entry":{"level":"info"}}`), "c")

	assert.Equal(t, map[string]int{"Network": 2, "Log": 1}, agg.Fill())
}

func TestRecordIDsAreTimeSortable(t *testing.T) {
	agg := NewAggregator(10, nil)
	for i := 0; i < 3; i++ {
		agg.Ingest("Page.frameNavigated", nil, "c")
		time.Sleep(2 * time.Millisecond)
	}

	recs := agg.Query("Page", Filter{OldestFirst: true})
	require.Len(t, recs, 3)
	assert.Less(t, recs[0].ID, recs[1].ID)
	assert.Less(t, recs[1].ID, recs[2].ID)
}
