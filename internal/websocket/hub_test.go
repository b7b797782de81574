package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/eventsync/internal/model"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, kinds ...string) *Client {
	return NewClient(hub, nil, kinds...)
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastRun(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	run := model.Run{
		ID:         "run-1",
		Mode:       model.RunModeSync,
		Sync:       &model.SyncSummary{Fetched: 10, Inserted: 2},
		FinishedAt: time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	hub.Broadcast(RunFinished(run))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != "sync_finished" {
			t.Errorf("type = %s, want sync_finished", got.Type)
		}
		if got.RunID != "run-1" {
			t.Errorf("run id = %s, want run-1", got.RunID)
		}
		data, _ := got.Data.(map[string]any)
		if data["mode"] != "sync" {
			t.Errorf("data = %v", got.Data)
		}
	}
}

func TestLastFinishedReplayed(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Broadcast(NewMessage("sync", ActionStarted, "run-1", nil))

	early := mockClient(hub)
	hub.Register(early)
	select {
	case <-early.send:
		t.Fatal("started message should not be replayed")
	default:
	}

	hub.Broadcast(NewMessage("sync", ActionFinished, "run-1", nil))
	receive(t, early)

	late := mockClient(hub)
	hub.Register(late)
	if got := receive(t, late); got.Type != "sync_finished" || got.RunID != "run-1" {
		t.Errorf("replayed = %+v", got)
	}
}

func TestKindFilter(t *testing.T) {
	hub := NewHub(slog.Default())

	cleanupOnly := mockClient(hub, "cleanup", " ")
	all := mockClient(hub)
	hub.Register(cleanupOnly)
	hub.Register(all)

	hub.Broadcast(NewMessage("sync", ActionFinished, "run-1", nil))
	if got := receive(t, all); got.Type != "sync_finished" {
		t.Errorf("unfiltered client got %s", got.Type)
	}
	select {
	case <-cleanupOnly.send:
		t.Fatal("sync message delivered to a cleanup subscriber")
	default:
	}

	// The last finished run is a sync run, so a cleanup subscriber gets no replay.
	late := mockClient(hub, "cleanup")
	hub.Register(late)
	if hub.Replay(late) {
		t.Error("replayed a sync run to a cleanup subscriber")
	}

	hub.Broadcast(NewMessage("cleanup", ActionFinished, "run-2", nil))
	if got := receive(t, cleanupOnly); got.RunID != "run-2" {
		t.Errorf("cleanup subscriber got %+v", got)
	}
}

func TestReplay(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	if hub.Replay(c) {
		t.Error("replay before any finished run")
	}

	hub.Broadcast(NewMessage("sync", ActionFinished, "run-1", nil))
	receive(t, c)
	if !hub.Replay(c) {
		t.Fatal("replay = false after a finished run")
	}
	if got := receive(t, c); got.RunID != "run-1" {
		t.Errorf("replayed = %+v", got)
	}

	hub.Unregister(c)
	if hub.Replay(c) {
		t.Error("replayed to an unregistered client")
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", "", i))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", "", nil))

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}
	if hub.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", hub.Dropped())
	}

	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(NewMessage("test", ActionFinished, "", nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Broadcast(NewMessage("cleanup", ActionFinished, "run-0", nil))

	srv := httptest.NewServer(HandleWebSocket(hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	read := func() Message {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return m
	}

	if got := read(); got.Type != "cleanup_finished" {
		t.Errorf("first message = %s, want replayed cleanup_finished", got.Type)
	}

	hub.Broadcast(NewMessage("sync", ActionStarted, "run-1", nil))
	if got := read(); got.Type != "sync_started" {
		t.Errorf("second message = %s, want sync_started", got.Type)
	}
	conn.Close(ws.StatusNormalClosure, "")
}

func TestHandleWebSocketReplayRequest(t *testing.T) {
	hub := NewHub(slog.Default())
	hub.Broadcast(NewMessage("sync", ActionFinished, "run-1", nil))
	hub.Broadcast(NewMessage("cleanup", ActionFinished, "run-2", nil))

	srv := httptest.NewServer(HandleWebSocket(hub, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?kind=sync,cleanup", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	read := func() Message {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return m
	}

	if got := read(); got.RunID != "run-2" {
		t.Errorf("connect replay = %+v, want run-2", got)
	}
	if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"replay"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := read(); got.Type != "cleanup_finished" || got.RunID != "run-2" {
		t.Errorf("requested replay = %+v", got)
	}

	hub.Broadcast(NewMessage("notify", ActionFinished, "run-3", nil))
	hub.Broadcast(NewMessage("sync", ActionStarted, "run-4", nil))
	if got := read(); got.RunID != "run-4" {
		t.Errorf("next message = %+v, want run-4 with notify filtered out", got)
	}
	conn.Close(ws.StatusNormalClosure, "")
}
