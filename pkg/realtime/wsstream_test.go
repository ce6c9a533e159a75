package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/config"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

var testUpgrader = websocket.Upgrader{}

func newWebsocketStream(t *testing.T, url string) *WebsocketStream {
	t.Helper()

	logger, err := logging.NewColoredLogger(logging.ComponentGeneral, false)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return NewWebsocketStream(config.RealtimeConfig{
		URL:               url,
		APIKey:            "test-key",
		HeartbeatInterval: 20 * time.Millisecond,
		WriteTimeout:      time.Second,
	}, logger)
}

func wsTestURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebsocketStreamDeliversEvents(t *testing.T) {
	subscribed := make(chan subscribeEnvelope, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("expected apikey header, got %q", got)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeEnvelope
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub

		conn.WriteJSON(eventEnvelope{
			Type:  "INSERT",
			Table: sub.Table,
			New:   Row{"id": "p1", "agent_type": sub.Value},
		})

		// Keep reading so the client's pings are answered with pongs.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream := newWebsocketStream(t, wsTestURL(server))
	conn, err := stream.Open(context.Background(), TablePendingProducts,
		&Filter{Column: ColumnAgentType, Value: "weight_dimension"})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conn.Close()

	select {
	case sub := <-subscribed:
		if sub.Action != "subscribe" || sub.Table != TablePendingProducts ||
			sub.Column != ColumnAgentType || sub.Value != "weight_dimension" {
			t.Errorf("unexpected subscribe envelope: %+v", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the subscribe envelope")
	}

	select {
	case ev := <-conn.Events():
		if ev.Type != EventInsert || ev.Table != TablePendingProducts {
			t.Errorf("unexpected event: %+v", ev)
		}
		if id, _ := ev.New.PrimaryKey(); id != "p1" {
			t.Errorf("unexpected row: %+v", ev.New)
		}
	case err := <-conn.Errs():
		t.Fatalf("unexpected connection error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}

	// A local close is not a drop: nothing may appear on Errs.
	conn.Close()
	select {
	case err := <-conn.Errs():
		t.Errorf("local close must report nothing, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebsocketStreamDetectsSilentPeer(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeEnvelope
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		// Go silent: the socket stays open but nothing is read, so the
		// client's pings are never answered.
		<-hold
	}))
	defer server.Close()

	stream := newWebsocketStream(t, wsTestURL(server))
	conn, err := stream.Open(context.Background(), TableAgents, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-conn.Errs():
		if err == nil {
			t.Fatal("expected a non-nil drop error")
		}
	case ev, ok := <-conn.Events():
		if ok {
			t.Fatalf("unexpected event from a silent peer: %+v", ev)
		}
		// Events closed on death; the drop reason must be on Errs.
		select {
		case err := <-conn.Errs():
			if err == nil {
				t.Fatal("expected a non-nil drop error")
			}
		case <-time.After(time.Second):
			t.Fatal("dead connection reported no error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("half-dead peer was never reported as a drop")
	}
}
