package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/realtime"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For early development we accept any origin; tighten later.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope is the shape each relayed change event takes on the wire.
type wsEnvelope struct {
	Event     string       `json:"event"`
	Table     string       `json:"table"`
	New       realtime.Row `json:"new,omitempty"`
	Old       realtime.Row `json:"old,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// wsHandler upgrades to a websocket, subscribes to the requested table's
// change events, and relays each one to the client as a JSON envelope
// until the client goes away.
func (g *Gateway) wsHandler(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		g.logger.ComponentWarn(logging.ComponentGateway, "realtime ws: missing table")
		writeError(w, http.StatusBadRequest, "missing 'table'")
		return
	}
	var filter *realtime.Filter
	if column := r.URL.Query().Get("column"); column != "" {
		filter = &realtime.Filter{Column: column, Value: r.URL.Query().Get("value")}
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "realtime ws: upgrade failed")
		return
	}
	defer conn.Close()

	// Channel to deliver envelopes to the websocket writer.
	msgs := make(chan []byte, 128)
	relay := func(ev realtime.ChangeEvent) {
		payload, err := json.Marshal(wsEnvelope{
			Event:     string(ev.Type),
			Table:     ev.Table,
			New:       ev.New,
			Old:       ev.Old,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			return
		}
		select {
		case msgs <- payload:
		default:
			// Slow client; dropping here beats stalling the channel's
			// dispatch for every other consumer.
			g.logger.ComponentWarn(logging.ComponentGateway, "realtime ws: client too slow, dropping event",
				zap.String("table", ev.Table))
		}
	}

	failed := make(chan error, 1)
	sub, err := g.manager.Subscribe(r.Context(), table, realtime.Handlers{
		OnInsert: relay,
		OnUpdate: relay,
		OnDelete: relay,
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	}, filter)
	if err != nil {
		g.logger.ComponentWarn(logging.ComponentGateway, "realtime ws: subscribe failed",
			zap.String("table", table),
			zap.Error(err))
		deadline := time.Now().Add(5 * time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscribe failed"), deadline)
		return
	}
	defer g.manager.Unsubscribe(sub)

	g.logger.ComponentInfo(logging.ComponentGateway, "realtime ws: client attached",
		zap.String("key", sub.Key()))

	// Reader goroutine: the client sends nothing we care about, but the
	// read loop notices when it disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(30 * time.Second)
	defer pinger.Stop()

	for {
		select {
		case <-clientGone:
			return
		case err := <-failed:
			g.logger.ComponentWarn(logging.ComponentGateway, "realtime ws: channel failed, closing client",
				zap.String("key", sub.Key()),
				zap.Error(err))
			deadline := time.Now().Add(5 * time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "channel failed"), deadline)
			return
		case payload := <-msgs:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-pinger.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
