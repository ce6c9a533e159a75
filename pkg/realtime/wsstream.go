package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/config"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

// WebsocketStream is the production ChangeStream. Each Open dials the
// backend realtime endpoint, announces the (table, filter) subscription
// with a single JSON envelope, and decodes incoming envelopes into
// ChangeEvents.
type WebsocketStream struct {
	cfg    config.RealtimeConfig
	dialer *websocket.Dialer
	logger *logging.ColoredLogger
}

// NewWebsocketStream creates a websocket-backed change stream.
func NewWebsocketStream(cfg config.RealtimeConfig, logger *logging.ColoredLogger) *WebsocketStream {
	return &WebsocketStream{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// subscribeEnvelope announces the rows a connection wants to watch.
type subscribeEnvelope struct {
	Action string `json:"action"`
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
}

// eventEnvelope is the wire shape of one change notification.
type eventEnvelope struct {
	Type  string `json:"type"`
	Table string `json:"table"`
	New   Row    `json:"new,omitempty"`
	Old   Row    `json:"old,omitempty"`
}

// Open implements ChangeStream.
func (s *WebsocketStream) Open(ctx context.Context, table string, filter *Filter) (StreamConn, error) {
	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("apikey", s.cfg.APIKey)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, err
	}

	sub := subscribeEnvelope{Action: "subscribe", Table: table}
	if filter != nil {
		sub.Column = filter.Column
		sub.Value = filter.Value
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout()))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return nil, err
	}

	s.logger.ComponentDebug(logging.ComponentRealtime, "change stream opened",
		zap.String("table", table),
		zap.String("key", ChannelKey(table, filter)))

	wc := &wsConn{
		conn:         conn,
		table:        table,
		events:       make(chan ChangeEvent, 128),
		errs:         make(chan error, 1),
		done:         make(chan struct{}),
		heartbeat:    s.heartbeat(),
		pongWait:     2 * s.heartbeat(),
		writeTimeout: s.writeTimeout(),
		logger:       s.logger,
	}
	go wc.readLoop()
	go wc.heartbeatLoop()
	return wc, nil
}

func (s *WebsocketStream) writeTimeout() time.Duration {
	if s.cfg.WriteTimeout > 0 {
		return s.cfg.WriteTimeout
	}
	return 10 * time.Second
}

func (s *WebsocketStream) heartbeat() time.Duration {
	if s.cfg.HeartbeatInterval > 0 {
		return s.cfg.HeartbeatInterval
	}
	return 30 * time.Second
}

// wsConn wraps one websocket connection to the change feed.
type wsConn struct {
	conn         *websocket.Conn
	table        string
	events       chan ChangeEvent
	errs         chan error
	done         chan struct{}
	closeOnce    sync.Once
	heartbeat    time.Duration
	pongWait     time.Duration
	writeTimeout time.Duration
	logger       *logging.ColoredLogger
}

// Events implements StreamConn.
func (c *wsConn) Events() <-chan ChangeEvent { return c.events }

// Errs implements StreamConn.
func (c *wsConn) Errs() <-chan error { return c.errs }

// Close implements StreamConn. Closing locally suppresses the error the
// read loop observes when the socket goes away.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close()
	})
	return nil
}

func (c *wsConn) readLoop() {
	defer close(c.events)

	// A peer that stops answering pings (and sends nothing else) trips
	// the read deadline, so a half-dead connection surfaces as a drop.
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally, not a drop.
			default:
				c.errs <- err
			}
			return
		}
		// Data frames prove liveness as well as pongs.
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.ComponentWarn(logging.ComponentRealtime, "undecodable change feed frame",
				zap.String("table", c.table),
				zap.Error(err))
			continue
		}
		if env.Type == "" {
			// Heartbeat acks and subscription acks carry no event type.
			continue
		}

		table := env.Table
		if table == "" {
			table = c.table
		}
		ev := ChangeEvent{
			Table: table,
			Type:  EventType(env.Type),
			New:   env.New,
			Old:   env.Old,
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// A failed heartbeat means the connection is gone; closing
				// the socket makes the read loop surface the drop.
				c.conn.Close()
				return
			}
		}
	}
}
