package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// RequestReplay is the one message a dashboard may send: it asks for the
// last finished run summary again.
const RequestReplay = "replay"

// request is an inbound dashboard message.
type request struct {
	Type string `json:"type"`
}

// Client is one dashboard connection. A client subscribed to no kinds
// receives every run kind.
type Client struct {
	hub   *Hub
	conn  *ws.Conn
	send  chan []byte
	kinds map[string]bool
}

// NewClient creates a Client tied to the given hub and connection, limited
// to the given run kinds.
func NewClient(hub *Hub, conn *ws.Conn, kinds ...string) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	for _, k := range kinds {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if c.kinds == nil {
			c.kinds = make(map[string]bool)
		}
		c.kinds[k] = true
	}
	return c
}

// Accepts reports whether messages about kind are delivered to c.
func (c *Client) Accepts(kind string) bool {
	return len(c.kinds) == 0 || c.kinds[kind]
}

// Run registers the client, starts the write loop, and serves replay
// requests until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			c.hub.logger.Debug("websocket request ignored", "error", err)
			continue
		}
		if req.Type == RequestReplay && !c.hub.Replay(c) {
			c.hub.logger.Debug("websocket replay: no finished run yet")
		}
	}
}

// writeLoop delivers queued run messages and pings the peer so dead
// dashboards are noticed between runs.
func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusGoingAway, "unsubscribed")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, ws.MessageText, msg)
			cancel()
			if err != nil {
				c.hub.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
