package websocket

import (
	"net/http"
	"strings"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients. An empty origins list accepts any origin.
// Repeated or comma-separated kind query values limit which runs are sent.
func HandleWebSocket(hub *Hub, origins []string) http.HandlerFunc {
	opts := &ws.AcceptOptions{OriginPatterns: origins}
	if len(origins) == 0 {
		opts.InsecureSkipVerify = true
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, opts)
		if err != nil {
			hub.logger.Warn("websocket accept", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.CloseNow()

		var kinds []string
		for _, v := range r.URL.Query()["kind"] {
			kinds = append(kinds, strings.Split(v, ",")...)
		}
		hub.logger.Debug("websocket connected", "remote", r.RemoteAddr, "kinds", kinds)
		client := NewClient(hub, conn, kinds...)
		client.Run(r.Context())
	}
}
