package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/planner/services"
)

// Watch connects to the server's websocket and calls onChange for every
// change notification until ctx is done or the connection fails. It
// returns nil when ctx ends the watch.
func (r *Repository) Watch(ctx context.Context, onChange func()) error {
	wsURL := r.baseURL + "/api/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if r.token != "" {
		header.Set("Authorization", "Bearer "+r.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return responseError("watch", resp)
		}
		return fmt.Errorf("failed to connect websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		var msg services.WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == services.TypeTasksChanged {
			onChange()
		}
	}
}
