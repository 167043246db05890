package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/planner/services"
	"github.com/CrowderSoup/planner/tasks"
)

// WebSocketHandler connects owners to the hub for change notifications.
type WebSocketHandler struct {
	hub      *services.Hub
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *services.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}
}

// HandleWebSocket upgrades the HTTP connection to a WebSocket connection
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ownerID, err := tasks.RequireOwner(r.Context(), "websocket")
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	// Owners may keep several tabs or devices connected.
	client := services.NewClient(h.hub, conn, ownerID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
