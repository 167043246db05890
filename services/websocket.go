package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pings, so keep reads small.
	maxMessageSize = 4 * 1024
)

// Message types sent over the socket.
const (
	TypeTasksChanged = "tasks.changed"
	TypePing         = "ping"
	TypePong         = "pong"
)

// Client is one websocket connection of an owner.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	OwnerID string
}

// NewClient wraps conn for ownerID.
func NewClient(hub *Hub, conn *websocket.Conn, ownerID string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 16), OwnerID: ownerID}
}

// WebSocketMessage is the envelope for every frame.
type WebSocketMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ReadPump reads until the connection fails, answering pings.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			log.Printf("Error unmarshalling WebSocket message: %v", err)
			continue
		}
		if wsMessage.Type != TypePing {
			continue
		}

		pong, err := json.Marshal(WebSocketMessage{
			Type: TypePong,
			Data: map[string]string{"timestamp": time.Now().Format(time.RFC3339)},
		})
		if err != nil {
			continue
		}
		c.Hub.sendTo(c, pong)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON message per frame.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type delivery struct {
	ownerID string
	client  *Client
	message []byte
}

// Hub tracks connected clients and delivers messages to one owner's
// connections at a time.
type Hub struct {
	clients    map[*Client]bool
	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	count      chan chan map[string]int
	done       chan struct{}
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		deliver:    make(chan delivery, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan map[string]int),
		done:       make(chan struct{}),
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify sends message to every connection of ownerID.
func (h *Hub) Notify(ownerID string, message WebSocketMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	h.send(delivery{ownerID: ownerID, message: data})
}

// TasksChanged tells ownerID's connections to reload.
func (h *Hub) TasksChanged(ownerID string) {
	h.Notify(ownerID, WebSocketMessage{Type: TypeTasksChanged})
}

func (h *Hub) sendTo(c *Client, message []byte) {
	h.send(delivery{client: c, message: message})
}

func (h *Hub) send(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

// Connections returns the number of live connections per owner.
func (h *Hub) Connections() map[string]int {
	reply := make(chan map[string]int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Run serves the hub until ctx is done, then closes every client. Run
// must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("Client connected: %s", client.OwnerID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Printf("Client disconnected: %s", client.OwnerID)
			}
		case reply := <-h.count:
			counts := make(map[string]int)
			for client := range h.clients {
				counts[client.OwnerID]++
			}
			reply <- counts
		case d := <-h.deliver:
			for client := range h.clients {
				if d.client != nil && client != d.client {
					continue
				}
				if d.client == nil && client.OwnerID != d.ownerID {
					continue
				}
				select {
				case client.Send <- d.message:
				default:
					log.Printf("Client send buffer full, removing client: %s", client.OwnerID)
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}
