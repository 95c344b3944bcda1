// pkg/server/hub.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/util"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Hub fans session notifications out to connected websocket clients and
// feeds inbound position fixes into the manager. A typical deployment
// has one client (the phone app); walksim and debugging dashboards make
// more.
type Hub struct {
	mu      util.LoggingMutex
	clients map[*hubClient]interface{}
	onFix   func(nav.Position)
	lg      *log.Logger

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
}

type hubClient struct {
	send      chan []byte
	connected time.Time
}

// inboundMessage is what clients may send up the socket. Only position
// fixes are accepted; control operations go through the REST API.
type inboundMessage struct {
	Type     string       `json:"type"`
	Position nav.Position `json:"position"`
}

func NewHub(onFix func(nav.Position), lg *log.Logger) *Hub {
	return &Hub{
		clients: make(map[*hubClient]interface{}),
		onFix:   onFix,
		lg:      lg,
	}
}

// RegisterRoutes installs the upgrade middleware and the socket endpoint.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.handleClient))
}

func (h *Hub) handleClient(c *websocket.Conn) {
	client := &hubClient{
		send:      make(chan []byte, 64),
		connected: time.Now(),
	}

	h.mu.Lock(h.lg)
	h.clients[client] = nil
	n := len(h.clients)
	h.mu.Unlock(h.lg)
	h.lg.Info("websocket client connected", slog.Int("clients", n))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			h.messagesSent.Add(1)
		}
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		h.messagesReceived.Add(1)
		h.handleMessage(data)
	}

	h.mu.Lock(h.lg)
	delete(h.clients, client)
	n = len(h.clients)
	h.mu.Unlock(h.lg)
	close(client.send)
	<-done
	h.lg.Info("websocket client disconnected", slog.Int("clients", n))
}

func (h *Hub) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.lg.Warnf("unparseable websocket message: %v", err)
		return
	}

	switch msg.Type {
	case "position":
		if h.onFix != nil {
			h.onFix(msg.Position)
		}
	default:
		h.lg.Warnf("unexpected websocket message type %q", msg.Type)
	}
}

// Broadcast sends a payload to every connected client. Slow clients
// have the message dropped rather than stalling the rest.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
		}
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.lg.Errorf("marshaling broadcast: %v", err)
		return
	}
	h.Broadcast(payload)
}

func (h *Hub) ClientCount() int {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)
	return len(h.clients)
}

// HubStats is reported on the stats endpoint.
type HubStats struct {
	Clients          int    `json:"clients"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:          h.ClientCount(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesReceived: h.messagesReceived.Load(),
	}
}
