package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/funnyzak/reqreplay/internal/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// WebsocketHub fans session events out to live connections.
type WebsocketHub struct {
	logger  logger.Logger
	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
	done    chan struct{}

	upgrader websocket.Upgrader
}

// NewWebsocketHub creates a new hub.
func NewWebsocketHub(log logger.Logger) *WebsocketHub {
	return &WebsocketHub{
		logger:  log,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Upgrade upgrades the HTTP connection and sends greeting to the new
// client before it receives broadcasts.
func (h *WebsocketHub) Upgrade(w http.ResponseWriter, r *http.Request, greeting interface{}) (*websocket.Conn, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	// greeting and registration happen under one lock so no broadcast can
	// slip between them
	writeMu := &sync.Mutex{}
	h.mu.Lock()
	if greeting != nil {
		if err := h.write(conn, writeMu, greeting); err != nil {
			h.mu.Unlock()
			conn.Close()
			return nil, err
		}
	}
	h.clients[conn] = writeMu
	h.mu.Unlock()

	go h.readLoop(conn)
	go h.pingLoop(conn, writeMu)
	return conn, nil
}

// Clients returns the number of connected clients.
func (h *WebsocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebsocketHub) readLoop(conn *websocket.Conn) {
	defer h.unregister(conn)

	conn.SetReadLimit(1024)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebsocketHub) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			writeMu.Unlock()
			if err != nil {
				h.unregister(conn)
				return
			}
		case <-h.done:
			return
		}
	}
}

func (h *WebsocketHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}

func (h *WebsocketHub) write(conn *websocket.Conn, writeMu *sync.Mutex, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Broadcast sends event to all active connections.
func (h *WebsocketHub) Broadcast(event interface{}) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		targets[conn] = writeMu
	}
	h.mu.RUnlock()

	for conn, writeMu := range targets {
		if err := h.write(conn, writeMu, event); err != nil {
			h.logger.Warn("Failed to write to websocket client", "error", err)
			h.unregister(conn)
		}
	}
}

// Close terminates all connections.
func (h *WebsocketHub) Close() {
	h.mu.Lock()
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()

	for conn, writeMu := range clients {
		writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		writeMu.Unlock()
		conn.Close()
	}
}
