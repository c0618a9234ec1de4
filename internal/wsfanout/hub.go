// Package wsfanout implements InferenceFanout: a gorilla/websocket hub
// that pushes published inference results to subscribers of a session
// code. Follows a Register/Unregister/Broadcast channel Hub pattern
// (one Send channel per client, single WritePump goroutine), reworked
// from named "rooms" of arbitrary JSON commands into per-code
// inference subscriber sets.
package wsfanout

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if os.Getenv("ENVIRONMENT") != "production" {
			return true
		}
		return false
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type client struct {
	conn *websocket.Conn
	code string
	send chan []byte
}

// Hub fans published per-code inference results out to every
// subscriber of that code.
type Hub struct {
	subscribers map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan codeMessage
}

type codeMessage struct {
	code string
	body []byte
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*client]bool),
		register:    make(chan *client),
		unregister:  make(chan *client),
		broadcast:   make(chan codeMessage, 64),
	}
}

// Run drives the hub's single-goroutine state machine; call it once
// from the supervisor's main goroutine group.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			set, ok := h.subscribers[c.code]
			if !ok {
				set = make(map[*client]bool)
				h.subscribers[c.code] = set
			}
			set[c] = true

		case c := <-h.unregister:
			if set, ok := h.subscribers[c.code]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
					if len(set) == 0 {
						delete(h.subscribers, c.code)
					}
				}
			}

		case msg := <-h.broadcast:
			set, ok := h.subscribers[msg.code]
			if !ok {
				continue
			}
			for c := range set {
				select {
				case c.send <- msg.body:
				default:
					close(c.send)
					delete(set, c)
				}
			}
			if len(set) == 0 {
				delete(h.subscribers, msg.code)
			}
		}
	}
}

// inferenceUpdate is the wire message emitted to subscribers of a
// code's inference channel, used with Type "inference_update" (Publish)
// and "no_data" (PublishNoData).
type inferenceUpdate struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publish pushes result to every subscriber of code.
func (h *Hub) Publish(code string, result interface{}) {
	body, err := json.Marshal(inferenceUpdate{Type: "inference_update", Data: result})
	if err != nil {
		log.Printf("wsfanout: marshal inference update code=%s: %v", code, err)
		return
	}
	select {
	case h.broadcast <- codeMessage{code: code, body: body}:
	default:
		log.Printf("wsfanout: broadcast channel full, dropping update code=%s", code)
	}
}

// PublishNoData pushes a heartbeat to subscribers of code when no
// fresh inference result exists yet.
func (h *Hub) PublishNoData(code string) {
	body, _ := json.Marshal(inferenceUpdate{Type: "no_data"})
	select {
	case h.broadcast <- codeMessage{code: code, body: body}:
	default:
	}
}

// ServeHTTP upgrades the connection and subscribes it to code's
// inference updates until the client disconnects.
func (h *Hub) ServeHTTP(code string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("wsfanout: upgrade failed code=%s: %v", code, err)
			return
		}
		c := &client{conn: conn, code: code, send: make(chan []byte, 16)}
		h.register <- c
		go h.writePump(c)
		h.readPump(c)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
