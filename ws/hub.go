package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

const sendBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is already CORS-open; the frontend origin varies by
	// deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans scrape status events out to connected websocket clients.
// Delivery is best effort: a client whose send buffer is full is
// dropped rather than allowed to stall the scrapers.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client

	// snapshot provides the current per-site status sent to every new
	// connection.
	snapshot func() map[string]models.ScrapeStatus
}

func NewHub(snapshot func() map[string]models.ScrapeStatus) *Hub {
	return &Hub{
		clients:  make(map[string]*client),
		snapshot: snapshot,
	}
}

// SetSnapshot installs the status provider after construction. The hub
// and the orchestrator reference each other, so one side has to be
// wired late.
func (h *Hub) SetSnapshot(snapshot func() map[string]models.ScrapeStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = snapshot
}

// Broadcast sends a status event to every connected client.
func (h *Hub) Broadcast(ev models.StatusEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("ws: marshal status event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if !c.enqueue(payload) {
			log.Printf("ws: dropping slow client %s", id)
			delete(h.clients, id)
			c.close()
		}
	}
}

// ConnectionCount reports how many clients are attached.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP lets the hub be mounted directly on a router.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}

// ServeWS upgrades an HTTP request to a websocket subscription. A
// connection_id query parameter lets a client keep its identity across
// reconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}

	id := r.URL.Query().Get("connection_id")
	if id == "" {
		id = uuid.NewString()
	}

	c := &client{
		id:   id,
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if old, ok := h.clients[id]; ok {
		old.close()
	}
	h.clients[id] = c
	snapshot := h.snapshot
	h.mu.Unlock()
	log.Printf("ws: client connected: %s", id)

	go c.writePump()
	go c.readPump()

	c.sendJSON(map[string]any{
		"type":          "connection",
		"status":        "connected",
		"connection_id": id,
	})

	// New subscribers get the current state of every site immediately,
	// so the UI never starts blank.
	if snapshot != nil {
		for site, status := range snapshot() {
			c.sendJSON(models.StatusEvent{
				Type:       "scraping_status",
				TargetSite: site,
				Data:       status,
			})
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		c.close()
		log.Printf("ws: client disconnected: %s", c.id)
	}
}
