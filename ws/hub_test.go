package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestConnectSendsWelcomeAndSnapshot(t *testing.T) {
	hub := NewHub(func() map[string]models.ScrapeStatus {
		return map[string]models.ScrapeStatus{
			"jiji": {TargetSite: "jiji", Status: models.StateIdle},
		}
	})

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	welcome := readMessage(t, conn)
	if welcome["type"] != "connection" || welcome["status"] != "connected" {
		t.Fatalf("unexpected welcome: %v", welcome)
	}
	if welcome["connection_id"] == "" {
		t.Fatal("welcome missing connection_id")
	}

	snapshot := readMessage(t, conn)
	if snapshot["type"] != "scraping_status" || snapshot["target_site"] != "jiji" {
		t.Fatalf("unexpected snapshot: %v", snapshot)
	}
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(func() map[string]models.ScrapeStatus { return nil })

	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	readMessage(t, conn) // welcome

	// Broadcast may race the registration of the read loop; retry until
	// the subscriber is attached.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(models.StatusEvent{
		Type:       "scraping_status",
		TargetSite: "kupatana",
		Data:       models.ScrapeStatus{TargetSite: "kupatana", Status: models.StateScraping},
	})

	msg := readMessage(t, conn)
	if msg["target_site"] != "kupatana" {
		t.Fatalf("unexpected broadcast: %v", msg)
	}
	data, ok := msg["data"].(map[string]any)
	if !ok || data["status"] != models.StateScraping {
		t.Fatalf("unexpected payload: %v", msg)
	}
}

func TestPingPong(t *testing.T) {
	hub := NewHub(func() map[string]models.ScrapeStatus { return nil })

	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	readMessage(t, conn) // welcome

	if err := conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 123}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	msg := readMessage(t, conn)
	if msg["type"] != "pong" {
		t.Fatalf("expected pong, got %v", msg)
	}
}

func TestSubscribeAck(t *testing.T) {
	hub := NewHub(func() map[string]models.ScrapeStatus { return nil })

	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	readMessage(t, conn) // welcome

	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "channel": "jiji"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	msg := readMessage(t, conn)
	if msg["type"] != "subscription" || msg["channel"] != "jiji" {
		t.Fatalf("unexpected ack: %v", msg)
	}
}

func TestSlowSubscriberDroppedWithoutPanic(t *testing.T) {
	hub := NewHub(func() map[string]models.ScrapeStatus { return nil })

	// This subscriber never reads, so its connection and send buffer
	// fill up and the hub has to drop it mid-broadcast.
	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ev := models.StatusEvent{
		Type:       "scraping_status",
		TargetSite: strings.Repeat("x", 8192),
		Data:       models.ScrapeStatus{Status: models.StateScraping},
	}
	for i := 0; i < 512; i++ {
		hub.Broadcast(ev)
	}

	deadline = time.Now().Add(5 * time.Second)
	for hub.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slow client never dropped: %d", hub.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The read side of the dropped client is still alive; a ping after
	// the drop must be swallowed, not crash the process.
	if err := conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1}); err == nil {
		time.Sleep(100 * time.Millisecond)
	}

	hub.Broadcast(ev)
}

func TestDisconnectDropsClient(t *testing.T) {
	hub := NewHub(func() map[string]models.ScrapeStatus { return nil })

	conn, cleanup := dialHub(t, hub)
	readMessage(t, conn) // welcome
	cleanup()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after disconnect: %d", hub.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
