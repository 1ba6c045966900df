package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ridehail/internal/models"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWSLocationFanOut(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	customer := connect(t, srv, "0xcccccccccccccccc", models.RoleCustomer)
	_, ride := doJSON(t, srv, "POST", "/api/rides/request", map[string]any{
		"customerId":    customer,
		"pickup":        map[string]any{"lat": 1, "lng": 1},
		"dropoff":       map[string]any{"lat": 2, "lng": 2},
		"estimatedFare": 10,
		"stakedAmount":  10,
	})
	rideID := ride["id"].(string)

	sender := dialWS(t, ts)
	watcher := dialWS(t, ts)

	if err := watcher.WriteJSON(models.WSMessage{Type: models.MsgSubscribe, RideID: rideID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sender.WriteJSON(models.WSMessage{Type: models.MsgSubscribe, RideID: rideID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// give the server read loops a beat to register the subscriptions
	time.Sleep(100 * time.Millisecond)

	err := sender.WriteJSON(models.WSMessage{
		Type:   models.MsgLocationUpdate,
		RideID: rideID,
		Data:   map[string]any{"location": map[string]any{"lat": 1.5, "lng": 1.5, "speed": 11}},
	})
	if err != nil {
		t.Fatalf("send location: %v", err)
	}

	msg := readMessage(t, watcher)
	if msg.Type != models.MsgLocationUpdate || msg.RideID != rideID {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestWSRideStatusBroadcastOnAccept(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	customer := connect(t, srv, "0xcccccccccccccccc", models.RoleCustomer)
	driver := connect(t, srv, "0xdddddddddddddddd", models.RoleDriver)
	_, ride := doJSON(t, srv, "POST", "/api/rides/request", map[string]any{
		"customerId":    customer,
		"pickup":        map[string]any{"lat": 1, "lng": 1},
		"dropoff":       map[string]any{"lat": 2, "lng": 2},
		"estimatedFare": 10,
		"stakedAmount":  10,
	})
	rideID := ride["id"].(string)

	watcher := dialWS(t, ts)
	if err := watcher.WriteJSON(models.WSMessage{Type: models.MsgSubscribe, RideID: rideID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	doJSON(t, srv, "POST", "/api/rides/"+rideID+"/accept", map[string]any{"driverId": driver})

	msg := readMessage(t, watcher)
	if msg.Type != models.MsgRideStatus {
		t.Fatalf("expected ride_status, got %s", msg.Type)
	}
	if msg.Data["status"] != "accepted" || msg.Data["driverId"] != driver {
		t.Fatalf("unexpected payload: %v", msg.Data)
	}
	if msg.Data["driverSummary"] == nil {
		t.Fatal("accept broadcast missing driverSummary")
	}
}

func TestWSLateSubscriberReplay(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	customer := connect(t, srv, "0xcccccccccccccccc", models.RoleCustomer)
	driver := connect(t, srv, "0xdddddddddddddddd", models.RoleDriver)
	_, ride := doJSON(t, srv, "POST", "/api/rides/request", map[string]any{
		"customerId":    customer,
		"pickup":        map[string]any{"lat": 1, "lng": 1},
		"dropoff":       map[string]any{"lat": 2, "lng": 2},
		"estimatedFare": 10,
		"stakedAmount":  10,
	})
	rideID := ride["id"].(string)

	// accept seeds a location into the relay before anyone subscribes
	doJSON(t, srv, "POST", "/api/rides/"+rideID+"/accept", map[string]any{"driverId": driver})

	late := dialWS(t, ts)
	if err := late.WriteJSON(models.WSMessage{Type: models.MsgSubscribe, RideID: rideID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msg := readMessage(t, late)
	if msg.Type != models.MsgLocationUpdate {
		t.Fatalf("expected replayed location, got %+v", msg)
	}
}

func TestWSMalformedFramesDropped(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialWS(t, ts)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// connection must survive; a valid subscribe afterwards still works
	if err := conn.WriteJSON(models.WSMessage{Type: models.MsgSubscribe, RideID: "r1"}); err != nil {
		t.Fatalf("subscribe after garbage: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := srv.Registry.Subscribers("r1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
}
