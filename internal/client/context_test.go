package client

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ridehail/internal/models"
)

type scriptConn struct {
	mu       sync.Mutex
	written  []models.WSMessage
	incoming chan models.WSMessage
	done     chan struct{}
	once     sync.Once
}

func newScriptConn() *scriptConn {
	return &scriptConn{incoming: make(chan models.WSMessage, 8), done: make(chan struct{})}
}

func (c *scriptConn) ReadJSON(v any) error {
	select {
	case msg := <-c.incoming:
		*(v.(*models.WSMessage)) = msg
		return nil
	case <-c.done:
		return errors.New("connection closed")
	}
}

func (c *scriptConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := v.(models.WSMessage); ok {
		c.written = append(c.written, m)
	}
	return nil
}

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *scriptConn) sent() []models.WSMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WSMessage, len(c.written))
	copy(out, c.written)
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	failures int // fail this many dials before succeeding
	conns    []*scriptConn
}

func (d *fakeDialer) Dial(url string) (WSConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failures {
		return nil, errors.New("dial refused")
	}
	c := newScriptConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) lastConn() *scriptConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func newTestContext(d Dialer) *RideContext {
	c := NewRideContext("ws://test/ws", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Dialer = d
	c.ReconnectDelay = 20 * time.Millisecond
	return c
}

func TestShallowMergePreservesFields(t *testing.T) {
	c := newTestContext(&fakeDialer{})
	c.SetActiveRide(models.RideView{Ride: models.Ride{
		ID:            "r1",
		Status:        models.StatusWaiting,
		EstimatedFare: 20,
		Pickup:        models.Location{Lat: 1, Lng: 2, Address: "A"},
	}})

	c.handle(models.WSMessage{
		Type:   models.MsgRideStatus,
		RideID: "r1",
		Data:   map[string]any{"status": "accepted", "driverId": "d1"},
	})

	view := c.ActiveRide()
	if view["status"] != "accepted" || view["driverId"] != "d1" {
		t.Fatalf("partial update not applied: %v", view)
	}
	if view["pickup"] == nil || view["estimatedFare"].(float64) != 20 {
		t.Fatalf("merge dropped fields absent from the update: %v", view)
	}
}

func TestRideStatusForOtherRideIgnored(t *testing.T) {
	c := newTestContext(&fakeDialer{})
	c.SetActiveRide(models.RideView{Ride: models.Ride{ID: "r1", Status: models.StatusWaiting}})

	c.handle(models.WSMessage{Type: models.MsgRideStatus, RideID: "r2", Data: map[string]any{"status": "accepted"}})

	if got := c.ActiveRide()["status"]; got != "waiting" {
		t.Fatalf("update for r2 leaked into r1 view: %v", got)
	}
}

func TestLocationUpdateStored(t *testing.T) {
	c := newTestContext(&fakeDialer{})
	c.handle(models.WSMessage{
		Type:   models.MsgLocationUpdate,
		RideID: "r1",
		Data:   map[string]any{"location": map[string]any{"lat": 3.0, "lng": 4.0}},
	})
	loc := c.LastLocation()
	if loc == nil || loc.Lat != 3 || loc.Lng != 4 {
		t.Fatalf("location not stored: %v", loc)
	}
}

func TestSendLocationNoopWithoutActiveRide(t *testing.T) {
	d := &fakeDialer{}
	c := newTestContext(d)
	c.Connect()

	if err := c.SendLocation(models.LocationSample{Lat: 1, Lng: 1}); err != nil {
		t.Fatalf("no-op send returned error: %v", err)
	}
	if got := d.lastConn().sent(); len(got) != 0 {
		t.Fatalf("frame sent without an active ride: %v", got)
	}

	if err := c.Subscribe("r1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.SendLocation(models.LocationSample{Lat: 1, Lng: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := d.lastConn().sent()
	if len(got) != 2 || got[0].Type != models.MsgSubscribe || got[1].Type != models.MsgLocationUpdate {
		t.Fatalf("unexpected frames: %v", got)
	}
	if got[1].RideID != "r1" {
		t.Fatalf("location frame not tagged with active ride: %v", got[1])
	}
}

func TestNothingSentOnOpen(t *testing.T) {
	d := &fakeDialer{}
	c := newTestContext(d)
	c.Connect()
	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	time.Sleep(10 * time.Millisecond)
	if got := d.lastConn().sent(); len(got) != 0 {
		t.Fatalf("client spoke before a subscription was requested: %v", got)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	d := &fakeDialer{}
	c := newTestContext(d)
	c.Connect()
	first := d.lastConn()

	// server drops the connection
	_ = first.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d.dialCount() >= 2 && c.State() == StateConnected {
			c.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no reconnect: dials=%d state=%s", d.dialCount(), c.State())
}

func TestSingleReconnectPending(t *testing.T) {
	d := &fakeDialer{failures: 1000}
	c := newTestContext(d)
	c.Connect()

	// with a 20ms delay, ~100ms allows roughly five attempts; parallel
	// timers would multiply
	time.Sleep(110 * time.Millisecond)
	c.Close()
	got := d.dialCount()
	if got < 2 {
		t.Fatalf("reconnect never fired: %d", got)
	}
	if got > 8 {
		t.Fatalf("reconnect attempts multiplied: %d", got)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{failures: 1000}
	c := newTestContext(d)
	c.Connect()
	c.Close()

	before := d.dialCount()
	time.Sleep(60 * time.Millisecond)
	if d.dialCount() != before {
		t.Fatalf("dialed after Close: %d -> %d", before, d.dialCount())
	}
}
