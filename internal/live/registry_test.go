package live

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ridehail/internal/models"
)

type fakeConn struct {
	mu   sync.Mutex
	msgs []models.WSMessage
	fail bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write fail")
	}
	if m, ok := v.(models.WSMessage); ok {
		c.msgs = append(c.msgs, m)
	}
	return nil
}

func (c *fakeConn) received() []models.WSMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WSMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcastExactDelivery(t *testing.T) {
	reg := NewRegistry(testLogger())
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	sa, sb, so := reg.Register(a), reg.Register(b), reg.Register(other)
	reg.Subscribe(sa, "r1")
	reg.Subscribe(sb, "r1")
	reg.Subscribe(so, "r2")

	msg := models.WSMessage{Type: models.MsgRideStatus, RideID: "r1", Data: map[string]any{"status": "accepted"}}
	reg.Broadcast("r1", msg)

	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Fatalf("both r1 subscribers should receive: a=%d b=%d", len(a.received()), len(b.received()))
	}
	if len(other.received()) != 0 {
		t.Fatalf("r2 subscriber must not receive r1 traffic")
	}
}

func TestBroadcastExcludesOrigin(t *testing.T) {
	reg := NewRegistry(testLogger())
	a, b := &fakeConn{}, &fakeConn{}
	sa, sb := reg.Register(a), reg.Register(b)
	reg.Subscribe(sa, "r1")
	reg.Subscribe(sb, "r1")

	reg.BroadcastExcept("r1", models.WSMessage{Type: models.MsgLocationUpdate, RideID: "r1"}, sa)

	if len(a.received()) != 0 {
		t.Fatal("origin must not get its own sample back")
	}
	if len(b.received()) != 1 {
		t.Fatal("other subscriber missed the sample")
	}
}

func TestSubscribeReplacesPrior(t *testing.T) {
	reg := NewRegistry(testLogger())
	c := &fakeConn{}
	s := reg.Register(c)
	reg.Subscribe(s, "r1")
	reg.Subscribe(s, "r2")

	reg.Broadcast("r1", models.WSMessage{Type: models.MsgRideStatus, RideID: "r1"})
	if len(c.received()) != 0 {
		t.Fatal("connection still receives its old ride")
	}

	reg.mu.RLock()
	_, stale := reg.byRide["r1"]
	reg.mu.RUnlock()
	if stale {
		t.Fatal("empty set left behind for r1")
	}
	if reg.Subscribers("r2") != 1 {
		t.Fatalf("expected 1 subscriber on r2, got %d", reg.Subscribers("r2"))
	}
}

func TestNoEmptySetsAfterChurn(t *testing.T) {
	reg := NewRegistry(testLogger())
	conns := []*Session{}
	for i := 0; i < 5; i++ {
		conns = append(conns, reg.Register(&fakeConn{}))
	}
	for _, s := range conns {
		reg.Subscribe(s, "r1")
	}
	for _, s := range conns[:3] {
		reg.Unsubscribe(s)
	}
	reg.Disconnect(conns[3])
	reg.Disconnect(conns[4])

	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for rideID, set := range reg.byRide {
		if len(set) == 0 {
			t.Fatalf("ride %s holds an empty set", rideID)
		}
	}
	if len(reg.byRide) != 0 {
		t.Fatalf("expected no rides tracked, got %d", len(reg.byRide))
	}
}

func TestSubscribeReplaysLastKnown(t *testing.T) {
	reg := NewRegistry(testLogger())
	sample := models.LocationSample{Lat: 1, Lng: 2}
	reg.LastKnown = func(rideID string) (models.LocationSample, bool) {
		if rideID == "r1" {
			return sample, true
		}
		return models.LocationSample{}, false
	}

	c := &fakeConn{}
	s := reg.Register(c)
	reg.Subscribe(s, "r1")

	got := c.received()
	if len(got) != 1 || got[0].Type != models.MsgLocationUpdate {
		t.Fatalf("expected replayed location, got %v", got)
	}

	// a ride with no last-known sample replays nothing
	c2 := &fakeConn{}
	s2 := reg.Register(c2)
	reg.Subscribe(s2, "r2")
	if len(c2.received()) != 0 {
		t.Fatal("unexpected replay for ride without a sample")
	}
}

// blockingConn stalls inside WriteJSON until released, so a test can hold a
// delivery in flight.
type blockingConn struct {
	fakeConn
	entered chan struct{}
	release chan struct{}
}

func (c *blockingConn) WriteJSON(v any) error {
	c.entered <- struct{}{}
	<-c.release
	return c.fakeConn.WriteJSON(v)
}

// Replay runs under the registry lock, so a broadcast racing with Subscribe
// cannot be delivered first and then be shadowed by the older replayed
// sample.
func TestReplayDeliveredBeforeConcurrentBroadcast(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.LastKnown = func(string) (models.LocationSample, bool) {
		return models.LocationSample{Lat: 1, Lng: 2}, true
	}

	bc := &blockingConn{entered: make(chan struct{}, 2), release: make(chan struct{})}
	s := reg.Register(bc)

	subDone := make(chan struct{})
	go func() {
		reg.Subscribe(s, "r1")
		close(subDone)
	}()
	<-bc.entered // replay write in flight, lock held

	broadcastDone := make(chan struct{})
	go func() {
		reg.Broadcast("r1", models.WSMessage{Type: models.MsgRideStatus, RideID: "r1"})
		close(broadcastDone)
	}()

	select {
	case <-broadcastDone:
		t.Fatal("broadcast delivered before the replay completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(bc.release)
	<-subDone
	<-broadcastDone

	got := bc.received()
	if len(got) != 2 || got[0].Type != models.MsgLocationUpdate || got[1].Type != models.MsgRideStatus {
		t.Fatalf("expected replay then broadcast, got %v", got)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	reg := NewRegistry(testLogger())
	s := reg.Register(&fakeConn{})
	reg.Unsubscribe(s) // never subscribed
	reg.Subscribe(s, "r1")
	reg.Unsubscribe(s)
	reg.Unsubscribe(s)
	if reg.Subscribers("r1") != 0 {
		t.Fatal("unsubscribe did not stick")
	}
}
