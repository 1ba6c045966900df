package live

import (
	"log/slog"
	"sync"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
)

// Conn is the write side of a live connection. *websocket.Conn satisfies it;
// tests substitute a recorder.
type Conn interface {
	WriteJSON(v any) error
}

// Session is one live connection's handle in the registry. Writes are
// serialized per session; gorilla connections allow one concurrent writer.
type Session struct {
	conn Conn
	mu   sync.Mutex

	rideID string // current subscription, guarded by the registry lock
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry maps ride ids to the sessions watching them. A session watches at
// most one ride; subscribing replaces any prior subscription. A ride id never
// remains a key with an empty session set.
type Registry struct {
	mu     sync.RWMutex
	byRide map[string]map[*Session]struct{}
	logger *slog.Logger

	// LastKnown supplies the replay sample delivered to late subscribers.
	// Wired to the relay at startup; nil means no replay.
	LastKnown func(rideID string) (models.LocationSample, bool)
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{byRide: make(map[string]map[*Session]struct{}), logger: logger}
}

// Register wraps a connection into a session. No subscription yet.
func (r *Registry) Register(conn Conn) *Session {
	observability.WSConnections.Inc()
	return &Session{conn: conn}
}

// Subscribe points the session at rideID, dropping any prior subscription,
// and immediately replays the ride's last-known location so a late
// subscriber is not blind until the next sample. The replay is delivered
// before the lock is released so a concurrent broadcast cannot land first
// and then be overwritten by the older replayed sample.
func (r *Registry) Subscribe(s *Session, rideID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(s)
	set, ok := r.byRide[rideID]
	if !ok {
		set = make(map[*Session]struct{})
		r.byRide[rideID] = set
	}
	set[s] = struct{}{}
	s.rideID = rideID
	observability.SubscriptionsActive.Inc()

	if r.LastKnown == nil {
		return
	}
	if sample, ok := r.LastKnown(rideID); ok {
		msg := models.WSMessage{
			Type:   models.MsgLocationUpdate,
			RideID: rideID,
			Data:   map[string]any{"location": sample},
		}
		if err := s.send(msg); err != nil {
			r.logger.Warn("replay send failed", "ride_id", rideID, "error", err)
		}
	}
}

// Unsubscribe detaches the session from its current ride, if any.
func (r *Registry) Unsubscribe(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(s)
}

// Disconnect is Unsubscribe; a closed connection must never receive another
// delivery, and removal happens synchronously with the close.
func (r *Registry) Disconnect(s *Session) {
	observability.WSConnections.Dec()
	r.Unsubscribe(s)
}

// drop removes s from its ride set and discards the set when it empties.
// Called with the write lock held.
func (r *Registry) drop(s *Session) {
	if s.rideID == "" {
		return
	}
	if set, ok := r.byRide[s.rideID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.byRide, s.rideID)
		}
	}
	s.rideID = ""
	observability.SubscriptionsActive.Dec()
}

// Broadcast delivers msg to every session subscribed to rideID.
func (r *Registry) Broadcast(rideID string, msg models.WSMessage) {
	r.BroadcastExcept(rideID, msg, nil)
}

// BroadcastExcept delivers msg to every subscriber except the originating
// session. Delivery runs under the read lock, so messages for one ride reach
// each subscriber in the order the events were processed.
func (r *Registry) BroadcastExcept(rideID string, msg models.WSMessage, origin *Session) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for s := range r.byRide[rideID] {
		if s == origin {
			continue
		}
		if err := s.send(msg); err != nil {
			r.logger.Warn("broadcast send failed", "ride_id", rideID, "error", err)
		}
	}
	observability.BroadcastsTotal.Inc()
}

// Subscribers reports how many sessions watch a ride. Used by tests and the
// health surface.
func (r *Registry) Subscribers(rideID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRide[rideID])
}
