package live

import (
	"log/slog"
	"sync"

	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/store"
)

// Publisher ships accepted samples to a stream for out-of-process consumers.
type Publisher interface {
	PublishSample(rideID string, s models.LocationSample) error
}

// Mirror keeps the latest sample in an external cache so other processes can
// read positions without hitting this one.
type Mirror interface {
	Set(rideID string, s models.LocationSample) error
	Clear(rideID string) error
}

// Relay holds the latest-known location per ride and fans samples out to the
// ride's subscribers. No history is retained, and no plausibility check is
// applied to incoming coordinates.
type Relay struct {
	Store     store.EntityStore
	Registry  *Registry
	Publisher Publisher // optional
	Mirror    Mirror    // optional
	Logger    *slog.Logger

	mu     sync.RWMutex
	latest map[string]models.LocationSample
}

func NewRelay(st store.EntityStore, reg *Registry, logger *slog.Logger) *Relay {
	return &Relay{
		Store:    st,
		Registry: reg,
		Logger:   logger,
		latest:   make(map[string]models.LocationSample),
	}
}

// Ingest overwrites the ride's current location, persists it on the ride
// record, and broadcasts it to every subscriber except the origin.
func (r *Relay) Ingest(rideID string, sample models.LocationSample, origin *Session) {
	r.mu.Lock()
	r.latest[rideID] = sample
	r.mu.Unlock()

	_ = r.Store.SetRideLocation(rideID, sample)
	r.sideEffects(rideID, sample)

	r.Registry.BroadcastExcept(rideID, models.WSMessage{
		Type:   models.MsgLocationUpdate,
		RideID: rideID,
		Data:   map[string]any{"location": sample},
	}, origin)
}

// Seed records a server-originated position (accept/start) without fan-out;
// the lifecycle broadcast already carries it.
func (r *Relay) Seed(rideID string, sample models.LocationSample) {
	r.mu.Lock()
	r.latest[rideID] = sample
	r.mu.Unlock()
	r.sideEffects(rideID, sample)
}

// Clear drops the ride's entry. Called when a ride reaches a terminal state.
func (r *Relay) Clear(rideID string) {
	r.mu.Lock()
	delete(r.latest, rideID)
	r.mu.Unlock()
	if r.Mirror != nil {
		if err := r.Mirror.Clear(rideID); err != nil {
			r.Logger.Warn("location mirror clear failed", "ride_id", rideID, "error", err)
		}
	}
}

// Last returns the ride's latest sample, if any. The registry replays it to
// late subscribers.
func (r *Relay) Last(rideID string) (models.LocationSample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.latest[rideID]
	return s, ok
}

func (r *Relay) sideEffects(rideID string, sample models.LocationSample) {
	if r.Publisher != nil {
		if err := r.Publisher.PublishSample(rideID, sample); err != nil {
			r.Logger.Warn("location publish failed", "ride_id", rideID, "error", err)
		}
	}
	if r.Mirror != nil {
		if err := r.Mirror.Set(rideID, sample); err != nil {
			r.Logger.Warn("location mirror set failed", "ride_id", rideID, "error", err)
		}
	}
}
