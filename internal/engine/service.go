package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"math"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/example/ridehail/internal/geo"
	"github.com/example/ridehail/internal/models"
	"github.com/example/ridehail/internal/observability"
	"github.com/example/ridehail/internal/payments"
	"github.com/example/ridehail/internal/store"
)

// Broadcaster fans a message out to every live connection subscribed to the
// ride. The engine only signals; the registry owns delivery.
type Broadcaster interface {
	Broadcast(rideID string, msg models.WSMessage)
}

// RelayControl is the slice of the location relay the engine drives: seeding
// a position on accept/start and clearing the entry on terminal transitions.
type RelayControl interface {
	Seed(rideID string, s models.LocationSample)
	Clear(rideID string)
}

// how far (degrees) the seeded driver position may sit from pickup
const seedOffsetDeg = 0.004

// Service validates and applies ride lifecycle transitions. All transitions
// run under one mutex so each command's store mutation and broadcast signal
// are atomic with respect to each other, matching the single event-loop
// semantics the rest of the system assumes.
type Service struct {
	Store     store.EntityStore
	Archive   store.RideArchive // optional write-through mirror
	Dispatch  Broadcaster
	Relay     RelayControl
	Gateway   payments.Gateway
	Logger    *slog.Logger
	Rng       *mrand.Rand      // optional, for deterministic seeding in tests
	Now       func() time.Time // optional clock override

	mu sync.Mutex
}

// RequestInput carries everything POST /rides/request supplies.
type RequestInput struct {
	CustomerID    string          `json:"customerId"`
	Pickup        models.Location `json:"pickup"`
	Dropoff       models.Location `json:"dropoff"`
	EstimatedFare float64         `json:"estimatedFare"`
	StakedAmount  float64         `json:"stakedAmount"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) rng() *mrand.Rand {
	if s.Rng == nil {
		s.Rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return s.Rng
}

// Request creates a ride in waiting state after staking the escrow amount.
func (s *Service) Request(ctx context.Context, in RequestInput) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.EstimatedFare <= 0 {
		return nil, s.fail("request", invalid("estimatedFare", "must be > 0"))
	}
	if in.StakedAmount < in.EstimatedFare {
		return nil, s.fail("request", invalid("stakedAmount", "must cover the estimated fare"))
	}
	customer, ok := s.Store.UserByID(in.CustomerID)
	if !ok {
		return nil, s.fail("request", &NotFoundError{Kind: "user", ID: in.CustomerID})
	}
	if _, busy := s.Store.ActiveRideFor(customer.ID); busy {
		return nil, s.fail("request", &ConflictError{Reason: "customer already has an active ride"})
	}

	ref, err := s.Gateway.Stake(ctx, in.StakedAmount, in.CustomerID)
	if err != nil {
		return nil, s.fail("request", &UnavailableError{Reason: "payment gateway: " + err.Error()})
	}

	ride := &models.Ride{
		ID:            newID(),
		CustomerID:    customer.ID,
		Pickup:        in.Pickup,
		Dropoff:       in.Dropoff,
		EstimatedFare: in.EstimatedFare,
		StakedAmount:  in.StakedAmount,
		Status:        models.StatusWaiting,
		CreatedAt:     s.now(),
		StakeRef:      ref,
	}
	_ = s.Store.CreateRide(ride)
	s.archiveSave(ride)
	observability.RideTransitionsTotal.WithLabelValues("request", "ok").Inc()
	return ride, nil
}

// Accept assigns a driver to a waiting ride and seeds a driver position near
// pickup so subscribers have something to render immediately.
func (s *Service) Accept(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.Store.RideByID(rideID)
	if !ok {
		return nil, s.fail("accept", &NotFoundError{Kind: "ride", ID: rideID})
	}
	driver, ok := s.Store.UserByID(driverID)
	if !ok {
		return nil, s.fail("accept", &NotFoundError{Kind: "user", ID: driverID})
	}
	if ride.Status != models.StatusWaiting {
		return nil, s.fail("accept", &ConflictError{Reason: "ride is no longer available"})
	}
	if _, busy := s.Store.ActiveRideFor(driverID); busy {
		return nil, s.fail("accept", &ConflictError{Reason: "driver already has an active ride"})
	}

	seed := geo.Jitter(ride.Pickup, seedOffsetDeg, s.rng())
	sample := models.LocationSample{Lat: seed.Lat, Lng: seed.Lng, Timestamp: s.now()}

	ride.DriverID = driver.ID
	ride.Status = models.StatusAccepted
	ride.CurrentLocation = &sample
	_ = s.Store.UpdateRide(ride)
	s.archiveUpdate(ride)
	s.Relay.Seed(ride.ID, sample)

	summary := driver.Summary()
	s.Dispatch.Broadcast(ride.ID, models.WSMessage{
		Type:   models.MsgRideStatus,
		RideID: ride.ID,
		Data: map[string]any{
			"status":        ride.Status,
			"driverId":      ride.DriverID,
			"location":      sample,
			"driverSummary": summary,
		},
	})
	observability.RideTransitionsTotal.WithLabelValues("accept", "ok").Inc()
	return ride, nil
}

// Start moves an accepted ride into in_progress. Only the assigned driver may
// start it.
func (s *Service) Start(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.Store.RideByID(rideID)
	if !ok {
		return nil, s.fail("start", &NotFoundError{Kind: "ride", ID: rideID})
	}
	if ride.Status != models.StatusAccepted {
		return nil, s.fail("start", &ConflictError{Reason: "ride has not been accepted"})
	}
	if ride.DriverID != driverID {
		return nil, s.fail("start", &ForbiddenError{Reason: "only the assigned driver can start the ride"})
	}

	started := s.now()
	sample := models.LocationSample{Lat: ride.Pickup.Lat, Lng: ride.Pickup.Lng, Timestamp: started}
	ride.Status = models.StatusInProgress
	ride.StartedAt = &started
	ride.CurrentLocation = &sample
	_ = s.Store.UpdateRide(ride)
	s.archiveUpdate(ride)
	s.Relay.Seed(ride.ID, sample)

	s.Dispatch.Broadcast(ride.ID, models.WSMessage{
		Type:   models.MsgRideStatus,
		RideID: ride.ID,
		Data: map[string]any{
			"status":    ride.Status,
			"startedAt": started,
		},
	})
	observability.RideTransitionsTotal.WithLabelValues("start", "ok").Inc()
	return ride, nil
}

// CompleteInput: the status transition and the rating submission are two
// halves that may arrive in one call or separately. A rating-only call on an
// already-completed ride updates ratings without re-transitioning.
type CompleteInput struct {
	CompletedBy string   `json:"completedBy"`
	Rating      *float64 `json:"rating,omitempty"`
	Feedback    string   `json:"feedback,omitempty"`
}

func (s *Service) Complete(ctx context.Context, rideID string, in CompleteInput) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.Store.RideByID(rideID)
	if !ok {
		return nil, s.fail("complete", &NotFoundError{Kind: "ride", ID: rideID})
	}
	if !isParty(ride, in.CompletedBy) {
		return nil, s.fail("complete", &ForbiddenError{Reason: "not a party to this ride"})
	}
	switch ride.Status {
	case models.StatusInProgress, models.StatusCompleted:
	default:
		return nil, s.fail("complete", &ConflictError{Reason: "ride is not in progress"})
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, s.fail("complete", invalid("rating", "must be between 1 and 5"))
	}

	transitioned := false
	if ride.Status == models.StatusInProgress {
		done := s.now()
		fare := ride.EstimatedFare // flat policy, no recompute
		ride.Status = models.StatusCompleted
		ride.CompletedAt = &done
		ride.ActualFare = &fare
		transitioned = true
	}

	if in.Rating != nil {
		s.applyRating(ride, in.CompletedBy, *in.Rating, in.Feedback)
	}

	_ = s.Store.UpdateRide(ride)
	s.archiveUpdate(ride)

	if transitioned {
		if err := s.Gateway.Release(ctx, ride.StakeRef); err != nil {
			s.log().Warn("stake release failed", "ride_id", ride.ID, "error", err)
		}
		s.Dispatch.Broadcast(ride.ID, models.WSMessage{
			Type:   models.MsgRideStatus,
			RideID: ride.ID,
			Data:   map[string]any{"status": ride.Status},
		})
		s.Relay.Clear(ride.ID)
	}
	observability.RideTransitionsTotal.WithLabelValues("complete", "ok").Inc()
	return ride, nil
}

// applyRating records the submitter's review on the ride and folds the score
// into the counterparty's running average. Re-submitting overwrites the
// stored review (last write wins per field) but the stats fold happens only
// once per side, so completedRides never double-increments.
func (s *Service) applyRating(ride *models.Ride, by string, score float64, feedback string) {
	review := &models.RideRating{Score: score, Feedback: feedback}
	var target string
	var first bool
	if by == ride.CustomerID {
		first = ride.CustomerRating == nil
		ride.CustomerRating = review
		target = ride.DriverID
	} else {
		first = ride.DriverRating == nil
		ride.DriverRating = review
		target = ride.CustomerID
	}
	if !first || target == "" {
		return
	}
	u, ok := s.Store.UserByID(target)
	if !ok {
		return
	}
	count := float64(u.CompletedRides)
	u.AvgRating = round1((u.AvgRating*count + score) / (count + 1))
	u.CompletedRides++
	if u.Reputation < 100 {
		u.Reputation++
	}
	_ = s.Store.UpdateUser(u)
}

// Cancel ends a ride that has not started. Either party may cancel.
func (s *Service) Cancel(ctx context.Context, rideID, userID string) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.Store.RideByID(rideID)
	if !ok {
		return nil, s.fail("cancel", &NotFoundError{Kind: "ride", ID: rideID})
	}
	if ride.Status != models.StatusWaiting && ride.Status != models.StatusAccepted {
		return nil, s.fail("cancel", &ConflictError{Reason: "ride can no longer be cancelled"})
	}
	if !isParty(ride, userID) {
		return nil, s.fail("cancel", &ForbiddenError{Reason: "not a party to this ride"})
	}

	done := s.now()
	ride.Status = models.StatusCancelled
	ride.CompletedAt = &done
	_ = s.Store.UpdateRide(ride)
	s.archiveUpdate(ride)

	if err := s.Gateway.Refund(ctx, ride.StakeRef); err != nil {
		s.log().Warn("stake refund failed", "ride_id", ride.ID, "error", err)
	}
	s.Dispatch.Broadcast(ride.ID, models.WSMessage{
		Type:   models.MsgRideStatus,
		RideID: ride.ID,
		Data:   map[string]any{"status": ride.Status},
	})
	s.Relay.Clear(ride.ID)
	observability.RideTransitionsTotal.WithLabelValues("cancel", "ok").Inc()
	return ride, nil
}

// isParty reports whether userID is the ride's customer or assigned driver.
// An unassigned DriverID is the empty string, so a blank userID must never
// match it.
func isParty(ride *models.Ride, userID string) bool {
	if userID == "" {
		return false
	}
	return userID == ride.CustomerID || (ride.DriverID != "" && userID == ride.DriverID)
}

func (s *Service) fail(op string, err error) error {
	observability.RideTransitionsTotal.WithLabelValues(op, "rejected").Inc()
	return err
}

func (s *Service) archiveSave(r *models.Ride) {
	if s.Archive == nil {
		return
	}
	if err := s.Archive.SaveRide(r); err != nil {
		s.log().Warn("ride archive insert failed", "ride_id", r.ID, "error", err)
	}
}

func (s *Service) archiveUpdate(r *models.Ride) {
	if s.Archive == nil {
		return
	}
	if err := s.Archive.UpdateRide(r); err != nil {
		s.log().Warn("ride archive update failed", "ride_id", r.ID, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
