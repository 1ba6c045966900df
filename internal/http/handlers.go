package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ridehail/internal/engine"
	"github.com/example/ridehail/internal/geo"
	"github.com/example/ridehail/internal/models"
)

// starting stats for a freshly connected wallet
const (
	initialReputation = 80
	initialAvgRating  = 5.0
	initialBalance    = 100.0
)

type connectRequest struct {
	WalletAddress string      `json:"walletAddress"`
	Role          models.Role `json:"role"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &engine.ValidationError{Fields: map[string]string{"body": err.Error()}})
		return
	}
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	fields := map[string]string{}
	if req.WalletAddress == "" {
		fields["walletAddress"] = "required"
	}
	if req.Role != models.RoleCustomer && req.Role != models.RoleDriver {
		fields["role"] = "must be customer or driver"
	}
	if len(fields) > 0 {
		writeError(w, &engine.ValidationError{Fields: fields})
		return
	}

	user, ok := s.Store.UserByWallet(req.WalletAddress)
	if !ok {
		user = &models.User{
			ID:            newID(),
			WalletAddress: req.WalletAddress,
			Role:          req.Role,
			Reputation:    initialReputation,
			AvgRating:     initialAvgRating,
			Balance:       initialBalance,
			CreatedAt:     time.Now(),
		}
		_ = s.Store.CreateUser(user)
		s.logger.Info("user created", "user_id", user.ID, "role", user.Role)
	}

	token, err := s.Tokens.Generate(user)
	if err != nil {
		s.logger.Error("token mint failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var in engine.RequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &engine.ValidationError{Fields: map[string]string{"body": err.Error()}})
		return
	}
	ride, err := s.Engine.Request(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleAvailableRides(w http.ResponseWriter, r *http.Request) {
	waiting := s.Store.WaitingRides()
	out := make([]models.AvailableRide, 0, len(waiting))
	for _, ride := range waiting {
		row := models.AvailableRide{
			RideID:   ride.ID,
			Pickup:   ride.Pickup,
			Dropoff:  ride.Dropoff,
			Fare:     ride.EstimatedFare,
			Distance: geo.Distance(ride.Pickup, ride.Dropoff) / 1000,
		}
		if c, ok := s.Store.UserByID(ride.CustomerID); ok {
			row.CustomerRating = c.AvgRating
			row.CustomerName = models.DisplayName(c.WalletAddress)
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleActiveRide(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	ride, ok := s.Store.ActiveRideFor(userID)
	if !ok {
		writeError(w, &engine.NotFoundError{Kind: "active ride for user", ID: userID})
		return
	}
	writeJSON(w, http.StatusOK, s.rideView(ride))
}

func (s *Server) handleRideHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	rides := s.Store.HistoryFor(userID, s.cfg.HistoryLimit)
	out := make([]models.RideView, 0, len(rides))
	for _, ride := range rides {
		out = append(out, s.rideView(ride))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["rideId"]
	ride, ok := s.Store.RideByID(rideID)
	if !ok {
		writeError(w, &engine.NotFoundError{Kind: "ride", ID: rideID})
		return
	}
	writeJSON(w, http.StatusOK, s.rideView(ride))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &engine.ValidationError{Fields: map[string]string{"body": err.Error()}})
		return
	}
	ride, err := s.Engine.Accept(r.Context(), mux.Vars(r)["rideId"], body.DriverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driverId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &engine.ValidationError{Fields: map[string]string{"body": err.Error()}})
		return
	}
	ride, err := s.Engine.Start(r.Context(), mux.Vars(r)["rideId"], body.DriverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var in engine.CompleteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &engine.ValidationError{Fields: map[string]string{"body": err.Error()}})
		return
	}
	ride, err := s.Engine.Complete(r.Context(), mux.Vars(r)["rideId"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &engine.ValidationError{Fields: map[string]string{"body": err.Error()}})
		return
	}
	ride, err := s.Engine.Cancel(r.Context(), mux.Vars(r)["rideId"], body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) rideView(ride *models.Ride) models.RideView {
	v := models.RideView{Ride: *ride}
	if c, ok := s.Store.UserByID(ride.CustomerID); ok {
		sum := c.Summary()
		v.Customer = &sum
	}
	if ride.DriverID != "" {
		if d, ok := s.Store.UserByID(ride.DriverID); ok {
			sum := d.Summary()
			v.Driver = &sum
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine taxonomy onto HTTP statuses. Everything carries
// a message field; validation failures carry per-field detail.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *engine.ValidationError
		nf *engine.NotFoundError
		cf *engine.ConflictError
		fb *engine.ForbiddenError
		ua *engine.UnavailableError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "validation failed", "fields": ve.Fields})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]any{"message": nf.Error()})
	case errors.As(err, &cf):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": cf.Error()})
	case errors.As(err, &fb):
		writeJSON(w, http.StatusForbidden, map[string]any{"message": fb.Error()})
	case errors.As(err, &ua):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": ua.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
