package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ridehail/internal/engine"
	"github.com/example/ridehail/internal/models"
)

// API issues the lifecycle commands over REST; live updates arrive through
// the RideContext channel.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// ConnectResult is the /auth/connect response.
type ConnectResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (a *API) Connect(ctx context.Context, wallet string, role models.Role) (ConnectResult, error) {
	var out ConnectResult
	err := a.post(ctx, "/api/auth/connect", map[string]any{"walletAddress": wallet, "role": role}, &out)
	return out, err
}

func (a *API) RequestRide(ctx context.Context, in engine.RequestInput) (models.Ride, error) {
	var out models.Ride
	err := a.post(ctx, "/api/rides/request", in, &out)
	return out, err
}

func (a *API) AvailableRides(ctx context.Context) ([]models.AvailableRide, error) {
	var out []models.AvailableRide
	err := a.get(ctx, "/api/rides/available", &out)
	return out, err
}

func (a *API) ActiveRide(ctx context.Context, userID string) (models.RideView, error) {
	var out models.RideView
	err := a.get(ctx, "/api/rides/active/"+userID, &out)
	return out, err
}

func (a *API) RideHistory(ctx context.Context, userID string) ([]models.RideView, error) {
	var out []models.RideView
	err := a.get(ctx, "/api/rides/history/"+userID, &out)
	return out, err
}

func (a *API) Ride(ctx context.Context, rideID string) (models.RideView, error) {
	var out models.RideView
	err := a.get(ctx, "/api/rides/"+rideID, &out)
	return out, err
}

func (a *API) Accept(ctx context.Context, rideID, driverID string) (models.Ride, error) {
	var out models.Ride
	err := a.post(ctx, "/api/rides/"+rideID+"/accept", map[string]any{"driverId": driverID}, &out)
	return out, err
}

func (a *API) Start(ctx context.Context, rideID, driverID string) (models.Ride, error) {
	var out models.Ride
	err := a.post(ctx, "/api/rides/"+rideID+"/start", map[string]any{"driverId": driverID}, &out)
	return out, err
}

func (a *API) Complete(ctx context.Context, rideID string, in engine.CompleteInput) (models.Ride, error) {
	var out models.Ride
	err := a.post(ctx, "/api/rides/"+rideID+"/complete", in, &out)
	return out, err
}

func (a *API) Cancel(ctx context.Context, rideID, userID string) (models.Ride, error) {
	var out models.Ride
	err := a.post(ctx, "/api/rides/"+rideID+"/cancel", map[string]any{"userId": userID}, &out)
	return out, err
}

func (a *API) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *API) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return a.do(req, out)
}

func (a *API) do(req *http.Request, out any) error {
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
