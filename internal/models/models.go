package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
)

type RideStatus string

const (
	StatusWaiting    RideStatus = "waiting"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no further lifecycle transitions apply.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active covers every non-terminal status; a user may hold at most one
// active ride per role at a time.
func (s RideStatus) Active() bool {
	return s == StatusWaiting || s == StatusAccepted || s == StatusInProgress
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// LocationSample is an ephemeral position report. Only the latest sample
// per ride is retained; there is no history.
type LocationSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	Speed     float64   `json:"speed,omitempty"`
}

type User struct {
	ID             string    `json:"id"`
	WalletAddress  string    `json:"walletAddress"`
	Role           Role      `json:"role"`
	Reputation     int       `json:"reputation"` // 0..100
	CompletedRides int       `json:"completedRides"`
	AvgRating      float64   `json:"avgRating"` // 0..5, one decimal
	Balance        float64   `json:"balance"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RideRating is one party's post-completion review of the other.
type RideRating struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback,omitempty"`
}

type Ride struct {
	ID            string     `json:"id"`
	CustomerID    string     `json:"customerId"`
	DriverID      string     `json:"driverId,omitempty"` // empty iff status == waiting
	Pickup        Location   `json:"pickup"`
	Dropoff       Location   `json:"dropoff"`
	EstimatedFare float64    `json:"estimatedFare"`
	StakedAmount  float64    `json:"stakedAmount"`
	ActualFare    *float64   `json:"actualFare,omitempty"`
	Status        RideStatus `json:"status"`

	CurrentLocation *LocationSample `json:"currentLocation,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CustomerRating *RideRating `json:"customerRating,omitempty"` // submitted by customer, about driver
	DriverRating   *RideRating `json:"driverRating,omitempty"`   // submitted by driver, about customer

	StakeRef string `json:"stakeRef,omitempty"` // payment gateway reference
}

// UserSummary is the display subset embedded into ride views and the
// driverSummary broadcast when a ride is accepted.
type UserSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	AvgRating      float64 `json:"avgRating"`
	CompletedRides int     `json:"completedRides"`
}

// WSMessage is the single frame shape spoken on the live channel, both
// directions. Data stays a loose map so partial ride_status updates can be
// shallow-merged client-side.
type WSMessage struct {
	Type   string         `json:"type"`
	RideID string         `json:"rideId,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Live channel message types.
const (
	MsgSubscribe      = "subscribe"
	MsgUnsubscribe    = "unsubscribe"
	MsgLocationUpdate = "location_update"
	MsgRideStatus     = "ride_status"
)
