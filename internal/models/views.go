package models

// AvailableRide is the driver-facing listing row for a waiting ride.
type AvailableRide struct {
	RideID         string   `json:"rideId"`
	Pickup         Location `json:"pickup"`
	Dropoff        Location `json:"dropoff"`
	Fare           float64  `json:"fare"`
	CustomerRating float64  `json:"customerRating"`
	CustomerName   string   `json:"customerName"`
	Distance       float64  `json:"distance"` // trip length, km
}

// RideView is a ride plus the party display info the browser shows with it.
type RideView struct {
	Ride
	Customer *UserSummary `json:"customer,omitempty"`
	Driver   *UserSummary `json:"driver,omitempty"`
}
