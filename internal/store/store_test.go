package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/ridehail/internal/models"
)

func TestActiveIndex(t *testing.T) {
	st := NewMemoryStore()
	ride := &models.Ride{ID: "r1", CustomerID: "c1", Status: models.StatusWaiting, CreatedAt: time.Now()}
	_ = st.CreateRide(ride)

	if _, ok := st.ActiveRideFor("c1"); !ok {
		t.Fatal("waiting ride not indexed for customer")
	}
	if _, ok := st.ActiveRideFor("d1"); ok {
		t.Fatal("driver indexed before accept")
	}

	ride.DriverID = "d1"
	ride.Status = models.StatusAccepted
	_ = st.UpdateRide(ride)
	if got, ok := st.ActiveRideFor("d1"); !ok || got.ID != "r1" {
		t.Fatal("accepted ride not indexed for driver")
	}

	done := time.Now()
	ride.Status = models.StatusCompleted
	ride.CompletedAt = &done
	_ = st.UpdateRide(ride)
	if _, ok := st.ActiveRideFor("c1"); ok {
		t.Fatal("terminal ride still indexed for customer")
	}
	if _, ok := st.ActiveRideFor("d1"); ok {
		t.Fatal("terminal ride still indexed for driver")
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	st := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		done := base.Add(time.Duration(i) * time.Hour)
		_ = st.CreateRide(&models.Ride{
			ID:          fmt.Sprintf("r%02d", i),
			CustomerID:  "c1",
			DriverID:    "d1",
			Status:      models.StatusCompleted,
			CreatedAt:   base,
			CompletedAt: &done,
		})
	}

	got := st.HistoryFor("c1", 10)
	if len(got) != 10 {
		t.Fatalf("expected 10 rides, got %d", len(got))
	}
	if got[0].ID != "r11" {
		t.Fatalf("expected newest first, got %s", got[0].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CompletedAt.After(*got[i-1].CompletedAt) {
			t.Fatal("history not sorted newest first")
		}
	}
}

func TestHistoryFallsBackToCreation(t *testing.T) {
	st := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := base.Add(2 * time.Hour)
	_ = st.CreateRide(&models.Ride{ID: "no-ts", CustomerID: "c1", Status: models.StatusCancelled, CreatedAt: base.Add(3 * time.Hour)})
	_ = st.CreateRide(&models.Ride{ID: "with-ts", CustomerID: "c1", Status: models.StatusCompleted, CreatedAt: base, CompletedAt: &late})

	got := st.HistoryFor("c1", 10)
	if len(got) != 2 || got[0].ID != "no-ts" {
		t.Fatalf("creation-time fallback not honored: %v", got)
	}
}

func TestHistoryExcludesActiveAndOthers(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()
	_ = st.CreateRide(&models.Ride{ID: "active", CustomerID: "c1", Status: models.StatusWaiting, CreatedAt: now})
	_ = st.CreateRide(&models.Ride{ID: "other", CustomerID: "c2", Status: models.StatusCancelled, CreatedAt: now, CompletedAt: &now})

	if got := st.HistoryFor("c1", 10); len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
}

func TestWaitingRidesOldestFirst(t *testing.T) {
	st := NewMemoryStore()
	base := time.Now()
	_ = st.CreateRide(&models.Ride{ID: "b", CustomerID: "c2", Status: models.StatusWaiting, CreatedAt: base.Add(time.Minute)})
	_ = st.CreateRide(&models.Ride{ID: "a", CustomerID: "c1", Status: models.StatusWaiting, CreatedAt: base})
	_ = st.CreateRide(&models.Ride{ID: "x", CustomerID: "c3", Status: models.StatusCompleted, CreatedAt: base})

	got := st.WaitingRides()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected waiting list: %v", got)
	}
}

func TestSetRideLocation(t *testing.T) {
	st := NewMemoryStore()
	_ = st.CreateRide(&models.Ride{ID: "r1", CustomerID: "c1", Status: models.StatusInProgress, DriverID: "d1", CreatedAt: time.Now()})

	s := models.LocationSample{Lat: 1, Lng: 2, Timestamp: time.Now()}
	_ = st.SetRideLocation("r1", s)
	r, _ := st.RideByID("r1")
	if r.CurrentLocation == nil || r.CurrentLocation.Lat != 1 {
		t.Fatal("location not persisted")
	}

	// unknown ride is a no-op, not an error
	if err := st.SetRideLocation("ghost", s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserLookupByWallet(t *testing.T) {
	st := NewMemoryStore()
	u := &models.User{ID: "u1", WalletAddress: "0xabc", Role: models.RoleCustomer}
	_ = st.CreateUser(u)

	got, ok := st.UserByWallet("0xabc")
	if !ok || got.ID != "u1" {
		t.Fatal("wallet lookup failed")
	}
	if _, ok := st.UserByWallet("0xdef"); ok {
		t.Fatal("unknown wallet resolved")
	}

	// returned copy must not alias store state
	got.Reputation = 1
	again, _ := st.UserByID("u1")
	if again.Reputation == 1 {
		t.Fatal("store returned aliased pointer")
	}
}
