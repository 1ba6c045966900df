package store

import (
	"sort"
	"sync"
	"time"

	"github.com/example/ridehail/internal/models"
)

// EntityStore owns all user and ride state. Implementations return copies;
// callers mutate a copy and write it back, so a failed transition never
// leaves a partial record.
type EntityStore interface {
	CreateUser(u *models.User) error
	UserByID(id string) (*models.User, bool)
	UserByWallet(addr string) (*models.User, bool)
	UpdateUser(u *models.User) error

	CreateRide(r *models.Ride) error
	RideByID(id string) (*models.Ride, bool)
	UpdateRide(r *models.Ride) error
	SetRideLocation(rideID string, s models.LocationSample) error

	WaitingRides() []*models.Ride
	ActiveRideFor(userID string) (*models.Ride, bool)
	HistoryFor(userID string, limit int) []*models.Ride
}

// MemoryStore is the process-memory backing for users and rides. A restart
// loses everything; that durability gap is accepted for this system.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]models.User
	wallet map[string]string // wallet address -> user id
	rides  map[string]models.Ride
	active map[string]string // user id -> active ride id, customers and drivers alike
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]models.User),
		wallet: make(map[string]string),
		rides:  make(map[string]models.Ride),
		active: make(map[string]string),
	}
}

func (m *MemoryStore) CreateUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	m.wallet[u.WalletAddress] = u.ID
	return nil
}

func (m *MemoryStore) UserByID(id string) (*models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, false
	}
	cp := u
	return &cp, true
}

func (m *MemoryStore) UserByWallet(addr string) (*models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.wallet[addr]
	if !ok {
		return nil, false
	}
	u := m.users[id]
	cp := u
	return &cp, true
}

func (m *MemoryStore) UpdateUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) CreateRide(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = *r
	m.reindex(r)
	return nil
}

func (m *MemoryStore) RideByID(id string) (*models.Ride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, false
	}
	cp := r
	return &cp, true
}

func (m *MemoryStore) UpdateRide(r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = *r
	m.reindex(r)
	return nil
}

func (m *MemoryStore) SetRideLocation(rideID string, s models.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil
	}
	r.CurrentLocation = &s
	m.rides[rideID] = r
	return nil
}

// reindex keeps the user->active-ride index in step with a ride mutation.
// Called with the write lock held.
func (m *MemoryStore) reindex(r *models.Ride) {
	if r.Status.Active() {
		m.active[r.CustomerID] = r.ID
		if r.DriverID != "" {
			m.active[r.DriverID] = r.ID
		}
		return
	}
	if m.active[r.CustomerID] == r.ID {
		delete(m.active, r.CustomerID)
	}
	if r.DriverID != "" && m.active[r.DriverID] == r.ID {
		delete(m.active, r.DriverID)
	}
}

func (m *MemoryStore) WaitingRides() []*models.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.Status == models.StatusWaiting {
			cp := r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) ActiveRideFor(userID string) (*models.Ride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.active[userID]
	if !ok {
		return nil, false
	}
	r := m.rides[id]
	cp := r
	return &cp, true
}

func (m *MemoryStore) HistoryFor(userID string, limit int) []*models.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if !r.Status.Terminal() {
			continue
		}
		if r.CustomerID != userID && r.DriverID != userID {
			continue
		}
		cp := r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return historyTime(out[i]).After(historyTime(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// newest first by completion time, falling back to creation time
func historyTime(r *models.Ride) time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.CreatedAt
}
