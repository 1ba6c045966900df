package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ridehail/internal/models"
)

// RideArchive mirrors ride records into a durable backend. The memory store
// stays the source of truth; the archive is best-effort write-through.
type RideArchive interface {
	SaveRide(r *models.Ride) error
	UpdateRide(r *models.Ride) error
}

type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresArchive{db: db}, nil
}

func (p *PostgresArchive) SaveRide(r *models.Ride) error {
	_, err := p.db.Exec(`INSERT INTO rides(id, customer_id, driver_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, estimated_fare, staked_amount, status, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.CustomerID, nullable(r.DriverID), r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng, r.EstimatedFare, r.StakedAmount, r.Status, r.CreatedAt, time.Now())
	return err
}

func (p *PostgresArchive) UpdateRide(r *models.Ride) error {
	_, err := p.db.Exec(`UPDATE rides SET driver_id=$1, status=$2, actual_fare=$3, started_at=$4, completed_at=$5, updated_at=$6 WHERE id=$7`,
		nullable(r.DriverID), r.Status, r.ActualFare, r.StartedAt, r.CompletedAt, time.Now(), r.ID)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
