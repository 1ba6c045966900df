package locmirror

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ridehail/internal/models"
)

// RedisMirror keeps each ride's last-known location in Redis: a GEO set for
// position queries plus a hash for sample metadata. Other processes (ops
// dashboards, the stream consumer) read positions without touching the API
// process.
type RedisMirror struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisMirror(addr, password, key string) *RedisMirror {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisMirror{client: c, key: key, ctx: context.Background()}
}

func (r *RedisMirror) Set(rideID string, s models.LocationSample) error {
	if _, err := r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: s.Lng, Latitude: s.Lat, Name: rideID}).Result(); err != nil {
		return err
	}
	return r.client.HSet(r.ctx, metaKey(rideID), map[string]interface{}{
		"speed":   strconv.FormatFloat(s.Speed, 'f', -1, 64),
		"updated": s.Timestamp.Format(time.RFC3339),
	}).Err()
}

func (r *RedisMirror) Clear(rideID string) error {
	if err := r.client.ZRem(r.ctx, r.key, rideID).Err(); err != nil {
		return err
	}
	return r.client.Del(r.ctx, metaKey(rideID)).Err()
}

func metaKey(rideID string) string { return "ride:loc:" + rideID }
