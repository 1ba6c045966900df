package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ridehail/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // browser demo, any origin
}

// handleWS runs one connection's read loop. Nothing is delivered until the
// client subscribes to a ride. Malformed frames are logged and dropped
// without closing the connection; a read error tears the session down and
// synchronously unsubscribes it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	sess := s.Registry.Register(conn)
	defer func() {
		s.Registry.Disconnect(sess)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg models.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("malformed ws frame", "error", err)
			continue
		}
		switch msg.Type {
		case models.MsgSubscribe:
			if msg.RideID == "" {
				s.logger.Warn("subscribe without rideId")
				continue
			}
			s.Registry.Subscribe(sess, msg.RideID)
		case models.MsgUnsubscribe:
			s.Registry.Unsubscribe(sess)
		case models.MsgLocationUpdate:
			sample, ok := decodeSample(msg)
			if !ok {
				s.logger.Warn("malformed location_update", "ride_id", msg.RideID)
				continue
			}
			s.Relay.Ingest(msg.RideID, sample, sess)
		default:
			s.logger.Warn("unknown ws message type", "type", msg.Type)
		}
	}
}

func decodeSample(msg models.WSMessage) (models.LocationSample, bool) {
	if msg.RideID == "" || msg.Data == nil {
		return models.LocationSample{}, false
	}
	raw, ok := msg.Data["location"]
	if !ok {
		return models.LocationSample{}, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return models.LocationSample{}, false
	}
	var sample models.LocationSample
	if err := json.Unmarshal(b, &sample); err != nil {
		return models.LocationSample{}, false
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	return sample, true
}
