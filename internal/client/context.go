package client

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ridehail/internal/models"
)

// ConnState is the live-channel connection state machine:
// disconnected -> connecting -> connected, back to disconnected on any error.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// WSConn is the slice of a websocket connection the context needs.
type WSConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer opens live-channel connections; tests substitute a fake.
type Dialer interface {
	Dial(url string) (WSConn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(url string) (WSConn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const defaultReconnectDelay = 3 * time.Second

// RideContext is the client-side counterpart of the server: it holds the
// user's current ride view, keeps exactly one live connection, and reissues
// a single reconnect attempt after a fixed delay whenever the channel drops.
type RideContext struct {
	URL            string
	Dialer         Dialer
	ReconnectDelay time.Duration
	Logger         *slog.Logger

	mu           sync.Mutex
	state        ConnState
	conn         WSConn
	activeRideID string
	activeRide   map[string]any // shallow-merged ride view
	available    []models.AvailableRide
	history      []models.RideView
	lastLocation *models.LocationSample
	reconnect    *time.Timer // the single pending reconnect handle
	closed       bool
}

func NewRideContext(url string, logger *slog.Logger) *RideContext {
	return &RideContext{
		URL:            url,
		Dialer:         gorillaDialer{},
		ReconnectDelay: defaultReconnectDelay,
		Logger:         logger,
		state:          StateDisconnected,
	}
}

// Connect dials the live channel. On open nothing is sent; the server hears
// from us only when a subscription is requested. On failure a reconnect is
// scheduled.
func (c *RideContext) Connect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	url, dialer := c.URL, c.Dialer
	c.mu.Unlock()

	conn, err := dialer.Dial(url)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.Logger.Warn("live channel dial failed", "error", err)
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn)
}

// State reports the connection state.
func (c *RideContext) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetActiveRide seeds the local view, usually from GET /rides/active.
func (c *RideContext) SetActiveRide(view models.RideView) {
	b, _ := json.Marshal(view)
	m := map[string]any{}
	_ = json.Unmarshal(b, &m)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeRideID = view.ID
	c.activeRide = m
}

// ActiveRide returns a copy of the merged ride view, nil when no ride is
// active.
func (c *RideContext) ActiveRide() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeRide == nil {
		return nil
	}
	out := make(map[string]any, len(c.activeRide))
	for k, v := range c.activeRide {
		out[k] = v
	}
	return out
}

// SetAvailable / SetHistory cache the REST listings for the UI.
func (c *RideContext) SetAvailable(rides []models.AvailableRide) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = rides
}

func (c *RideContext) Available() []models.AvailableRide {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *RideContext) SetHistory(rides []models.RideView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = rides
}

func (c *RideContext) History() []models.RideView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history
}

// LastLocation is the most recent position received or sent for the active
// ride.
func (c *RideContext) LastLocation() *models.LocationSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastLocation == nil {
		return nil
	}
	cp := *c.lastLocation
	return &cp
}

// Subscribe registers interest in a ride's updates, replacing any prior
// subscription server-side.
func (c *RideContext) Subscribe(rideID string) error {
	c.mu.Lock()
	c.activeRideID = rideID
	conn, connected := c.conn, c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return conn.WriteJSON(models.WSMessage{Type: models.MsgSubscribe, RideID: rideID})
}

func (c *RideContext) Unsubscribe() error {
	c.mu.Lock()
	c.activeRideID = ""
	c.activeRide = nil
	conn, connected := c.conn, c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}
	return conn.WriteJSON(models.WSMessage{Type: models.MsgUnsubscribe})
}

// SendLocation reports this device's position, tagged with the active ride.
// A no-op when there is no active ride or the channel is down.
func (c *RideContext) SendLocation(sample models.LocationSample) error {
	c.mu.Lock()
	rideID := c.activeRideID
	conn, connected := c.conn, c.state == StateConnected
	if rideID != "" {
		cp := sample
		c.lastLocation = &cp
	}
	c.mu.Unlock()
	if rideID == "" || !connected {
		return nil
	}
	return conn.WriteJSON(models.WSMessage{
		Type:   models.MsgLocationUpdate,
		RideID: rideID,
		Data:   map[string]any{"location": sample},
	})
}

// Close tears the context down: cancels any pending reconnect and closes the
// channel. The context cannot be reused afterwards.
func (c *RideContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
}

func (c *RideContext) readLoop(conn WSConn) {
	for {
		var msg models.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.state = StateDisconnected
				c.scheduleReconnectLocked()
			}
			c.mu.Unlock()
			return
		}
		c.handle(msg)
	}
}

// handle applies a server frame to local state. ride_status merges shallowly,
// so fields absent from the partial update survive.
func (c *RideContext) handle(msg models.WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case models.MsgLocationUpdate:
		if raw, ok := msg.Data["location"]; ok {
			b, _ := json.Marshal(raw)
			var sample models.LocationSample
			if err := json.Unmarshal(b, &sample); err == nil {
				c.lastLocation = &sample
			}
		}
	case models.MsgRideStatus:
		if msg.RideID != "" && msg.RideID != c.activeRideID {
			return
		}
		if c.activeRide == nil {
			c.activeRide = map[string]any{}
		}
		for k, v := range msg.Data {
			c.activeRide[k] = v
		}
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is already in
// flight or the context is closed. Exactly one attempt per drop; the attempt
// itself re-arms on failure, so the retry repeats until teardown.
func (c *RideContext) scheduleReconnectLocked() {
	if c.closed || c.reconnect != nil {
		return
	}
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.Connect()
	})
}
