package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ridehail/internal/auth"
	"github.com/example/ridehail/internal/config"
	"github.com/example/ridehail/internal/engine"
	"github.com/example/ridehail/internal/ingest"
	"github.com/example/ridehail/internal/live"
	"github.com/example/ridehail/internal/locmirror"
	"github.com/example/ridehail/internal/payments"
	"github.com/example/ridehail/internal/store"
)

type Server struct {
	Store    store.EntityStore
	Engine   *engine.Service
	Registry *live.Registry
	Relay    *live.Relay
	Tokens   *auth.TokenManager

	cfg    config.ServerConfig
	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the whole process: memory store as source of truth,
// optional postgres archive, kafka publisher and redis mirror when
// configured, simulated escrow unless a Stripe key is present.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	st := store.NewMemoryStore()

	var archive store.RideArchive
	if cfg.PGDSN != "" {
		pa, err := store.NewPostgresArchive(cfg.PGDSN)
		if err != nil {
			logger.Warn("ride archive unavailable", "error", err)
		} else {
			archive = pa
		}
	}

	reg := live.NewRegistry(logger)
	relay := live.NewRelay(st, reg, logger)
	reg.LastKnown = relay.Last

	if len(cfg.KafkaBrokers) > 0 {
		relay.Publisher = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.RedisAddr != "" {
		relay.Mirror = locmirror.NewRedisMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	var gw payments.Gateway = &payments.SimulatedGateway{Delay: cfg.GatewayDelay}
	if cfg.StripeEnabled {
		gw = payments.NewStripeGateway()
	}

	eng := &engine.Service{
		Store:    st,
		Archive:  archive,
		Dispatch: reg,
		Relay:    relay,
		Gateway:  gw,
		Logger:   logger,
	}

	s := &Server{
		Store:    st,
		Engine:   eng,
		Registry: reg,
		Relay:    relay,
		Tokens:   auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		cfg:      cfg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/connect", s.handleConnect).Methods("POST")
	api.HandleFunc("/rides/request", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides/available", s.handleAvailableRides).Methods("GET")
	api.HandleFunc("/rides/active/{userId}", s.handleActiveRide).Methods("GET")
	api.HandleFunc("/rides/history/{userId}", s.handleRideHistory).Methods("GET")
	api.HandleFunc("/rides/{rideId}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{rideId}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/rides/{rideId}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/rides/{rideId}/complete", s.handleComplete).Methods("POST")
	api.HandleFunc("/rides/{rideId}/cancel", s.handleCancel).Methods("POST")

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
