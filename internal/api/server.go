package api

import (
    "context"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "cabdispatch/internal/alloc"
    "cabdispatch/internal/auth"
    "cabdispatch/internal/config"
    "cabdispatch/internal/metrics"
    "cabdispatch/internal/store"
    "cabdispatch/internal/webhooks"
)

type Server struct {
    Store  store.Store
    Auth   *auth.Verifier
    Broker EventBroker
    Engine *alloc.Engine
    Log    *logrus.Logger
    Config *config.Config
    // Hooks is nil unless webhook receivers are configured.
    Hooks  *webhooks.Notifier

    limiter *ipLimiter
    mux     *http.ServeMux
    // allocMu serializes allocate-then-persist so two requests cannot pick the same driver.
    allocMu sync.Mutex
}

// NewServer wires the store, broker and engine selected by cfg.
func NewServer(cfg *config.Config, log *logrus.Logger) (*Server, error) {
    st, err := openStore(cfg.Storage, log)
    if err != nil { return nil, err }
    loc, err := cfg.Allocation.Location()
    if err != nil {
        _ = st.Close()
        return nil, fmt.Errorf("allocation timezone: %w", err)
    }
    opts := []alloc.Option{alloc.WithWeights(cfg.Allocation.Weights), alloc.WithLocation(loc)}
    if cfg.Allocation.Seed != 0 { opts = append(opts, alloc.WithSeed(cfg.Allocation.Seed)) }
    engine, err := alloc.NewEngine(opts...)
    if err != nil {
        _ = st.Close()
        return nil, err
    }
    var broker EventBroker = NewBroker()
    if cfg.Redis.URL != "" {
        if rb, err := NewRedisBroker(cfg.Redis.URL, log); err == nil {
            broker = rb
        } else {
            log.WithError(err).Warn("redis unavailable, using in-process broker")
        }
    }
    s := newServer(cfg, log, st, broker, engine)
    if len(cfg.Webhooks.URLs) > 0 {
        s.Hooks = webhooks.NewNotifier(cfg.Webhooks.URLs, cfg.Webhooks.Secret, cfg.Webhooks.MaxAttempts, log)
        s.Hooks.Start()
    }
    return s, nil
}

func newServer(cfg *config.Config, log *logrus.Logger, st store.Store, broker EventBroker, engine *alloc.Engine) *Server {
    s := &Server{
        Store:   st,
        Auth:    auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret),
        Broker:  broker,
        Engine:  engine,
        Log:     log,
        Config:  cfg,
        limiter: newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
        mux:     http.NewServeMux(),
    }
    s.routes()
    return s
}

func openStore(cfg config.StorageConfig, log *logrus.Logger) (store.Store, error) {
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    switch cfg.Backend() {
    case config.BackendPostgres:
        sp, err := store.NewPostgres(cfg.PostgresDSN)
        if err != nil { return nil, err }
        if cfg.Migrate {
            if err := sp.Migrate(ctx); err != nil {
                _ = sp.Close()
                return nil, fmt.Errorf("migrate: %w", err)
            }
        }
        log.Info("using postgres store")
        return sp, nil
    case config.BackendMongo:
        sm, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
        if err != nil { return nil, err }
        if cfg.Migrate {
            if err := sm.EnsureIndexes(ctx); err != nil {
                _ = sm.Close()
                return nil, fmt.Errorf("mongo indexes: %w", err)
            }
        }
        log.Info("using mongo store")
        return sm, nil
    default:
        log.Info("using in-memory store")
        return store.NewMemory(), nil
    }
}

func (s *Server) routes() {
    // Bookings
    s.mux.HandleFunc("/v1/bookings", s.BookingsHandler)
    s.mux.HandleFunc("/v1/bookings/", s.BookingByIDHandler) // includes /allocate, /cancel, /complete

    // Allocation
    s.mux.HandleFunc("/v1/allocations/bulk", s.BulkAllocateHandler)
    s.mux.HandleFunc("/v1/allocator/config", s.AllocatorConfigHandler)
    s.mux.HandleFunc("/v1/fleet/suggestions", s.SuggestionsHandler)

    // Fleet
    s.mux.HandleFunc("/v1/drivers", s.DriversHandler)
    s.mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)

    // Live updates
    s.mux.HandleFunc("/v1/events/stream", s.EventsStreamHandler)
    s.mux.HandleFunc("/v1/ws", s.WSHandler)

    // Ops
    s.mux.HandleFunc("/healthz", s.HealthHandler)
    s.mux.HandleFunc("/readyz", s.ReadyHandler)
    s.mux.Handle("/metrics", metrics.Handler())
    s.mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
    s.mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    s.mux.HandleFunc("/debug/info", s.DebugJSON)
}

// Handler returns the mux wrapped in the request middleware chain.
func (s *Server) Handler() http.Handler {
    return s.withLogging(s.withMetrics(s.withRateLimit(s.mux)))
}

// Close stops webhook delivery and releases the broker and store.
func (s *Server) Close() error {
    if s.Hooks != nil { s.Hooks.Close() }
    if c, ok := s.Broker.(interface{ Close() error }); ok {
        if err := c.Close(); err != nil { s.Log.WithError(err).Warn("close broker") }
    }
    return s.Store.Close()
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) publish(typ string, data map[string]any) {
    s.Broker.Publish(FleetTopic, SSEEvent{Type: typ, Data: data})
    if s.Hooks != nil { s.Hooks.Emit(typ, data) }
}
