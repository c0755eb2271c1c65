package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/restful-users/apiserver/config"
	"github.com/restful-users/apiserver/internal/cache"
	"github.com/restful-users/apiserver/internal/db"
	"github.com/restful-users/apiserver/internal/handlers"
	"github.com/restful-users/apiserver/internal/mq"
	"github.com/restful-users/apiserver/internal/services"
	"github.com/restful-users/apiserver/internal/store"
	"github.com/rs/zerolog"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	broker     *mq.MQ
	userEvents *mq.UserEvents
	users      *services.UserService
	logger     zerolog.Logger

	subscriptionCtx     context.Context
	cancelSubscriptions context.CancelFunc
	subscriptions       sync.WaitGroup
}

// New opens the database and broker, seeds when configured and builds the
// router. The caller owns the returned Server and must call Shutdown.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	gormDB, err := db.OpenGorm(dbConn, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	instanceID := uuid.NewString()
	logger = logger.With().Str("instance", instanceID).Logger()

	broker, err := mq.NewFromConfig(ctx, cfg.Events, instanceID)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var (
		userEvents *mq.UserEvents
		publisher  services.EventPublisher
	)
	if broker != nil {
		userEvents = mq.NewUserEvents(broker, cfg.Events.Channel, instanceID)
		publisher = userEvents
	}

	userRepo := store.NewUserRepository(gormDB)
	userService := services.NewUserService(userRepo, cache.New("users"), publisher, logger)

	closeAll := func() {
		if broker != nil {
			_ = broker.Close()
		}
		_ = dbConn.Close()
	}

	if cfg.SeedOnStart {
		if _, err := userService.SeedDefaults(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("seed users: %w", err)
		}
	}

	auth, err := handlers.NewAuthenticator(cfg.Auth)
	if err != nil {
		closeAll()
		return nil, err
	}
	if !auth.Enabled() {
		logger.Warn().Msg("authentication disabled, every route is open")
	} else if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, issued tokens will not survive a restart")
	}

	router := NewRouter(cfg, userService, auth, dbConn, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	subscriptionCtx, cancelSubscriptions := context.WithCancel(context.Background())

	return &Server{
		httpServer:          httpServer,
		db:                  dbConn,
		broker:              broker,
		userEvents:          userEvents,
		users:               userService,
		logger:              logger,
		subscriptionCtx:     subscriptionCtx,
		cancelSubscriptions: cancelSubscriptions,
	}, nil
}

// NewRouter builds the HTTP surface. pinger backs /healthz and may be nil.
func NewRouter(
	cfg config.Config,
	userService *services.UserService,
	auth *handlers.Authenticator,
	pinger handlers.Pinger,
	logger zerolog.Logger,
) *chi.Mux {
	basePath := "/" + strings.Trim(cfg.UsersBasePath, "/")
	if basePath == "/" {
		basePath = "/api/users"
	}

	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	limiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(logger),
		handlers.Recoverer,
		middleware.Timeout(requestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{origin},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}),
	)

	router.Get("/healthz", handlers.Healthz(pinger))
	router.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, auth)
		})
		r.Route(basePath, func(r chi.Router) {
			r.Use(auth.RequireAuth)
			handlers.UserRouter(r, userService, basePath, auth.RequireRole(handlers.RoleAdmin))
		})
	})

	return router
}

// Start listens for user events from other replicas and runs the HTTP
// server until Shutdown.
func (s *Server) Start() error {
	if s.userEvents != nil {
		s.logger.Info().Str("channel", s.userEvents.Channel()).Msg("listening for user events")
		s.subscriptions.Add(1)
		go func() {
			defer s.subscriptions.Done()
			err := EvictOnRemoteEvents(s.subscriptionCtx, s.userEvents, s.users, s.logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("user event subscription stopped")
			}
		}()
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.cancelSubscriptions()
	s.subscriptions.Wait()

	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

// EvictOnRemoteEvents empties the local cache whenever another instance
// reports a user write. It blocks until ctx is done.
func EvictOnRemoteEvents(ctx context.Context, events *mq.UserEvents, users *services.UserService, logger zerolog.Logger) error {
	return events.Subscribe(ctx, func(ctx context.Context, event mq.UserEvent) error {
		if event.Origin == events.Origin() {
			return nil
		}
		users.InvalidateCache()
		logger.Debug().
			Str("event", string(event.Type)).
			Str("origin", event.Origin).
			Int64("user_id", event.UserID).
			Msg("cache evicted by remote write")
		return nil
	})
}
