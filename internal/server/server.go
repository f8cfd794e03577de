/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/analytics"
	"github.com/friendsincode/grimnir_player/internal/api"
	"github.com/friendsincode/grimnir_player/internal/cache"
	"github.com/friendsincode/grimnir_player/internal/catalog"
	"github.com/friendsincode/grimnir_player/internal/catalogsync"
	"github.com/friendsincode/grimnir_player/internal/config"
	"github.com/friendsincode/grimnir_player/internal/db"
	"github.com/friendsincode/grimnir_player/internal/eventbus"
	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/leadership"
	"github.com/friendsincode/grimnir_player/internal/logbuffer"
	"github.com/friendsincode/grimnir_player/internal/queue"
	"github.com/friendsincode/grimnir_player/internal/resolver"
	"github.com/friendsincode/grimnir_player/internal/smartplaylist"
	"github.com/friendsincode/grimnir_player/internal/storage"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
	"github.com/friendsincode/grimnir_player/internal/transport"
)

const (
	// listCacheLimit bounds each approved-catalog fetch behind /tracks.
	listCacheLimit = 500
	// listCacheCapacity bounds the number of distinct viewer lists held.
	listCacheCapacity = 256
	// clockTick is how often the server-side media clock reports progress.
	clockTick = 500 * time.Millisecond
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	api       *api.API

	resolver  *resolver.Resolver
	transport *transport.Controller
	queue     *queue.Manager
	adapter   *catalogsync.Adapter
	sources   []catalogsync.Source
	reporter  *analytics.Reporter
	scheduler *smartplaylist.Scheduler
	election  *leadership.Election

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, telemetry.ServiceName+"-api")
	})
	router.Use(telemetry.MetricsMiddleware)
	// The session stream is long lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}

	if err := srv.initDependencies(); err != nil {
		bgCancel()
		_ = srv.runClosers()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Handlers manage their own deadlines so the session stream stays open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           telemetry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.MigrateWithChannel(database, s.cfg.CatalogEventChannel); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if s.cfg.S3Bucket == "" && s.cfg.StorageBaseURL == "" {
		if err := os.MkdirAll(s.cfg.MediaRoot, 0o755); err != nil {
			return fmt.Errorf("failed to create media directory %s: %w", s.cfg.MediaRoot, err)
		}
	}
	urls, err := storage.New(s.bgCtx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	checkCtx, cancel := context.WithTimeout(s.bgCtx, 5*time.Second)
	if err := urls.CheckAccess(checkCtx); err != nil {
		s.logger.Warn().Err(err).Msg("media storage check failed, continuing")
	}
	cancel()

	tracks := catalog.NewStore(database)
	playlists := catalog.NewPlaylistStore(database)
	plays := catalog.NewPlayStore(database)
	policy := access.Policy{}

	s.reporter = analytics.NewReporter(plays, s.logger)

	opts := []resolver.Option{
		resolver.WithPolicy(policy),
		resolver.WithObserver(s.reporter),
	}
	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		cacheCfg.TrackTTL = s.cfg.ResolvedItemTTL
		trackCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = trackCache
			s.DeferClose(trackCache.Close)
			opts = append(opts, resolver.WithCache(trackCache))
		}
	}
	s.resolver = resolver.New(tracks, urls, s.cfg.PlaceholderArtworkURL, s.logger, opts...)

	s.transport = transport.NewController(transport.NewClockElement(clockTick), s.bus, s.cfg.DefaultVolume, s.logger)
	s.queue = queue.NewManager(s.resolver, s.transport, s.bus, queue.Config{
		SkipOnPlaybackError: s.cfg.SkipOnPlaybackError,
		Policy:              policy,
	}, s.logger)
	s.transport.SetEndedHandler(func() {
		go func() {
			if err := s.queue.OnTrackEnded(s.bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("auto-advance failed")
			}
		}()
	})

	lists := catalogsync.NewListCache(tracks, policy, listCacheLimit, listCacheCapacity)
	s.adapter = catalogsync.NewAdapter(s.cfg.SyncDebounce, s.resolver, s.bus, s.logger)
	s.adapter.Register(lists)
	if err := s.initEventSource(); err != nil {
		return err
	}

	engine := smartplaylist.NewEngine(tracks, plays, playlists, policy, s.bus, smartplaylist.DefaultConfig(), s.logger)
	aggregator := smartplaylist.NewAggregator(
		smartplaylist.OwnedSource{Store: playlists},
		smartplaylist.GlobalSource{Store: playlists},
		engine,
		s.logger,
	)

	var leader smartplaylist.Leader
	if s.cfg.LeaderElectionEnabled && s.cfg.PlaylistRefreshInterval > 0 {
		electionCfg := leadership.DefaultConfig()
		electionCfg.RedisAddr = s.cfg.RedisAddr
		electionCfg.RedisPassword = s.cfg.RedisPassword
		electionCfg.RedisDB = s.cfg.RedisDB
		if s.cfg.InstanceID != "" {
			electionCfg.InstanceID = s.cfg.InstanceID
		}
		election, err := leadership.NewElection(electionCfg, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.election = election
		s.DeferClose(election.Stop)
		leader = election
	}
	s.scheduler = smartplaylist.NewScheduler(engine, []string{smartplaylist.TopTracks}, s.cfg.PlaylistRefreshInterval, leader, s.logger)

	s.api = api.New(s.queue, s.transport, s.resolver, lists, aggregator, s.bus, []byte(s.cfg.JWTSigningKey), s.logger)
	if s.logBuffer != nil {
		s.api.SetLogSource(s.logBuffer)
	}
	return nil
}

// initEventSource selects the catalog change feed.
func (s *Server) initEventSource() error {
	channel := s.cfg.CatalogEventChannel

	switch s.cfg.CatalogEventSource {
	case config.EventSourceNone, "":
		s.logger.Info().Msg("no catalog event source configured, track lists refresh on load only")
	case config.EventSourceRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		redisCfg.Channel = channel
		src := eventbus.NewRedisSource(redisCfg, s.logger)
		s.DeferClose(src.Close)
		s.sources = append(s.sources, src)
	case config.EventSourceNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Subject = channel
		name := telemetry.ServiceName
		if s.cfg.InstanceID != "" {
			name += "-" + s.cfg.InstanceID
		}
		s.sources = append(s.sources, eventbus.NewNATSSource(natsCfg, name, s.logger))
	case config.EventSourcePostgres:
		s.sources = append(s.sources, eventbus.NewPostgresSource(s.cfg.DBDSN, channel, s.logger))
	default:
		return fmt.Errorf("unsupported catalog event source %q", s.cfg.CatalogEventSource)
	}
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus listener, or nil when metrics are
// served on the main router.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Router exposes the configured router.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close stops background work and releases owned resources in reverse order.
func (s *Server) Close() error {
	if s.transport != nil {
		// Halts the media clock; an idle session has nothing to pause.
		_ = s.transport.Pause()
	}
	s.stopBackgroundWorkers()
	if s.reporter != nil {
		s.reporter.Wait()
	}
	return s.runClosers()
}

func (s *Server) runClosers() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx := s.bgCtx

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.reporter.Start(ctx, s.bus)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.adapter.Run(ctx, s.sources...); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("catalog sync exited")
		}
	}()

	if s.election != nil {
		s.election.Start(ctx)
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.scheduler.Run(ctx)
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.election != nil {
			if s.election.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}
