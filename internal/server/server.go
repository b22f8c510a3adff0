/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/shopfloor/internal/api"
	"github.com/friendsincode/shopfloor/internal/audit"
	"github.com/friendsincode/shopfloor/internal/cache"
	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/config"
	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/db"
	"github.com/friendsincode/shopfloor/internal/eventbus"
	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/integrity"
	"github.com/friendsincode/shopfloor/internal/locking"
	"github.com/friendsincode/shopfloor/internal/store"
	"github.com/friendsincode/shopfloor/internal/telemetry"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db          *gorm.DB
	store       *store.GormStore
	cache       *cache.Cache
	calendar    *cache.CalendarCache
	bus         *events.Bus
	publisher   events.Publisher
	calc        *worktime.Calculator
	rescheduler *cascade.Rescheduler
	integrity   *integrity.Service
	audit       *audit.Service
	api         *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(telemetry.TracingMiddleware("shopfloor-api"))
	router.Use(telemetry.MetricsMiddleware)

	bus := events.NewBus()
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       bus,
		publisher: bus,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.api.Routes(srv.router)
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

// securityHeadersMiddleware sets the headers a JSON-only API needs.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return err
	}
	s.store = store.NewGormStore(database, s.logger)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = ""
	if s.cfg.CacheEnabled {
		cacheCfg.RedisAddr = s.cfg.RedisAddr
	}
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	cacheCfg.CalendarTTL = s.cfg.CalendarTTL
	calendarCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	s.cache = calendarCache
	s.DeferClose(s.cache.Close)
	s.calendar = cache.NewCalendarCache(s.cache, s.store)

	locker, err := s.newLocker()
	if err != nil {
		return err
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		if s.cfg.InstanceID != "" {
			natsCfg.Name = "shopfloor-" + s.cfg.InstanceID
		}
		natsBus, err := eventbus.NewNATSBus(natsCfg, s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("initialize nats event bus: %w", err)
		}
		s.publisher = natsBus
		s.DeferClose(natsBus.Close)
	}

	s.calc = worktime.NewCalculator(s.calendar,
		worktime.WithMaxScanDays(s.cfg.ScheduleScanDays),
		worktime.WithWorkingDaySearchLimit(s.cfg.WorkingDaySearchLimit),
	)
	detector := conflict.NewDetector(s.calc, s.store, s.logger, conflict.WithMaxIterations(s.cfg.SlotSearchLimit))
	s.rescheduler = cascade.NewRescheduler(detector, s.store, locker, s.publisher, s.logger)
	s.integrity = integrity.NewService(database, detector, s.rescheduler, s.logger)
	s.audit = audit.NewService(database, s.bus, s.logger)
	s.api = api.New(detector, s.rescheduler, s.store, s.store, s.calendar, s.integrity, s.audit, s.publisher, s.logger)

	return nil
}

func (s *Server) newLocker() (locking.Locker, error) {
	if s.cfg.LockBackend != config.LockRedis {
		return locking.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis lock backend: %w", err)
	}
	s.DeferClose(client.Close)

	s.logger.Info().
		Str("redis_addr", s.cfg.RedisAddr).
		Str("instance_id", s.cfg.InstanceID).
		Msg("redis equipment locks enabled")

	return locking.NewRedisLocker(client, locking.RedisConfig{
		LeaseDuration: s.cfg.LockLease,
		InstanceID:    s.cfg.InstanceID,
	}, s.logger), nil
}

// Store exposes the database store.
func (s *Server) Store() *store.GormStore {
	return s.store
}

// Calculator exposes the schedule calculator, reading capacities through the cache.
func (s *Server) Calculator() *worktime.Calculator {
	return s.calc
}

// Rescheduler exposes the cascade rescheduler.
func (s *Server) Rescheduler() *cascade.Rescheduler {
	return s.rescheduler
}

// Integrity exposes the placement integrity scanner.
func (s *Server) Integrity() *integrity.Service {
	return s.integrity
}

// Audit exposes the placement history.
func (s *Server) Audit() *audit.Service {
	return s.audit
}

// Calendar exposes the cached calendar.
func (s *Server) Calendar() *cache.CalendarCache {
	return s.calendar
}

// Publisher exposes the event publisher, NATS-backed when configured.
func (s *Server) Publisher() events.Publisher {
	return s.publisher
}

// Router exposes the HTTP handler tree.
func (s *Server) Router() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the metrics listener, nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
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
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	auditDone := s.audit.Start(ctx)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		<-auditDone
	}()

	if s.cache.IsAvailable() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener drops cached capacities when any instance updates the calendar.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	updates := s.bus.Subscribe(events.EventCalendarUpdated)
	defer s.bus.Unsubscribe(events.EventCalendarUpdated, updates)

	s.logger.Info().Msg("cache invalidation listener started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case payload, ok := <-updates:
			if !ok {
				return
			}
			raw, _ := payload["date"].(string)
			date, err := worktime.ParseDate(raw)
			if err != nil {
				s.logger.Warn().Str("date", raw).Msg("calendar event without a valid date")
				continue
			}
			if err := s.calendar.Invalidate(ctx, date); err != nil {
				s.logger.Warn().Err(err).Str("date", raw).Msg("calendar cache invalidation failed")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
