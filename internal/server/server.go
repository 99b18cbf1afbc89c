// Package server is the composition root: it wires every collaborator
// package into the running HTTP surface, grounded on the teacher's
// internal/api/server.go Server struct (one place building every
// service and handing the result to an HTTP listener).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/clojars/deploy-ingest/internal/audit"
	"github.com/clojars/deploy-ingest/internal/auth"
	"github.com/clojars/deploy-ingest/internal/central"
	"github.com/clojars/deploy-ingest/internal/config"
	"github.com/clojars/deploy-ingest/internal/database"
	"github.com/clojars/deploy-ingest/internal/deploy"
	"github.com/clojars/deploy-ingest/internal/errorreporter"
	"github.com/clojars/deploy-ingest/internal/logger"
	"github.com/clojars/deploy-ingest/internal/search"
	"github.com/clojars/deploy-ingest/internal/session"
	"github.com/clojars/deploy-ingest/internal/staging"
	"github.com/clojars/deploy-ingest/internal/storage"
	"github.com/clojars/deploy-ingest/internal/validation"
)

// Server owns every long-lived collaborator and the HTTP listener
// built from them.
type Server struct {
	cfg    *config.Config
	log    *logrus.Logger
	db     *database.DB
	search *search.Indexer
	http   *http.Server

	indexCancel context.CancelFunc
}

// New builds a Server from cfg: opens the database, runs migrations,
// constructs the blob store, staging store, validator, search
// indexer, finalizer, upload handler and router, exactly the way the
// teacher's api.NewServer assembles its services before building a
// single http.Server.
func New(cfg *config.Config) (*Server, error) {
	log := logger.New(cfg.LogLevel)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(log); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	stagingStore, err := staging.NewStore(cfg.StagingRoot)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open staging store: %w", err)
	}

	blob, err := storage.New(storage.Config{
		BasePath:     cfg.BlobRoot,
		DataShards:   cfg.ErasureDataShards,
		ParityShards: cfg.ErasureParityShards,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	indexer, err := search.New(cfg.RedisURL, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open search indexer: %w", err)
	}

	auditLogger := audit.New(log)
	reporter := errorreporter.New(log)
	centralChecker := central.NewChecker(cfg.CentralSearchURL, cfg.CentralAllowlist)
	validator := validation.New(db, centralChecker)

	finalizer := &deploy.Finalizer{
		Staging:   stagingStore,
		Validator: validator,
		DB:        db,
		Blob:      blob,
		Search:    indexer,
		Audit:     auditLogger,
		Log:       log,
	}

	sessions := &deploy.SessionManager{
		Staging: stagingStore,
		Codec:   session.NewCodec(cfg.SessionSecret, cfg.SessionTTL),
		Groups:  db,
	}

	uploadHandler := &deploy.UploadHandler{
		Sessions:  sessions,
		Finalizer: finalizer,
		Blob:      blob,
	}

	router := &deploy.Router{
		Upload:   uploadHandler,
		Sessions: sessions,
		Auth:     auth.NewTokenAuthenticator(cfg.SessionSecret),
		Reporter: reporter,
		Audit:    auditLogger,
		Log:      log,
	}

	return &Server{
		cfg:    cfg,
		log:    log,
		db:     db,
		search: indexer,
		http: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      withTimeouts(router.NewRouter(), cfg.RequestTimeout),
			ReadTimeout:  cfg.RequestTimeout,
			WriteTimeout: cfg.RequestTimeout,
		},
	}, nil
}

// withTimeouts bounds every request to the configured timeout, a
// thinner stand-in for the teacher's gin server timeouts (spec §5
// "there is no explicit timeout inside the core" — the bound here is
// at the transport layer, outside the core's own logic).
func withTimeouts(h *mux.Router, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		return h
	}
	return http.TimeoutHandler(h, timeout, "request timed out")
}

// Run starts the HTTP listener and the background search-index worker,
// blocking until the listener stops.
func (s *Server) Run() error {
	indexCtx, cancel := context.WithCancel(context.Background())
	s.indexCancel = cancel
	go s.runIndexWorker(indexCtx)

	s.log.WithField("addr", s.http.Addr).Info("deploy ingestion core listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runIndexWorker drains the search-indexing queue the finalizer
// enqueues to (spec §9's durable-queue design note). There is no real
// search backend wired into this core (spec §6 describes "index!" as
// an external collaborator); the worker logs each job at info level,
// giving the queue somewhere to actually be drained.
func (s *Server) runIndexWorker(ctx context.Context) {
	err := s.search.Run(ctx, func(ctx context.Context, job search.Job) error {
		s.log.WithFields(logrus.Fields{
			"group":   job.Group,
			"name":    job.Name,
			"version": job.Version,
			"at":      job.At,
		}).Info("indexed artifact")
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("search index worker stopped")
	}
}

// Shutdown gracefully stops the HTTP listener, the background index
// worker, and releases the database connection pool.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.indexCancel != nil {
		s.indexCancel()
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}
