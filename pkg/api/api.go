// Package api serves the run index and run files over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/indexer"
	"github.com/splidsboel/assignment3/pkg/indexstore"
	"github.com/splidsboel/assignment3/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

var _ Server = (*server)(nil)

type server struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	indexStore  indexstore.Store
	indexer     indexer.Indexer
	localServer *localFileServer
	presigner   *s3Presigner
	httpServer  *http.Server
	wg          sync.WaitGroup
	done        chan struct{}
	stopOnce    sync.Once
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.Config) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the index, binds the listener and then starts the
// background indexer so the first pass does not delay the API.
func (s *server) Start(ctx context.Context) error {
	s.indexStore = indexstore.NewStore(s.log, &s.cfg.Index.Database)
	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	readers := []storage.Reader{storage.NewLocalReader(s.cfg.Global.ResultsDir)}

	if s.cfg.Index.S3 {
		readers = append(readers, storage.NewS3Reader(&s.cfg.Upload.S3))
		s.presigner = newS3Presigner(s.log, &s.cfg.Upload.S3, defaultPresignExpiry)

		s.log.Info("S3 run indexing and presigned URLs enabled")
	}

	s.localServer = newLocalFileServer(s.log, s.cfg.Global.ResultsDir)
	s.indexer = indexer.NewIndexer(
		s.log, s.indexStore, readers, s.cfg.Index.Interval, s.cfg.Index.Concurrency,
	)

	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind synchronously so port conflicts fail fast.
	ln, err := net.Listen("tcp", s.cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.API.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	if err := s.indexer.Start(ctx); err != nil {
		return fmt.Errorf("starting indexer: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server, the indexer and the store.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			return fmt.Errorf("stopping index store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
