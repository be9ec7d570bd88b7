// Package app wires portal runtime dependencies and serves the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apacbi/budgetportal/internal/services/portal/api/rest"
	"github.com/apacbi/budgetportal/internal/services/portal/domain"
	"github.com/apacbi/budgetportal/internal/services/portal/lock"
	"github.com/apacbi/budgetportal/internal/services/portal/publish"
	"github.com/apacbi/budgetportal/internal/services/portal/publish/powerbi"
	"github.com/apacbi/budgetportal/internal/services/portal/session"
	"github.com/apacbi/budgetportal/internal/services/portal/storage/sqlite"
)

// RuntimeConfig controls portal startup and dependency wiring.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	SessionSecret string
	SessionTTL    time.Duration
	HydrateOnMiss bool
	PowerBI       powerbi.Config
	Publish       publish.Config
}

const (
	defaultPortalPort     = 8080
	defaultPortalDB       = "data/portal.db"
	httpShutdownTimeout   = 10 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
)

// Server hosts the portal service.
type Server struct {
	listener    net.Listener
	httpServer  *http.Server
	store       *sqlite.Store
	coordinator *publish.Coordinator
}

// New creates a configured portal server listening on the provided port.
func New(cfg RuntimeConfig) (*Server, error) {
	if cfg.Port <= 0 {
		cfg.Port = defaultPortalPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultPortalDB
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("open portal sqlite store: %w", err)
	}

	gate, err := session.NewGate(store, []byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	handlerCfg := rest.Config{
		Store:         store,
		Sessions:      gate,
		Locks:         lock.NewPartitionLocks(),
		HydrateOnMiss: cfg.HydrateOnMiss,
	}
	if strings.TrimSpace(cfg.PowerBI.ClientID) != "" {
		client, err := powerbi.New(cfg.PowerBI, nil)
		if err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("configure powerbi client: %w", err)
		}
		handlerCfg.Validator = client
		handlerCfg.Reader = client
		handlerCfg.Coordinator, err = publish.NewCoordinator(client, cfg.Publish)
		if err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, err
		}
	} else {
		// No BI credentials; submissions stay local and delivery is logged.
		log.Print("powerbi is not configured, publishing is disabled")
		handlerCfg.Coordinator, err = publish.NewCoordinator(discardPublisher{}, cfg.Publish)
		if err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, err
		}
		handlerCfg.HydrateOnMiss = false
	}

	handler, err := rest.New(handlerCfg)
	if err != nil {
		handlerCfg.Coordinator.Close()
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler.Routes(),
			ReadHeaderTimeout: httpReadHeaderTimeout,
		},
		store:       store,
		coordinator: handlerCfg.Coordinator,
	}, nil
}

// Addr returns the listener address for the portal server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a portal server until the context ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the portal server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("portal server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		err = s.httpServer.Shutdown(shutdownCtx)
		cancel()
		<-serveErr
	case err = <-serveErr:
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	// Let queued publish jobs drain before the store closes under them.
	s.coordinator.Close()
	if closeErr := s.store.Close(); closeErr != nil {
		log.Printf("close portal store: %v", closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve HTTP: %w", err)
	}
	return nil
}

// discardPublisher accepts batches without delivering them anywhere.
type discardPublisher struct{}

func (discardPublisher) Push(_ context.Context, rows []domain.PublishRow) error {
	log.Printf("discarding publish of %d rows: powerbi is not configured", len(rows))
	return nil
}

func (discardPublisher) Refresh(context.Context) error { return nil }
