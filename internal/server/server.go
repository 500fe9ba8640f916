// Package server runs the pacparser HTTP service around a loaded PAC script.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/rennerdo30/pacparser/internal/api"
	"github.com/rennerdo30/pacparser/internal/config"
	"github.com/rennerdo30/pacparser/internal/directive"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/metrics"
	"github.com/rennerdo30/pacparser/internal/pac"
	"github.com/rennerdo30/pacparser/internal/ratelimit"
)

// Server owns the PAC engine and the API listener.
type Server struct {
	config           *config.Config
	engine           *pac.Engine
	metrics          *metrics.Metrics
	metricsCollector *metrics.Collector
	logger           *slog.Logger

	// scriptMu guards script swaps against in-flight lookups.
	scriptMu sync.RWMutex
	script   *pac.Script
	source   []byte

	listener  net.Listener
	apiServer *http.Server
	limiter   *ratelimit.KeyedLimiter

	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// New creates a server and loads the configured PAC file.
func New(cfg *config.Config) (*Server, error) {
	logger := logging.WithComponent("server")

	res, err := cfg.Resolver.Build()
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	engine, err := pac.New(pac.Config{
		Exclusive: cfg.PAC.Exclusive,
		Resolver:  res,
		MyIP:      cfg.PAC.MyIP,
		Logger:    logging.WithComponent("pac"),
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("create PAC engine: %w", err)
	}

	s := &Server{
		config:  cfg,
		engine:  engine,
		metrics: m,
		logger:  logger,
	}
	s.metricsCollector = metrics.NewCollector(m, cfg.Metrics.CollectionInterval.Duration(), s.sampleScript)

	source, err := os.ReadFile(cfg.PAC.File)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("read PAC file: %w", err)
	}
	if s.script, err = engine.Load(string(source)); err != nil {
		engine.Close()
		return nil, fmt.Errorf("load PAC file %s: %w", cfg.PAC.File, err)
	}
	s.source = source

	return s, nil
}

// FindProxyForHost evaluates the current script. It implements api.ProxyFinder.
func (s *Server) FindProxyForHost(rawURL, host string) ([]directive.Entry, error) {
	s.scriptMu.RLock()
	defer s.scriptMu.RUnlock()

	if s.script == nil {
		return nil, pac.ErrClosed
	}
	return s.script.FindProxyForHost(rawURL, host)
}

// Source returns the text of the current script.
func (s *Server) Source() []byte {
	s.scriptMu.RLock()
	defer s.scriptMu.RUnlock()
	return s.source
}

// sampleScript publishes the loaded script size.
func (s *Server) sampleScript(m *metrics.Metrics) {
	s.scriptMu.RLock()
	defer s.scriptMu.RUnlock()

	if s.script == nil {
		m.RecordScript(nil)
		return
	}
	m.RecordScript(s.source)
}

// Start begins serving the API.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	access, err := s.config.API.AccessController()
	if err != nil {
		return fmt.Errorf("api access list: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.API.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.API.Listen, err)
	}
	s.listener = ln

	if rl := s.config.API.RateLimit; rl.Enabled() {
		s.limiter = ratelimit.NewKeyedLimiter(rl)
	}

	handler := api.New(api.Config{
		Finder:      s,
		Source:      s.Source,
		Token:       s.config.API.Token,
		TokenHash:   s.config.API.TokenHash,
		Access:      access,
		Limiter:     s.limiter,
		Timeout:     s.config.API.RequestTimeout.Duration(),
		Metrics:     s.metrics,
		MetricsPath: s.config.Metrics.Path,
		Logger:      logging.WithComponent("api"),
	}).Router()
	s.apiServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.config.API.RequestTimeout.Duration(),
	}

	s.metricsCollector.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.apiServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

// Addr returns the address the API listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server and releases the engine.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	var errs error
	if wasRunning {
		s.logger.Info("Stopping server")
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("shutdown API: %w", err))
		}
		s.wg.Wait()
		s.metricsCollector.Stop()
		if s.limiter != nil {
			s.limiter.Close()
		}
	}

	s.scriptMu.Lock()
	s.script = nil
	s.scriptMu.Unlock()

	return errors.Join(errs, s.engine.Close())
}

// Running reports whether the API is being served.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ReloadScript re-reads the PAC file and swaps it in. If the new script does
// not load, the previous one is restored.
func (s *Server) ReloadScript() error {
	err := s.reloadScript()
	s.metrics.RecordReload(err == nil)
	return err
}

func (s *Server) reloadScript() error {
	source, err := os.ReadFile(s.config.PAC.File)
	if err != nil {
		return fmt.Errorf("read PAC file: %w", err)
	}

	s.scriptMu.Lock()
	defer s.scriptMu.Unlock()

	if s.script == nil {
		return pac.ErrClosed
	}
	s.script.Close()

	script, err := s.engine.Load(string(source))
	if err != nil {
		restored, restoreErr := s.engine.Load(string(s.source))
		if restoreErr != nil {
			s.script = nil
			return errors.Join(fmt.Errorf("load PAC file: %w", err), fmt.Errorf("restore previous script: %w", restoreErr))
		}
		s.script = restored
		return fmt.Errorf("load PAC file: %w", err)
	}

	s.script = script
	s.source = source
	s.logger.Info("PAC script reloaded", "file", s.config.PAC.File, "bytes", len(source))
	return nil
}
