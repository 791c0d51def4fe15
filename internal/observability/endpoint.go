package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/naturethrive/birdmonitor/internal/logger"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Endpoint serves /metrics over HTTP.
type Endpoint struct {
	server  *http.Server
	metrics *Metrics
	log     logger.Logger
	addr    string
	wg      sync.WaitGroup
}

// NewEndpoint creates a metrics endpoint listening on listenAddress.
func NewEndpoint(listenAddress string, m *Metrics, log logger.Logger) (*Endpoint, error) {
	if listenAddress == "" {
		return nil, fmt.Errorf("metrics listen address is empty")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	return &Endpoint{
		server: &http.Server{
			Addr:              listenAddress,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		metrics: m,
		log:     log.Module("metrics"),
		addr:    listenAddress,
	}, nil
}

// Start binds the listener and serves in the background until ctx is cancelled.
func (e *Endpoint) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics endpoint listen on %s: %w", e.server.Addr, err)
	}
	e.addr = ln.Addr().String()

	e.wg.Go(func() {
		e.log.Info("Metrics endpoint starting", logger.String("address", e.addr))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("Metrics HTTP server error", logger.Error(err))
		}
	})

	e.wg.Go(func() {
		<-ctx.Done()
		e.shutdown()
	})

	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (e *Endpoint) Addr() string {
	return e.addr
}

// Wait blocks until the server has stopped.
func (e *Endpoint) Wait() {
	e.wg.Wait()
}

func (e *Endpoint) shutdown() {
	e.log.Info("Stopping metrics endpoint")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Error("Metrics endpoint shutdown error", logger.Error(err))
	}
}
