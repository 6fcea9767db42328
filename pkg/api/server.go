// Package api is the blob transfer REST API. Blob bodies travel either raw or
// as structured messages announced by the x-ms-structured-body header.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ssargent/structmsg/pkg/structmsg"
)

// Router returns the HTTP handler with all routes configured. gatherer
// backs the /metrics endpoint.
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			structmsg.HeaderStructuredBody,
			structmsg.HeaderStructuredContentLength,
			HeaderBlobCrc64,
			HeaderBlobCreated,
			"Content-Range",
		},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metrics.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		// Health check
		r.Get("/health", s.metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		// Blob operations
		r.Put("/blobs", s.metrics.InstrumentHandler("PUT", "/api/v1/blobs", s.handlePutBlob))
		r.Get("/blobs", s.metrics.InstrumentHandler("GET", "/api/v1/blobs", s.handleListBlobs))
		r.Get("/blobs/{id}", s.metrics.InstrumentHandler("GET", "/api/v1/blobs/{id}", s.handleGetBlob))
		r.Head("/blobs/{id}", s.metrics.InstrumentHandler("HEAD", "/api/v1/blobs/{id}", s.handleStatBlob))
		r.Delete("/blobs/{id}", s.metrics.InstrumentHandler("DELETE", "/api/v1/blobs/{id}", s.handleDeleteBlob))
	})

	return r
}

// StartServer serves the API until ctx is cancelled, then shuts down
// gracefully
func StartServer(ctx context.Context, store IBlobStore, config ServerConfig, logger zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server := NewServer(store, config, NewMetrics(registry), logger)

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return server.Serve(ctx, listener, registry)
}

// Serve serves the API on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener, gatherer prometheus.Gatherer) error {
	httpServer := &http.Server{
		Handler:           s.Router(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", listener.Addr().String()).
			Str("metrics", fmt.Sprintf("http://%s/metrics", listener.Addr())).
			Msg("starting structmsg blob API server")
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down blob API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
