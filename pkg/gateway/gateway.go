// Package gateway exposes the realtime layer's diagnostic HTTP surface:
// a health check, a live-channel snapshot, and a websocket relay that
// streams a table's change events to a browser client. The package
// exports an http.Handler for the host application to mount; it ships no
// binary of its own.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/config"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/realtime"
)

// Gateway serves the diagnostic endpoints over chi.
type Gateway struct {
	logger   *logging.ColoredLogger
	config   *config.GatewayConfig
	router   chi.Router
	manager  *realtime.Manager
	registry *realtime.Registry
	server   *http.Server
}

// New creates a gateway over a subscription manager and its registry.
func New(logger *logging.ColoredLogger, cfg *config.GatewayConfig, manager *realtime.Manager, registry *realtime.Registry) (*Gateway, error) {
	if logger == nil {
		var err error
		logger, err = logging.NewColoredLogger(logging.ComponentGateway, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	g := &Gateway{
		logger:   logger,
		config:   cfg,
		router:   chi.NewRouter(),
		manager:  manager,
		registry: registry,
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.Recoverer)

	g.router.Get("/health", g.healthHandler)
	g.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Get("/v1/realtime/channels", g.channelsHandler)
	})
	g.router.Get("/v1/realtime/ws", g.wsHandler)

	g.logger.ComponentInfo(logging.ComponentGateway, "realtime gateway initialized",
		zap.String("listen_addr", cfg.ListenAddr))

	return g, nil
}

// Router returns the gateway's handler for mounting in the host app.
func (g *Gateway) Router() http.Handler {
	return g.router
}

// Start runs a standalone HTTP server on the configured address.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:    g.config.ListenAddr,
		Handler: g.router,
	}
	g.logger.ComponentInfo(logging.ComponentGateway, "realtime gateway listening",
		zap.String("addr", g.config.ListenAddr))
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the standalone server if one was started.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"channels": len(g.registry.Snapshot()),
	})
}

func (g *Gateway) channelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": g.registry.Snapshot(),
	})
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}
