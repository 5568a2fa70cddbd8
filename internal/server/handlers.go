// Package server provides the HTTP handlers that upgrade connections to
// WebSocket, expose health information, and serve the built-in test page.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/notify"
)

// Gateway bundles the collaborators one running gateway instance needs.
// Everything is passed in at construction so tests can assemble gateways
// with fakes and isolated hubs.
type Gateway struct {
	cfg      *Config
	hub      *Hub
	router   *Router
	store    Store
	verifier *auth.Verifier
	webhook  *notify.Webhook
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewGateway wires a gateway from its dependencies.
func NewGateway(cfg *Config, st Store, verifier *auth.Verifier, webhook *notify.Webhook, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	hub := NewHub(log)
	g := &Gateway{
		cfg:      cfg,
		hub:      hub,
		router:   NewRouter(st, verifier, hub, webhook, log),
		store:    st,
		verifier: verifier,
		webhook:  webhook,
		origins:  origins,
		log:      log,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}
	return g
}

// Hub exposes the session registry, mainly for shutdown and tests.
func (g *Gateway) Hub() *Hub { return g.hub }

// WebSocketHandler upgrades the request and registers the session.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.log.Error("websocket upgrade error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, g.hub, g.router, g.cfg, g.log)
	g.hub.Register(client)
}

// HealthHandler reports process liveness and store reachability.
func (g *Gateway) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]any{
		"status":  "ok",
		"clients": g.hub.Count(),
	}
	if pinger, ok := g.store.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			g.log.Error("store unreachable", zap.Error(err))
			status["status"] = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}
