// Package server wires the HTTP route table for the gateway process.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the gateway's route table. The WebSocket endpoint and the
// REST API share one mux and one origin allow list.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", g.HealthHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	mux.HandleFunc("/test", g.TestPageHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/create", g.corsMiddleware(g.handleCreateAccount))
	mux.HandleFunc("/api/login", g.corsMiddleware(g.handleLogin))
	mux.HandleFunc("/api/logout", g.corsMiddleware(g.handleLogout))
	mux.HandleFunc("/api/login_status", g.corsMiddleware(g.handleLoginStatus))
	mux.HandleFunc("/api/messages_get", g.corsMiddleware(g.handleMessagesGet))
	mux.HandleFunc("/api/account/get", g.corsMiddleware(g.handleAccountGet))
	mux.HandleFunc("/api/account/update", g.corsMiddleware(g.handleAccountUpdate))
	mux.HandleFunc("/api/servers/get", g.corsMiddleware(g.handleServersGet))
	mux.HandleFunc("/api/servers/userlist_get", g.corsMiddleware(g.handleServerUserlist))
	mux.HandleFunc("/api/invites/create", g.corsMiddleware(g.handleInviteCreate))

	return mux
}
