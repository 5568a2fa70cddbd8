// Package server implements the REST endpoints that sit beside the
// WebSocket gateway: account lifecycle, login, and history reads that do
// not belong on the persistent connection.
package server

import (
	"net/http"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

var restCodec = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := restCodec.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

// corsMiddleware echoes allowed origins and answers preflight requests. The
// allow list is shared with the WebSocket upgrade path.
func (g *Gateway) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && g.origins.allows(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// authenticate resolves the Authorization header to verified claims or
// writes the 401 itself and returns nil.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) *auth.Claims {
	token, err := auth.BearerToken(r.Header)
	if err == nil {
		var claims *auth.Claims
		if claims, err = g.verifier.Verify(token); err == nil {
			return claims
		}
	}
	g.log.Warn("rejected API request", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
	return nil
}

func (g *Gateway) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if err := restCodec.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	if err := g.store.CreateAccount(r.Context(), req.Username, req.DisplayName, req.Password); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Username already taken"})
			return
		}
		g.log.Error("account creation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create account"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"status": 201, "message": "Account created"})
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := restCodec.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed request"})
		return
	}

	profile, err := g.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		g.log.Error("login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Login failed"})
		return
	}

	token, err := g.verifier.Issue(profile.UserID)
	if err != nil {
		g.log.Error("token issue failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Login failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response": map[string]any{
			"status":  200,
			"message": "Login Successful",
			"token":   token,
		},
	})
}

// handleLogout exists for client symmetry. Tokens are stateless, so logout
// is client-side disposal; the endpoint just confirms.
func (g *Gateway) handleLogout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": 200, "message": "Logged out"})
}

func (g *Gateway) handleLoginStatus(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r.Header)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}
	claims, err := g.verifier.Verify(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": true, "userid": claims.Subject})
}

func (g *Gateway) handleMessagesGet(w http.ResponseWriter, r *http.Request) {
	claims := g.authenticate(w, r)
	if claims == nil {
		return
	}

	serverID := r.URL.Query().Get("sid")
	if serverID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sid is required"})
		return
	}

	messages, err := g.store.ListMessages(r.Context(), serverID)
	if err != nil {
		g.log.Error("message history read failed", zap.String("server", serverID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load messages"})
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (g *Gateway) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	claims := g.authenticate(w, r)
	if claims == nil {
		return
	}

	profile, err := g.store.GetUserProfile(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		g.log.Error("profile read failed", zap.String("user", claims.Subject), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load account"})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (g *Gateway) handleAccountUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := g.authenticate(w, r)
	if claims == nil {
		return
	}

	var profile store.UserProfile
	if err := restCodec.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Malformed request"})
		return
	}

	if err := g.store.UpdateAccount(r.Context(), claims.Subject, profile); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		g.log.Error("account update failed", zap.String("user", claims.Subject), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update account"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": 200, "message": "Account updated"})
}

// handleServersGet lists the servers the authenticated user belongs to.
func (g *Gateway) handleServersGet(w http.ResponseWriter, r *http.Request) {
	claims := g.authenticate(w, r)
	if claims == nil {
		return
	}

	servers, err := g.store.ListUserServers(r.Context(), claims.Subject)
	if err != nil {
		g.log.Error("server list read failed", zap.String("user", claims.Subject), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load servers"})
		return
	}
	if servers == nil {
		servers = []store.ServerInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

// handleServerUserlist lists the members of one server.
func (g *Gateway) handleServerUserlist(w http.ResponseWriter, r *http.Request) {
	claims := g.authenticate(w, r)
	if claims == nil {
		return
	}

	serverID := r.URL.Query().Get("sid")
	if serverID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sid is required"})
		return
	}

	users, err := g.store.ListServerMembers(r.Context(), serverID)
	if err != nil {
		g.log.Error("member list read failed", zap.String("server", serverID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load members"})
		return
	}
	if users == nil {
		users = []store.UserProfile{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleInviteCreate mints an invite code for a server the caller owns or
// belongs to.
func (g *Gateway) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := g.authenticate(w, r)
	if claims == nil {
		return
	}

	var req struct {
		ServerID string `json:"sid"`
	}
	if err := restCodec.NewDecoder(r.Body).Decode(&req); err != nil || req.ServerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sid is required"})
		return
	}

	if _, err := g.store.GetServer(r.Context(), req.ServerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Server not found"})
			return
		}
		g.log.Error("server lookup failed", zap.String("server", req.ServerID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create invite"})
		return
	}

	code, err := g.store.CreateInvite(r.Context(), req.ServerID, claims.Subject)
	if err != nil {
		g.log.Error("invite creation failed", zap.String("server", req.ServerID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create invite"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}
