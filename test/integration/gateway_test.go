// Package integration exercises the assembled gateway end to end: real
// HTTP server, real WebSocket connections and a real (in-memory) store.
package integration

import (
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/notify"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/server"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

const testOrigin = "http://localhost:3000"

type gatewayFixture struct {
	ts      *httptest.Server
	gateway *server.Gateway
	store   *store.Store
}

func startGateway(t *testing.T) *gatewayFixture {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.TokenSecret = "integration-secret"
	cfg.UploadDir = t.TempDir()

	verifier, err := auth.NewVerifier(auth.Config{Secret: cfg.TokenSecret})
	require.NoError(t, err)

	st, err := store.Open(":memory:")
	require.NoError(t, err)

	gw := server.NewGateway(cfg, st, verifier, notify.NewWebhook("", zap.NewNop()), zap.NewNop())
	ts := httptest.NewServer(gw.Routes())

	t.Cleanup(func() {
		ts.Close()
		_ = gw.Hub().Shutdown(5 * time.Second)
		_ = st.Close()
	})

	return &gatewayFixture{ts: ts, gateway: gw, store: st}
}

func (f *gatewayFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", testOrigin)
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f *gatewayFixture) createAccountAndLogin(t *testing.T, username string) string {
	t.Helper()

	body := []byte(`{"username":"` + username + `","displayName":"` + username + `","password":"hunter2"}`)
	resp, err := http.Post(f.ts.URL+"/api/create", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	login := []byte(`{"username":"` + username + `","password":"hunter2"}`)
	resp, err = http.Post(f.ts.URL+"/api/login", "application/json", bytes.NewReader(login))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Response struct {
			Token string `json:"token"`
		} `json:"response"`
	}
	require.NoError(t, protocol.DecodeJSON(resp.Body, &parsed))
	require.NotEmpty(t, parsed.Response.Token)
	return parsed.Response.Token
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func expectNoEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got: %s", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	t.Fatalf("unexpected error while waiting for silence: %v", err)
}

func decodeData(t *testing.T, env protocol.Envelope) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, protocol.DecodeData(env.Data, &m))
	return m
}

func TestGatewayEndToEnd(t *testing.T) {
	f := startGateway(t)
	token := f.createAccountAndLogin(t, "ada")

	alice := f.dial(t)
	bob := f.dial(t)

	var serverID string
	t.Run("create server over the socket", func(t *testing.T) {
		sendEnvelope(t, alice, `{"event":"create_server","data":{"token":"`+token+`","server_name":"general"}}`)
		reply := readEnvelope(t, alice)
		require.Equal(t, "creation_response", reply.Event)
		data := decodeData(t, reply)
		serverID, _ = data["serverID"].(string)
		require.NotEmpty(t, serverID)
	})

	t.Run("message fan-out reaches sender and peer", func(t *testing.T) {
		sendEnvelope(t, alice, `{"event":"send_message","data":{"token":"`+token+`","sid":"`+serverID+`","content":"hello"}}`)

		ack := readEnvelope(t, alice)
		require.Equal(t, "ack", ack.Event)
		assert.Equal(t, "success", decodeData(t, ack)["status"])

		for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
			broadcast := readEnvelope(t, conn)
			require.Equal(t, "message", broadcast.Event, "connection %s", name)
			data := decodeData(t, broadcast)
			assert.Equal(t, "hello", data["content"])
			assert.Equal(t, serverID, data["serverID"])
			assert.Equal(t, "ada", data["displayName"])
		}
	})

	t.Run("unauthenticated event is rejected without fan-out", func(t *testing.T) {
		sendEnvelope(t, bob, `{"event":"send_message","data":{"sid":"`+serverID+`","content":"sneaky"}}`)

		reply := readEnvelope(t, bob)
		require.Equal(t, "error", reply.Event)
		assert.Equal(t, "Authentication required", decodeData(t, reply)["message"])

		expectNoEnvelope(t, alice, 300*time.Millisecond)
	})

	t.Run("history is readable over REST", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/api/messages_get?sid="+serverID, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var parsed struct {
			Messages []struct {
				Content     string `json:"content"`
				DisplayName string `json:"displayName"`
			} `json:"messages"`
		}
		require.NoError(t, protocol.DecodeJSON(resp.Body, &parsed))
		require.Len(t, parsed.Messages, 1)
		assert.Equal(t, "hello", parsed.Messages[0].Content)
		assert.Equal(t, "ada", parsed.Messages[0].DisplayName)
	})

	t.Run("ping needs no token", func(t *testing.T) {
		sendEnvelope(t, bob, `{"event":"ping"}`)
		reply := readEnvelope(t, bob)
		assert.Equal(t, "pong", reply.Event)
	})
}

func TestGatewayRejectsDisallowedOrigin(t *testing.T) {
	f := startGateway(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	if conn != nil {
		_ = conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGatewayShutdown(t *testing.T) {
	f := startGateway(t)
	conn := f.dial(t)

	sendEnvelope(t, conn, `{"event":"ping"}`)
	require.Equal(t, "pong", readEnvelope(t, conn).Event)

	require.NoError(t, f.gateway.Hub().Shutdown(5*time.Second))
	assert.Zero(t, f.gateway.Hub().Count())
}
