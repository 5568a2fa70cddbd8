package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/notify"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

// fakeStore counts every call so tests can assert that rejected events
// never touch persistence.
type fakeStore struct {
	calls   int
	joinErr error
}

func (f *fakeStore) touch() { f.calls++ }

func (f *fakeStore) CreateAccount(context.Context, string, string, string) error {
	f.touch()
	return nil
}

func (f *fakeStore) Authenticate(context.Context, string, string) (store.UserProfile, error) {
	f.touch()
	return store.UserProfile{UserID: "user-1"}, nil
}

func (f *fakeStore) GetUserProfile(_ context.Context, userID string) (store.UserProfile, error) {
	f.touch()
	return store.UserProfile{UserID: userID, Username: "ada", DisplayName: "Ada", Picture: "p.jpg"}, nil
}

func (f *fakeStore) GetUserByName(context.Context, string) (store.UserProfile, error) {
	f.touch()
	return store.UserProfile{}, store.ErrNotFound
}

func (f *fakeStore) UpdateAccount(context.Context, string, store.UserProfile) error {
	f.touch()
	return nil
}

func (f *fakeStore) SetPresence(_ context.Context, _ string, status string) (string, error) {
	f.touch()
	return status, nil
}

func (f *fakeStore) CreateMessage(context.Context, string, store.MessageFormat) (store.MessageRecord, error) {
	f.touch()
	return store.MessageRecord{ID: 7, Timestamp: "3:04 PM"}, nil
}

func (f *fakeStore) EditMessage(context.Context, int64, string) error {
	f.touch()
	return nil
}

func (f *fakeStore) DeleteMessage(context.Context, int64) error {
	f.touch()
	return nil
}

func (f *fakeStore) ListMessages(context.Context, string) ([]store.Message, error) {
	f.touch()
	return nil, nil
}

func (f *fakeStore) CreateServer(_ context.Context, name, ownerID string) (store.ServerInfo, error) {
	f.touch()
	return store.ServerInfo{ServerID: "srv-new", ServerName: name, Owner: ownerID}, nil
}

func (f *fakeStore) GetServer(_ context.Context, serverID string) (store.ServerInfo, error) {
	f.touch()
	return store.ServerInfo{ServerID: serverID, ServerName: "general", Owner: "user-1"}, nil
}

func (f *fakeStore) JoinServer(_ context.Context, serverID, userID string) (store.ServerInfo, error) {
	f.touch()
	if f.joinErr != nil {
		return store.ServerInfo{}, f.joinErr
	}
	return store.ServerInfo{ServerID: serverID, ServerName: "general", Owner: "user-1"}, nil
}

func (f *fakeStore) ListUserServers(context.Context, string) ([]store.ServerInfo, error) {
	f.touch()
	return nil, nil
}

func (f *fakeStore) ListServerMembers(context.Context, string) ([]store.UserProfile, error) {
	f.touch()
	return nil, nil
}

func (f *fakeStore) VerifyInvite(context.Context, string) (store.Invite, error) {
	f.touch()
	return store.Invite{ServerID: "srv-1", IssuedBy: "user-1"}, nil
}

func (f *fakeStore) CreateInvite(context.Context, string, string) (string, error) {
	f.touch()
	return "deadbeefdeadbeef", nil
}

type routerFixture struct {
	router   *Router
	store    *fakeStore
	verifier *auth.Verifier
	hub      *Hub
	client   *Client
}

// newRouterFixture builds a router over fakes with one registered client,
// so replies and broadcasts both land on client.send.
func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	verifier, err := auth.NewVerifier(auth.Config{Secret: "test-secret"})
	require.NoError(t, err)

	fs := &fakeStore{}
	hub := NewHub(zap.NewNop())
	router := NewRouter(fs, verifier, hub, notify.NewWebhook("", zap.NewNop()), zap.NewNop())
	client := addTestClient(hub, 16)
	client.router = router
	client.hub = hub

	return &routerFixture{router: router, store: fs, verifier: verifier, hub: hub, client: client}
}

func (f *routerFixture) dispatchRaw(t *testing.T, frame string) {
	t.Helper()
	env, err := protocol.Decode([]byte(frame))
	require.NoError(t, err)
	f.router.Dispatch(f.client, env)
}

func (f *routerFixture) nextReply(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case raw := <-f.client.send:
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatalf("no reply received")
		return protocol.Envelope{}
	}
}

func (f *routerFixture) token(t *testing.T) string {
	t.Helper()
	token, err := f.verifier.Issue("user-1")
	require.NoError(t, err)
	return token
}

func decodeMap(t *testing.T, env protocol.Envelope) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, protocol.DecodeData(env.Data, &m))
	return m
}

func TestDispatchUnknownEvent(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"bogus_event","data":{}}`)

	reply := f.nextReply(t)
	assert.Equal(t, "error", reply.Event)
	assert.Equal(t, "Unknown event: bogus_event", decodeMap(t, reply)["message"])
	assert.Zero(t, f.store.calls)
}

func TestDispatchPing(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"ping"}`)

	reply := f.nextReply(t)
	assert.Equal(t, "pong", reply.Event)
	assert.Contains(t, decodeMap(t, reply), "time")
	assert.Zero(t, f.store.calls)
}

func TestDispatchRejectsBadTokens(t *testing.T) {
	f := newRouterFixture(t)

	t.Run("missing token", func(t *testing.T) {
		f.dispatchRaw(t, `{"event":"send_message","data":{"sid":"srv-1","content":"hi"}}`)
		reply := f.nextReply(t)
		assert.Equal(t, "error", reply.Event)
		assert.Equal(t, "Authentication required", decodeMap(t, reply)["message"])
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := f.verifier.IssueExpiring("user-1", -time.Minute)
		require.NoError(t, err)
		f.dispatchRaw(t, `{"event":"send_message","data":{"token":"`+expired+`","sid":"srv-1","content":"hi"}}`)
		reply := f.nextReply(t)
		assert.Equal(t, "error", reply.Event)
		assert.Equal(t, "Token expired", decodeMap(t, reply)["message"])
	})

	t.Run("garbage token", func(t *testing.T) {
		f.dispatchRaw(t, `{"event":"send_message","data":{"token":"junk","sid":"srv-1","content":"hi"}}`)
		reply := f.nextReply(t)
		assert.Equal(t, "error", reply.Event)
		assert.Equal(t, "Invalid token", decodeMap(t, reply)["message"])
	})

	// None of the rejected events may reach the store.
	assert.Zero(t, f.store.calls)
}

func TestDispatchSendMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"send_message","data":{"token":"`+f.token(t)+`","sid":"srv-1","content":"hello"}}`)

	ack := f.nextReply(t)
	require.Equal(t, "ack", ack.Event)
	ackData := decodeMap(t, ack)
	assert.Equal(t, "success", ackData["status"])
	assert.Equal(t, "hello", ackData["message"])
	assert.EqualValues(t, 7, ackData["id"])
	assert.Equal(t, "3:04 PM", ackData["timestamp"])

	// The registered client receives the fan-out, sender included.
	broadcast := f.nextReply(t)
	require.Equal(t, "message", broadcast.Event)
	var msg protocol.BroadcastMessage
	require.NoError(t, protocol.DecodeData(broadcast.Data, &msg))
	assert.Equal(t, "srv-1", msg.ServerID)
	assert.Equal(t, "Ada", msg.DisplayName)
	assert.Equal(t, "hello", msg.Content)
	assert.EqualValues(t, 7, msg.ID)
	assert.Nil(t, msg.MessageRef)
}

func TestDispatchSendMessageValidation(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"send_message","data":{"token":"`+f.token(t)+`","sid":"srv-1"}}`)

	reply := f.nextReply(t)
	assert.Equal(t, "error", reply.Event)
	assert.Zero(t, f.store.calls)
}

func TestDispatchReplyToMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"reply_to_message","data":{"token":"`+f.token(t)+`","sid":"srv-1","content":"agreed","ref_id":3}}`)

	ack := f.nextReply(t)
	require.Equal(t, "ack", ack.Event)

	broadcast := f.nextReply(t)
	require.Equal(t, "message", broadcast.Event)
	var msg protocol.BroadcastMessage
	require.NoError(t, protocol.DecodeData(broadcast.Data, &msg))
	require.NotNil(t, msg.MessageRef)
	assert.EqualValues(t, 3, *msg.MessageRef)
}

func TestDispatchEditAndDelete(t *testing.T) {
	f := newRouterFixture(t)

	f.dispatchRaw(t, `{"event":"edit_message","data":{"token":"`+f.token(t)+`","message_id":7,"content":"fixed"}}`)
	ack := f.nextReply(t)
	require.Equal(t, "ack", ack.Event)
	edited := f.nextReply(t)
	assert.Equal(t, "message_edited", edited.Event)
	assert.Equal(t, "fixed", decodeMap(t, edited)["content"])

	f.dispatchRaw(t, `{"event":"delete_message","data":{"token":"`+f.token(t)+`","message_id":7}}`)
	ack = f.nextReply(t)
	require.Equal(t, "ack", ack.Event)
	deleted := f.nextReply(t)
	assert.Equal(t, "message_deleted", deleted.Event)
	assert.EqualValues(t, 7, decodeMap(t, deleted)["id"])
}

func TestDispatchUpdateStatus(t *testing.T) {
	f := newRouterFixture(t)
	peer := addTestClient(f.hub, 16)
	f.dispatchRaw(t, `{"event":"update_status","data":{"token":"`+f.token(t)+`","status":"online"}}`)

	// The caller gets a direct ack and then its own copy of the broadcast.
	ack := f.nextReply(t)
	require.Equal(t, "ack", ack.Event)

	broadcast := f.nextReply(t)
	require.Equal(t, "update", broadcast.Event)
	update, ok := decodeMap(t, broadcast)["update"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "online", update["status"])
	assert.Equal(t, "user-1", update["userID"])

	// The peer sees the broadcast only, never the ack.
	select {
	case raw := <-peer.send:
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, "update", env.Event)
	default:
		t.Fatalf("peer did not receive broadcast")
	}
	select {
	case raw := <-peer.send:
		t.Fatalf("peer received extra frame: %s", raw)
	default:
	}
}

func TestDispatchScheduleNotification(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"schedule_notification","data":{"token":"`+f.token(t)+`","sid":"srv-1","content":"meeting in 5"}}`)

	ack := f.nextReply(t)
	require.Equal(t, "ack", ack.Event)

	broadcast := f.nextReply(t)
	require.Equal(t, "notification", broadcast.Event)
	data := decodeMap(t, broadcast)
	assert.Equal(t, "srv-1", data["serverID"])
	sender, ok := data["sender"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", sender["displayName"])
	assert.Equal(t, "meeting in 5", sender["message"])
}

func TestDispatchGetUser(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"get_user","data":{"token":"`+f.token(t)+`"}}`)

	reply := f.nextReply(t)
	require.Equal(t, "return_user", reply.Event)
	assert.Equal(t, "user-1", decodeMap(t, reply)["userid"])
}

func TestDispatchJoinServer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newRouterFixture(t)
		f.dispatchRaw(t, `{"event":"join_server","data":{"token":"`+f.token(t)+`","sid":"srv-1"}}`)

		reply := f.nextReply(t)
		require.Equal(t, "server_response", reply.Event)
		data := decodeMap(t, reply)
		assert.Equal(t, "general", data["name"])
		assert.Equal(t, "srv-1", data["serverID"])
	})

	t.Run("already a member", func(t *testing.T) {
		f := newRouterFixture(t)
		f.store.joinErr = store.ErrConflict
		f.dispatchRaw(t, `{"event":"join_server","data":{"token":"`+f.token(t)+`","sid":"srv-1"}}`)

		reply := f.nextReply(t)
		require.Equal(t, "server_response", reply.Event)
		data := decodeMap(t, reply)
		assert.EqualValues(t, 409, data["status"])
		assert.Equal(t, "User is already in server", data["message"])

		// A conflict is a reply to the caller, never a broadcast.
		select {
		case raw := <-f.client.send:
			t.Fatalf("unexpected extra frame: %s", raw)
		default:
		}
	})

	t.Run("unknown server", func(t *testing.T) {
		f := newRouterFixture(t)
		f.store.joinErr = store.ErrNotFound
		f.dispatchRaw(t, `{"event":"join_server","data":{"token":"`+f.token(t)+`","sid":"nope"}}`)

		reply := f.nextReply(t)
		require.Equal(t, "server_response", reply.Event)
		data := decodeMap(t, reply)
		assert.Equal(t, "failed", data["status"])
	})
}

func TestDispatchCreateServer(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"create_server","data":{"token":"`+f.token(t)+`","server_name":"my server"}}`)

	reply := f.nextReply(t)
	require.Equal(t, "creation_response", reply.Event)
	data := decodeMap(t, reply)
	assert.Equal(t, "my server", data["serverName"])
	assert.Equal(t, "srv-new", data["serverID"])
	assert.Equal(t, "user-1", data["ownerID"])
}

func TestDispatchVerifyInvite(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"verify_invite","data":{"token":"`+f.token(t)+`","code":"deadbeef"}}`)

	reply := f.nextReply(t)
	require.Equal(t, "invite", reply.Event)
	data := decodeMap(t, reply)
	assert.Equal(t, "ada", data["issued_by"])
	srv, ok := data["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "srv-1", srv["sid"])
	assert.Equal(t, "general", srv["server_name"])
}

func TestDispatchUploadProfile(t *testing.T) {
	f := newRouterFixture(t)
	f.dispatchRaw(t, `{"event":"upload_profile","data":{"token":"`+f.token(t)+`"}}`)

	reply := f.nextReply(t)
	require.Equal(t, "ack", reply.Event)
	assert.Equal(t, "ready", decodeMap(t, reply)["status"])
	assert.Equal(t, "user-1", f.client.uploadUser)
}
