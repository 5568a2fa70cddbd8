package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/notify"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

// dispatchTimeout bounds the store work done on behalf of one event so a
// wedged database cannot pin a reader goroutine forever.
const dispatchTimeout = 10 * time.Second

// Store is the persistence surface the router and the REST handlers need.
// *store.Store satisfies it; tests substitute fakes.
type Store interface {
	CreateAccount(ctx context.Context, username, displayName, password string) error
	Authenticate(ctx context.Context, username, password string) (store.UserProfile, error)
	GetUserProfile(ctx context.Context, userID string) (store.UserProfile, error)
	GetUserByName(ctx context.Context, username string) (store.UserProfile, error)
	UpdateAccount(ctx context.Context, userID string, p store.UserProfile) error
	SetPresence(ctx context.Context, userID, status string) (string, error)

	CreateMessage(ctx context.Context, authorID string, msg store.MessageFormat) (store.MessageRecord, error)
	EditMessage(ctx context.Context, messageID int64, content string) error
	DeleteMessage(ctx context.Context, messageID int64) error
	ListMessages(ctx context.Context, serverID string) ([]store.Message, error)

	CreateServer(ctx context.Context, name, ownerID string) (store.ServerInfo, error)
	GetServer(ctx context.Context, serverID string) (store.ServerInfo, error)
	JoinServer(ctx context.Context, serverID, userID string) (store.ServerInfo, error)
	ListUserServers(ctx context.Context, userID string) ([]store.ServerInfo, error)
	ListServerMembers(ctx context.Context, serverID string) ([]store.UserProfile, error)

	VerifyInvite(ctx context.Context, code string) (store.Invite, error)
	CreateInvite(ctx context.Context, serverID, issuedBy string) (string, error)
}

// handlerFunc processes one event for one session. claims is nil for
// routes that do not require authentication.
type handlerFunc func(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope)

type route struct {
	requiresAuth bool
	handle       handlerFunc
}

// Router maps event names to handlers. The table is built once at
// construction and never mutated, so Dispatch reads it without locking.
type Router struct {
	routes   map[string]route
	store    Store
	verifier *auth.Verifier
	hub      *Hub
	webhook  *notify.Webhook
	log      *zap.Logger
}

// NewRouter wires the full event table.
func NewRouter(st Store, verifier *auth.Verifier, hub *Hub, webhook *notify.Webhook, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		store:    st,
		verifier: verifier,
		hub:      hub,
		webhook:  webhook,
		log:      log,
	}
	r.routes = map[string]route{
		"ping":                  {requiresAuth: false, handle: r.handlePing},
		"send_message":          {requiresAuth: true, handle: r.handleSendMessage},
		"reply_to_message":      {requiresAuth: true, handle: r.handleReplyToMessage},
		"edit_message":          {requiresAuth: true, handle: r.handleEditMessage},
		"delete_message":        {requiresAuth: true, handle: r.handleDeleteMessage},
		"update_status":         {requiresAuth: true, handle: r.handleUpdateStatus},
		"schedule_notification": {requiresAuth: true, handle: r.handleScheduleNotification},
		"get_user":              {requiresAuth: true, handle: r.handleGetUser},
		"verify_invite":         {requiresAuth: false, handle: r.handleVerifyInvite},
		"join_server":           {requiresAuth: true, handle: r.handleJoinServer},
		"create_server":         {requiresAuth: true, handle: r.handleCreateServer},
		"upload_profile":        {requiresAuth: true, handle: r.handleUploadProfile},
	}
	return r
}

// Dispatch routes one decoded envelope. Authentication happens here, before
// the handler runs, so a handler never sees an unverified event and an
// invalid token never reaches the store.
func (r *Router) Dispatch(c *Client, env protocol.Envelope) {
	rt, ok := r.routes[env.Event]
	if !ok {
		metricEvents.WithLabelValues(env.Event, "unknown_event").Inc()
		r.log.Warn("unknown event", zap.String("event", env.Event), zap.String("addr", c.addr))
		c.reply(errorReply(fmt.Sprintf("Unknown event: %s", env.Event)))
		return
	}

	var claims *auth.Claims
	if rt.requiresAuth {
		var creds protocol.Credentials
		if err := protocol.DecodeData(env.Data, &creds); err != nil {
			metricEvents.WithLabelValues(env.Event, "error").Inc()
			c.reply(errorReply("Malformed message"))
			return
		}
		verified, err := r.verifier.Verify(creds.Bearer())
		if err != nil {
			metricEvents.WithLabelValues(env.Event, "unauthorized").Inc()
			r.log.Warn("event rejected",
				zap.String("event", env.Event),
				zap.String("addr", c.addr),
				zap.Error(err))
			c.reply(errorReply(authFailureMessage(err)))
			return
		}
		claims = verified
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	rt.handle(ctx, c, claims, env)
}

func authFailureMessage(err error) string {
	switch {
	case auth.IsMissing(err):
		return "Authentication required"
	case auth.IsExpired(err):
		return "Token expired"
	default:
		return "Invalid token"
	}
}

// errorReply builds the standard failure envelope sent back to one session.
func errorReply(message string) protocol.Envelope {
	return protocol.MustNew("error", map[string]string{"message": message})
}

// ackReply confirms a state-changing event to its sender.
func ackReply(data any) protocol.Envelope {
	return protocol.MustNew("ack", data)
}

// observe records the outcome of a handled event.
func observe(event string, err error) {
	if err != nil {
		metricEvents.WithLabelValues(event, "error").Inc()
		return
	}
	metricEvents.WithLabelValues(event, "ok").Inc()
}
