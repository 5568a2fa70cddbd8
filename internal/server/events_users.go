package server

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

// handlePing answers with the server clock. No auth and no store access,
// so clients can use it as a cheap liveness probe.
func (r *Router) handlePing(_ context.Context, c *Client, _ *auth.Claims, env protocol.Envelope) {
	observe(env.Event, nil)
	c.reply(protocol.MustNew("pong", map[string]any{"time": time.Now().Unix()}))
}

func (r *Router) handleGetUser(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	profile, err := r.store.GetUserProfile(ctx, claims.Subject)
	if err != nil {
		observe(env.Event, err)
		if errors.Is(err, store.ErrNotFound) {
			c.reply(errorReply("User not found"))
			return
		}
		r.log.Error("failed to load user", zap.String("user", claims.Subject), zap.Error(err))
		c.reply(errorReply("Failed to load user"))
		return
	}
	observe(env.Event, nil)
	c.reply(protocol.MustNew("return_user", profile))
}

// handleUpdateStatus persists the new presence value, acks the caller and
// announces the change to every session so rosters can update without a
// refetch.
func (r *Router) handleUpdateStatus(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	var p protocol.UpdateStatus
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}

	status, err := r.store.SetPresence(ctx, claims.Subject, p.Status)
	if err != nil {
		observe(env.Event, err)
		if errors.Is(err, store.ErrNotFound) {
			c.reply(errorReply("User not found"))
			return
		}
		r.log.Error("failed to update presence", zap.String("user", claims.Subject), zap.Error(err))
		c.reply(errorReply("Failed to update status"))
		return
	}
	observe(env.Event, nil)

	c.reply(ackReply(map[string]string{"message": "text"}))

	broadcast := protocol.MustNew("update", map[string]any{
		"update": map[string]string{
			"status": status,
			"userID": claims.Subject,
		},
	})
	if _, err := r.hub.Broadcast(broadcast); err != nil {
		r.log.Error("broadcast failed", zap.String("event", "update"), zap.Error(err))
	}
}

// handleScheduleNotification acks the caller and fans an ephemeral
// announcement out to every session. Nothing is persisted; a client that is
// offline simply misses it.
func (r *Router) handleScheduleNotification(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	var p protocol.ScheduleNotification
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.Content == "" {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Notification requires content"))
		return
	}

	profile, err := r.store.GetUserProfile(ctx, claims.Subject)
	if err != nil {
		observe(env.Event, err)
		r.log.Error("failed to load sender profile", zap.String("user", claims.Subject), zap.Error(err))
		c.reply(errorReply("Failed to schedule notification"))
		return
	}
	observe(env.Event, nil)

	c.reply(ackReply(map[string]string{"message": "text"}))

	broadcast := protocol.MustNew("notification", map[string]any{
		"sender": map[string]string{
			"userID":      profile.UserID,
			"displayName": profile.DisplayName,
			"message":     p.Content,
			"picture":     profile.Picture,
		},
		"serverID": p.ServerID,
	})
	if _, err := r.hub.Broadcast(broadcast); err != nil {
		r.log.Error("broadcast failed", zap.String("event", "notification"), zap.Error(err))
	}
}

// handleUploadProfile arms the session for one binary frame. The actual
// bytes arrive out of band as the next binary message on the same
// connection and are stored under the authenticated user's id.
func (r *Router) handleUploadProfile(_ context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	observe(env.Event, nil)
	c.armUpload(claims.Subject)
	c.reply(ackReply(map[string]string{"status": "ready"}))
}
