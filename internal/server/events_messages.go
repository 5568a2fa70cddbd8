package server

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

func (r *Router) handleSendMessage(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	var p protocol.SendMessage
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.ServerID == "" || p.Content == "" {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Message requires sid and content"))
		return
	}

	r.persistAndBroadcast(ctx, c, claims.Subject, env.Event, store.MessageFormat{
		ServerID: p.ServerID,
		Content:  p.Content,
		Link:     p.Link,
	})
}

func (r *Router) handleReplyToMessage(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	var p protocol.ReplyMessage
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.ServerID == "" || p.Content == "" || p.RefID <= 0 {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Reply requires sid, content and ref_id"))
		return
	}

	ref := p.RefID
	r.persistAndBroadcast(ctx, c, claims.Subject, env.Event, store.MessageFormat{
		ServerID:   p.ServerID,
		Content:    p.Content,
		MessageRef: &ref,
		Link:       p.Link,
	})
}

// persistAndBroadcast is the shared tail of send_message and
// reply_to_message: store the message, ack the sender with the assigned
// identity, then fan the resolved message out to every session.
func (r *Router) persistAndBroadcast(ctx context.Context, c *Client, userID, event string, msg store.MessageFormat) {
	profile, err := r.store.GetUserProfile(ctx, userID)
	if err != nil {
		observe(event, err)
		r.log.Error("failed to load author profile", zap.String("user", userID), zap.Error(err))
		c.reply(errorReply("Failed to send message"))
		return
	}

	rec, err := r.store.CreateMessage(ctx, userID, msg)
	if err != nil {
		observe(event, err)
		r.log.Error("failed to store message", zap.String("server", msg.ServerID), zap.Error(err))
		c.reply(errorReply("Failed to send message"))
		return
	}
	observe(event, nil)

	c.reply(ackReply(map[string]any{
		"status":    "success",
		"message":   msg.Content,
		"id":        rec.ID,
		"timestamp": rec.Timestamp,
	}))

	broadcast := protocol.BroadcastMessage{
		ServerID:    msg.ServerID,
		DisplayName: profile.DisplayName,
		Picture:     profile.Picture,
		Content:     msg.Content,
		ID:          rec.ID,
		MessageRef:  msg.MessageRef,
		Timestamp:   rec.Timestamp,
		Link:        msg.Link,
	}
	if _, err := r.hub.Broadcast(protocol.MustNew("message", broadcast)); err != nil {
		r.log.Error("broadcast failed", zap.String("event", event), zap.Error(err))
	}

	if r.webhook.Enabled() {
		go func() {
			if err := r.webhook.Send(context.Background(), profile.DisplayName, msg.Content); err != nil {
				r.log.Warn("webhook relay failed", zap.Error(err))
			}
		}()
	}
}

func (r *Router) handleEditMessage(ctx context.Context, c *Client, _ *auth.Claims, env protocol.Envelope) {
	var p protocol.EditMessage
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.MessageID <= 0 || p.Content == "" {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Edit requires message_id and content"))
		return
	}

	if err := r.store.EditMessage(ctx, p.MessageID, p.Content); err != nil {
		observe(env.Event, err)
		if errors.Is(err, store.ErrNotFound) {
			c.reply(errorReply("Message not found"))
			return
		}
		r.log.Error("failed to edit message", zap.Int64("id", p.MessageID), zap.Error(err))
		c.reply(errorReply("Failed to edit message"))
		return
	}
	observe(env.Event, nil)

	c.reply(ackReply(map[string]any{"status": "success", "id": p.MessageID}))

	env = protocol.MustNew("message_edited", map[string]any{
		"id":      p.MessageID,
		"content": p.Content,
	})
	if _, err := r.hub.Broadcast(env); err != nil {
		r.log.Error("broadcast failed", zap.String("event", "message_edited"), zap.Error(err))
	}
}

func (r *Router) handleDeleteMessage(ctx context.Context, c *Client, _ *auth.Claims, env protocol.Envelope) {
	var p protocol.DeleteMessage
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.MessageID <= 0 {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Delete requires message_id"))
		return
	}

	if err := r.store.DeleteMessage(ctx, p.MessageID); err != nil {
		observe(env.Event, err)
		if errors.Is(err, store.ErrNotFound) {
			c.reply(errorReply("Message not found"))
			return
		}
		r.log.Error("failed to delete message", zap.Int64("id", p.MessageID), zap.Error(err))
		c.reply(errorReply("Failed to delete message"))
		return
	}
	observe(env.Event, nil)

	c.reply(ackReply(map[string]any{"status": "success", "id": p.MessageID}))

	env = protocol.MustNew("message_deleted", map[string]any{"id": p.MessageID})
	if _, err := r.hub.Broadcast(env); err != nil {
		r.log.Error("broadcast failed", zap.String("event", "message_deleted"), zap.Error(err))
	}
}
