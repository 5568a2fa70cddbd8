package server

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/protocol"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

// handleVerifyInvite resolves an invite code to the server it opens and the
// user who issued it. Lookup failures deliberately do not reveal whether the
// code or the server was the missing piece.
func (r *Router) handleVerifyInvite(ctx context.Context, c *Client, _ *auth.Claims, env protocol.Envelope) {
	var p protocol.VerifyInvite
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}

	invite, err := r.store.VerifyInvite(ctx, p.Code)
	if err != nil {
		observe(env.Event, err)
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Error("invite lookup failed", zap.Error(err))
		}
		c.reply(protocol.MustNew("invite", map[string]string{
			"failed": "The provided server may or may not exist.",
		}))
		return
	}

	srv, err := r.store.GetServer(ctx, invite.ServerID)
	if err != nil {
		observe(env.Event, err)
		c.reply(protocol.MustNew("invite", map[string]string{
			"failed": "The provided server may or may not exist.",
		}))
		return
	}

	issuedBy := invite.IssuedBy
	if issuer, err := r.store.GetUserProfile(ctx, invite.IssuedBy); err == nil {
		issuedBy = issuer.Username
	}
	observe(env.Event, nil)

	c.reply(protocol.MustNew("invite", map[string]any{
		"issued_by": issuedBy,
		"server": map[string]string{
			"sid":         srv.ServerID,
			"server_name": srv.ServerName,
		},
	}))
}

// handleJoinServer enrolls the authenticated user. Joining twice is not an
// error the caller has to guess at: the reply carries an explicit conflict
// status so clients can treat it as "already a member".
func (r *Router) handleJoinServer(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	var p protocol.JoinServer
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.ServerID == "" {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Join requires sid"))
		return
	}

	srv, err := r.store.JoinServer(ctx, p.ServerID, claims.Subject)
	if err != nil {
		observe(env.Event, err)
		switch {
		case errors.Is(err, store.ErrConflict):
			c.reply(protocol.MustNew("server_response", map[string]any{
				"status":  409,
				"message": "User is already in server",
			}))
		case errors.Is(err, store.ErrNotFound):
			c.reply(protocol.MustNew("server_response", map[string]string{
				"status":  "failed",
				"message": "Failed to join server",
			}))
		default:
			r.log.Error("join failed", zap.String("server", p.ServerID), zap.Error(err))
			c.reply(protocol.MustNew("server_response", map[string]string{
				"status":  "failed",
				"message": "Failed to join server",
			}))
		}
		return
	}
	observe(env.Event, nil)

	c.reply(protocol.MustNew("server_response", map[string]string{
		"name":     srv.ServerName,
		"owner":    srv.Owner,
		"serverID": srv.ServerID,
	}))
}

func (r *Router) handleCreateServer(ctx context.Context, c *Client, claims *auth.Claims, env protocol.Envelope) {
	var p protocol.CreateServer
	if err := protocol.DecodeData(env.Data, &p); err != nil {
		observe(env.Event, err)
		c.reply(errorReply("Malformed message"))
		return
	}
	if p.ServerName == "" {
		observe(env.Event, errors.New("missing fields"))
		c.reply(errorReply("Server requires server_name"))
		return
	}

	srv, err := r.store.CreateServer(ctx, p.ServerName, claims.Subject)
	if err != nil {
		observe(env.Event, err)
		r.log.Error("server creation failed", zap.String("name", p.ServerName), zap.Error(err))
		c.reply(errorReply("Failed to create server"))
		return
	}
	observe(env.Event, nil)

	c.reply(protocol.MustNew("creation_response", map[string]string{
		"serverName": srv.ServerName,
		"serverID":   srv.ServerID,
		"ownerID":    srv.Owner,
	}))
}
