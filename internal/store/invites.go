package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"

	"github.com/cockroachdb/errors"
)

// Invite is an unresolved invite row; the gateway resolves issuer and server
// display names before replying to a lookup.
type Invite struct {
	ServerID string
	IssuedBy string
}

// VerifyInvite looks up an invite code. An unknown code yields ErrNotFound.
func (s *Store) VerifyInvite(ctx context.Context, code string) (Invite, error) {
	var inv Invite
	err := s.db.QueryRowContext(ctx,
		`SELECT sid, issued_by FROM server_invites WHERE code = ?`,
		code,
	).Scan(&inv.ServerID, &inv.IssuedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return Invite{}, ErrNotFound
	}
	if err != nil {
		return Invite{}, errors.Wrap(err, "store: verify invite")
	}
	return inv, nil
}

// CreateInvite mints a random invite code for serverID on behalf of
// issuedBy.
func (s *Store) CreateInvite(ctx context.Context, serverID, issuedBy string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "store: generate invite code")
	}
	code := hex.EncodeToString(buf)

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO server_invites (code, sid, issued_by) VALUES (?, ?, ?)`,
		code, serverID, issuedBy,
	); err != nil {
		return "", errors.Wrap(wrapConflict(err), "store: create invite")
	}
	return code, nil
}
