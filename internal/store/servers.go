package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ServerInfo describes one chat server.
type ServerInfo struct {
	ServerID   string `json:"serverID"`
	ServerName string `json:"serverName"`
	Owner      string `json:"owner"`
}

// CreateServer registers a new server owned by ownerID and enrolls the owner
// as its first member.
func (s *Store) CreateServer(ctx context.Context, name, ownerID string) (ServerInfo, error) {
	info := ServerInfo{
		ServerID:   uuid.NewString(),
		ServerName: name,
		Owner:      ownerID,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ServerInfo{}, errors.Wrap(err, "store: create server")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO servers (server_id, server_name, owner) VALUES (?, ?, ?)`,
		info.ServerID, info.ServerName, info.Owner,
	); err != nil {
		return ServerInfo{}, errors.Wrap(wrapConflict(err), "store: create server")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_servers (sid, uid) VALUES (?, ?)`,
		info.ServerID, info.Owner,
	); err != nil {
		return ServerInfo{}, errors.Wrap(err, "store: enroll owner")
	}

	if err := tx.Commit(); err != nil {
		return ServerInfo{}, errors.Wrap(err, "store: create server")
	}
	return info, nil
}

// GetServer looks up one server by id.
func (s *Store) GetServer(ctx context.Context, serverID string) (ServerInfo, error) {
	var info ServerInfo
	err := s.db.QueryRowContext(ctx,
		`SELECT server_id, server_name, owner FROM servers WHERE server_id = ?`,
		serverID,
	).Scan(&info.ServerID, &info.ServerName, &info.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ServerInfo{}, ErrNotFound
	}
	if err != nil {
		return ServerInfo{}, errors.Wrap(err, "store: get server")
	}
	return info, nil
}

// JoinServer enrolls userID in serverID and returns the server. Joining a
// server the user already belongs to yields ErrConflict; an unknown server
// yields ErrNotFound.
func (s *Store) JoinServer(ctx context.Context, serverID, userID string) (ServerInfo, error) {
	info, err := s.GetServer(ctx, serverID)
	if err != nil {
		return ServerInfo{}, err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_servers (sid, uid) VALUES (?, ?)`,
		serverID, userID,
	); err != nil {
		return ServerInfo{}, errors.Wrap(wrapConflict(err), "store: join server")
	}
	return info, nil
}

// ListUserServers returns every server userID belongs to.
func (s *Store) ListUserServers(ctx context.Context, userID string) ([]ServerInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.server_id, s.server_name, s.owner
		 FROM servers s JOIN user_servers us ON s.server_id = us.sid
		 WHERE us.uid = ?`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "store: list user servers")
	}
	defer rows.Close()

	var out []ServerInfo
	for rows.Next() {
		var info ServerInfo
		if err := rows.Scan(&info.ServerID, &info.ServerName, &info.Owner); err != nil {
			return nil, errors.Wrap(err, "store: scan server")
		}
		out = append(out, info)
	}
	return out, errors.Wrap(rows.Err(), "store: list user servers")
}

// ListServerMembers returns the resolved profiles of every member of
// serverID.
func (s *Store) ListServerMembers(ctx context.Context, serverID string) ([]UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.user_id, u.username, u.displayname, u.profile_picture, u.appearance_status, u.custom_status, u.bio
		 FROM users u JOIN user_servers us ON u.user_id = us.uid
		 WHERE us.sid = ?`,
		serverID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "store: list server members")
	}
	defer rows.Close()

	var out []UserProfile
	for rows.Next() {
		var p UserProfile
		if err := rows.Scan(&p.UserID, &p.Username, &p.DisplayName, &p.Picture, &p.Status, &p.CustomStatus, &p.Bio); err != nil {
			return nil, errors.Wrap(err, "store: scan member")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "store: list server members")
}
