package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// UserProfile is the resolved view of one account. The gateway uses it to
// enrich broadcasts so raw user ids never reach other clients unresolved.
type UserProfile struct {
	UserID       string `json:"userid"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	Picture      string `json:"picture"`
	Status       string `json:"status,omitempty"`
	CustomStatus string `json:"customStatus"`
	Bio          string `json:"bio"`
}

// CreateAccount registers a new user with an argon2id-hashed password and a
// freshly assigned uuid. A duplicate username yields ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, username, displayName, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, displayname, password, appearance_status) VALUES (?, ?, ?, ?, 'offline')`,
		uuid.NewString(), username, displayName, hash,
	)
	return errors.Wrap(wrapConflict(err), "store: create account")
}

// Authenticate checks the password for username and returns the profile on
// success. Unknown users and wrong passwords both yield ErrNotFound so
// callers cannot distinguish the two.
func (s *Store) Authenticate(ctx context.Context, username, password string) (UserProfile, error) {
	var p UserProfile
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, displayname, password, profile_picture, custom_status, bio FROM users WHERE username = ?`,
		username,
	).Scan(&p.UserID, &p.Username, &p.DisplayName, &hash, &p.Picture, &p.CustomStatus, &p.Bio)
	if errors.Is(err, sql.ErrNoRows) {
		return UserProfile{}, ErrNotFound
	}
	if err != nil {
		return UserProfile{}, errors.Wrap(err, "store: authenticate")
	}

	if !verifyPassword(hash, password) {
		return UserProfile{}, ErrNotFound
	}
	return p, nil
}

// GetUserProfile looks up one account by user id.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (UserProfile, error) {
	var p UserProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, displayname, profile_picture, appearance_status, custom_status, bio FROM users WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.Username, &p.DisplayName, &p.Picture, &p.Status, &p.CustomStatus, &p.Bio)
	if errors.Is(err, sql.ErrNoRows) {
		return UserProfile{}, ErrNotFound
	}
	if err != nil {
		return UserProfile{}, errors.Wrap(err, "store: get user profile")
	}
	return p, nil
}

// GetUserByName looks up one account by username.
func (s *Store) GetUserByName(ctx context.Context, username string) (UserProfile, error) {
	var p UserProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, displayname, profile_picture, appearance_status, custom_status, bio FROM users WHERE username = ?`,
		username,
	).Scan(&p.UserID, &p.Username, &p.DisplayName, &p.Picture, &p.Status, &p.CustomStatus, &p.Bio)
	if errors.Is(err, sql.ErrNoRows) {
		return UserProfile{}, ErrNotFound
	}
	if err != nil {
		return UserProfile{}, errors.Wrap(err, "store: get user by name")
	}
	return p, nil
}

// UpdateAccount overwrites the mutable profile fields of userID.
func (s *Store) UpdateAccount(ctx context.Context, userID string, p UserProfile) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, displayname = ?, profile_picture = ?, custom_status = ?, bio = ? WHERE user_id = ?`,
		p.Username, p.DisplayName, p.Picture, p.CustomStatus, p.Bio, userID,
	)
	if err != nil {
		return errors.Wrap(wrapConflict(err), "store: update account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPresence updates the appearance status and returns the stored value.
func (s *Store) SetPresence(ctx context.Context, userID, status string) (string, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET appearance_status = ? WHERE user_id = ? RETURNING appearance_status`,
		status, userID,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "store: set presence")
	}
	return stored, nil
}
