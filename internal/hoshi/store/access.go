package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
)

// ErrLastAdmin is returned by RemoveAdmin when the target is the only admin.
var ErrLastAdmin = apperr.Validation("cannot remove last admin")

// AddAdmin adds userID to the admin set. Adding an existing admin is a no-op.
func (s *Store) AddAdmin(ctx context.Context, userID int64) error {
	return s.exec(ctx, "add admin", func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO admins (user_id, added_at) VALUES (?, ?)",
			userID, time.Now().UTC(),
		)
		return err
	})
}

// RemoveAdmin removes userID from the admin set. Removing a non-admin is a
// no-op; removing the last remaining admin fails with ErrLastAdmin.
func (s *Store) RemoveAdmin(ctx context.Context, userID int64) error {
	var refused bool
	err := s.exec(ctx, "remove admin", func() error {
		refused = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var member int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM admins WHERE user_id = ?", userID,
		).Scan(&member); err != nil {
			return err
		}
		if member == 0 {
			return nil
		}

		var total int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM admins").Scan(&total); err != nil {
			return err
		}
		if total <= 1 {
			refused = true
			return nil
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM admins WHERE user_id = ?", userID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	if refused {
		return ErrLastAdmin
	}
	return nil
}

// IsAdmin reports whether userID is an admin.
func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.member(ctx, "is admin", "SELECT 1 FROM admins WHERE user_id = ?", userID)
}

// ListAdmins returns every admin id in insertion order.
func (s *Store) ListAdmins(ctx context.Context) ([]int64, error) {
	return s.ids(ctx, "list admins", "SELECT user_id FROM admins ORDER BY added_at, user_id")
}

// AddToBlacklist bars userID from feedback. Idempotent.
func (s *Store) AddToBlacklist(ctx context.Context, userID int64) error {
	return s.exec(ctx, "add to blacklist", func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO blacklist (user_id, added_at) VALUES (?, ?)",
			userID, time.Now().UTC(),
		)
		return err
	})
}

// RemoveFromBlacklist lifts the ban on userID. Removing a non-member is a no-op.
func (s *Store) RemoveFromBlacklist(ctx context.Context, userID int64) error {
	return s.exec(ctx, "remove from blacklist", func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM blacklist WHERE user_id = ?", userID)
		return err
	})
}

// IsBlacklisted reports whether userID is barred from feedback.
func (s *Store) IsBlacklisted(ctx context.Context, userID int64) (bool, error) {
	return s.member(ctx, "is blacklisted", "SELECT 1 FROM blacklist WHERE user_id = ?", userID)
}

// ListBlacklist returns every blacklisted id in insertion order.
func (s *Store) ListBlacklist(ctx context.Context) ([]int64, error) {
	return s.ids(ctx, "list blacklist", "SELECT user_id FROM blacklist ORDER BY added_at, user_id")
}

func (s *Store) member(ctx context.Context, op, query string, userID int64) (bool, error) {
	var found bool
	err := s.exec(ctx, op, func() error {
		var one int
		err := s.db.QueryRowContext(ctx, query, userID).Scan(&one)
		switch {
		case err == sql.ErrNoRows:
			found = false
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *Store) ids(ctx context.Context, op, query string) ([]int64, error) {
	var out []int64
	err := s.exec(ctx, op, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
