package store

import (
	"context"
	"time"

	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role the history table accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one persisted message in a chat's history.
type Turn struct {
	ID        int64
	ChatID    int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Stats is a consistent snapshot of history usage.
type Stats struct {
	Users int64
	Turns int64
}

// AppendTurn stores one turn for chatID.
func (s *Store) AppendTurn(ctx context.Context, chatID int64, role Role, content string) error {
	if !role.Valid() {
		return apperr.Validation("invalid role %q", role)
	}
	return s.exec(ctx, "append turn", func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO history (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)",
			chatID, string(role), content, time.Now().UTC(),
		)
		return err
	})
}

// History returns the most recent limit turns for chatID, oldest first.
// A chat without history yields an empty slice.
func (s *Store) History(ctx context.Context, chatID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var turns []Turn
	err := s.exec(ctx, "load history", func() error {
		turns = turns[:0]
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, chat_id, role, content, created_at
			FROM history
			WHERE chat_id = ?
			ORDER BY id DESC
			LIMIT ?
		`, chatID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t Turn
			var role string
			if err := rows.Scan(&t.ID, &t.ChatID, &role, &t.Content, &t.CreatedAt); err != nil {
				return err
			}
			t.Role = Role(role)
			turns = append(turns, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// ClearHistory deletes every turn of chatID. Clearing an empty chat is a no-op.
func (s *Store) ClearHistory(ctx context.Context, chatID int64) error {
	return s.exec(ctx, "clear history", func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE chat_id = ?", chatID)
		return err
	})
}

// ClearAllHistory deletes the history of every chat and compacts the file.
// Admins and the blacklist are untouched.
func (s *Store) ClearAllHistory(ctx context.Context) error {
	if err := s.exec(ctx, "clear all history", func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM history")
		return err
	}); err != nil {
		return err
	}
	return s.exec(ctx, "vacuum", func() error {
		_, err := s.db.ExecContext(ctx, "VACUUM")
		return err
	})
}

// Stats returns the number of distinct chats with history and the total
// number of turns, read in a single statement.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.exec(ctx, "stats", func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(DISTINCT chat_id), COUNT(*) FROM history",
		).Scan(&st.Users, &st.Turns)
	})
	return st, err
}
