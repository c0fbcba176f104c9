// Package archive keeps a searchable SQLite record of every persisted turn.
// The conversation files stay authoritative; the archive only indexes them.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kir-gadjello/oai/internal/conversation"
)

// ErrSearchUnavailable is returned by Search when SQLite lacks FTS5.
var ErrSearchUnavailable = errors.New("search is unavailable (binary compiled without FTS5 support)")

// Hit is one search match.
type Hit struct {
	TurnID    string
	Session   string
	Role      string
	Preview   string
	Timestamp time.Time
}

type Archive struct {
	db          *sql.DB
	searchAvail bool
	logger      *slog.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// Open opens or creates the archive database at path.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	db, fts, err := initDB(path)
	if err != nil {
		return nil, err
	}
	if !fts {
		logger.Debug("archive search disabled, FTS5 not available", "path", path)
	}
	return &Archive{db: db, searchAvail: fts, logger: logger, now: time.Now}, nil
}

func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SearchAvailable reports whether Search can be used.
func (a *Archive) SearchAvailable() bool { return a.searchAvail }

// RecordTurn stores one completed turn under a fresh id.
func (a *Archive) RecordTurn(ctx context.Context, session, model string, user, assistant conversation.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()
	ts := a.now().Unix()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO turns(uuid, session, model, created_at) VALUES(?, ?, ?, ?)",
		id, session, model, ts); err != nil {
		return fmt.Errorf("recording turn: %w", err)
	}
	for _, m := range []conversation.Message{user, assistant} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages(turn_uuid, session, role, content, created_at) VALUES(?, ?, ?, ?, ?)",
			id, session, string(m.Role), m.Content, ts); err != nil {
			return fmt.Errorf("recording message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.logger.Debug("turn archived", "id", id, "session", session)
	return nil
}

// DeleteSession drops every archived turn of session and returns how many
// turns were removed.
func (a *Archive) DeleteSession(ctx context.Context, session string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session = ?", session); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session = ?", session)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

// Search runs a full-text query over archived messages, best matches
// first.
func (a *Archive) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if !a.searchAvail {
		return nil, ErrSearchUnavailable
	}
	ftsQuery := ParseQuery(query)
	if ftsQuery == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT m.turn_uuid, m.session, m.role, m.created_at,
		       snippet(messages_fts, 0, '[', ']', '...', 16)
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", ftsQuery, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var ts int64
		if err := rows.Scan(&h.TurnID, &h.Session, &h.Role, &ts, &h.Preview); err != nil {
			return nil, err
		}
		h.Timestamp = time.Unix(ts, 0)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
