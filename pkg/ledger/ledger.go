// Package ledger keeps a sqlite record of every strip the booth delivered.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS strips (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	path    TEXT NOT NULL,
	theme   TEXT NOT NULL DEFAULT '',
	color   TEXT NOT NULL DEFAULT '',
	label   TEXT NOT NULL DEFAULT '',
	tags    TEXT NOT NULL DEFAULT '',
	created INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS strips_created ON strips(created);
`

// Entry is one delivered strip.
type Entry struct {
	ID      int64
	Session string
	Path    string
	Theme   string
	Color   string
	Label   string
	// Tags is a comma separated keyword list, possibly empty.
	Tags    string
	Created time.Time
}

// Ledger is an open strip database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	klog.V(1).Infof("opened ledger %s", path)
	return &Ledger{db: db}, nil
}

// Record stores e and returns its ID. A zero Created is set to now.
func (l *Ledger) Record(ctx context.Context, e Entry) (int64, error) {
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO strips (session, path, theme, color, label, tags, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Path, e.Theme, e.Color, e.Label, e.Tags, e.Created.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	klog.V(1).Infof("recorded strip %d: %s", id, e.Path)
	return id, nil
}

// SetTags replaces the tags of a recorded strip.
func (l *Ledger) SetTags(ctx context.Context, id int64, tags string) error {
	if _, err := l.db.ExecContext(ctx, `UPDATE strips SET tags = ? WHERE id = ?`, tags, id); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session, path, theme, color, label, tags, created FROM strips ORDER BY created DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var es []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Path, &e.Theme, &e.Color, &e.Label, &e.Tags, &created); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Created = time.UnixMilli(created)
		es = append(es, e)
	}
	return es, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
