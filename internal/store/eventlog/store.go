package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"feedmux/internal/feed"
	"feedmux/internal/logger"
)

// Store persists feed lifecycle events (provider demotions, failovers,
// dropped samples) to SQLite for later inspection. It implements
// feed.EventSink with an internal buffer so the feed path never blocks on
// disk.
type Store struct {
	db   *sql.DB
	path string

	buf     chan feed.Event
	done    chan struct{}
	stopped chan struct{}
	closed  sync.Once
}

const bufferSize = 256

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("event log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{
		db:      db,
		path:    path,
		buf:     make(chan feed.Event, bufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feed_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			provider TEXT,
			kind TEXT NOT NULL,
			detail TEXT,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_feed_events_symbol_ts_id ON feed_events(symbol, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_feed_events_kind_ts_id ON feed_events(kind, ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("event log schema: %w", err)
		}
	}
	return nil
}

// Record buffers ev for persistence. Drops on a full buffer rather than
// stalling the feed.
func (s *Store) Record(ev feed.Event) {
	select {
	case s.buf <- ev:
	default:
		logger.Warnf("[eventlog] buffer full, drop %s event for %s", ev.Kind, ev.Symbol)
	}
}

func (s *Store) writeLoop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			// Drain what is already buffered before stopping.
			for {
				select {
				case ev := <-s.buf:
					s.insert(ev)
				default:
					return
				}
			}
		case ev := <-s.buf:
			s.insert(ev)
		}
	}
}

func (s *Store) insert(ev feed.Event) {
	_, err := s.db.Exec(
		`INSERT INTO feed_events (ts, symbol, provider, kind, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Time.UnixMilli(), ev.Symbol, ev.Provider, string(ev.Kind), ev.Detail, time.Now().UnixMilli(),
	)
	if err != nil {
		logger.Errorf("[eventlog] insert failed: %v", err)
	}
}

// Query returns the most recent events, newest first. Empty symbol and
// kind match everything.
type Query struct {
	Symbol string
	Kind   string
	Limit  int
}

func (s *Store) Query(ctx context.Context, q Query) ([]feed.Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		conds []string
		args  []any
	)
	if sym := strings.TrimSpace(q.Symbol); sym != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, strings.ToUpper(sym))
	}
	if kind := strings.TrimSpace(q.Kind); kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}
	query := "SELECT ts, symbol, provider, kind, detail FROM feed_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []feed.Event
	for rows.Next() {
		var (
			ts                             int64
			symbol, provider, kind, detail sql.NullString
		)
		if err := rows.Scan(&ts, &symbol, &provider, &kind, &detail); err != nil {
			return nil, err
		}
		out = append(out, feed.Event{
			Time:     time.UnixMilli(ts),
			Symbol:   symbol.String,
			Provider: provider.String,
			Kind:     feed.EventKind(kind.String),
			Detail:   detail.String,
		})
	}
	return out, rows.Err()
}

// Close flushes buffered events and closes the database.
func (s *Store) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		<-s.stopped
		err = s.db.Close()
	})
	return err
}
