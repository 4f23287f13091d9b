// Package store persists match results and game events to SQLite.
package store

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"spacecraft-server/internal/world"
)

const (
	eventBuffer   = 1024
	batchSize     = 50
	flushInterval = 2 * time.Second
)

// Store wraps the SQLite connection and the batched event writer. It
// implements world.EventSink.
type Store struct {
	conn *sql.DB
	log  *log.Logger

	events    chan world.Event
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	interval  time.Duration
}

// MatchRow is a finished match.
type MatchRow struct {
	ID         string           `json:"id"`
	WinnerID   uint64           `json:"winner_id"`
	WinnerName string           `json:"winner_name"`
	Steps      uint64           `json:"steps"`
	FinishedAt time.Time        `json:"finished_at"`
	Players    []MatchPlayerRow `json:"players"`
}

// MatchPlayerRow is one participant of a match.
type MatchPlayerRow struct {
	PlayerID uint64 `json:"player_id"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Winner   bool   `json:"winner"`
}

// Open opens (or creates) the database at path and starts the writer.
func Open(path string, logger *log.Logger) (*Store, error) {
	return open(path, logger, flushInterval)
}

func open(path string, logger *log.Logger, interval time.Duration) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "enable wal")
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Store{
		conn:     conn,
		log:      logger,
		events:   make(chan world.Event, eventBuffer),
		stop:     make(chan struct{}),
		interval: interval,
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		winner_id INTEGER NOT NULL DEFAULT 0,
		winner_name TEXT NOT NULL DEFAULT '',
		steps INTEGER NOT NULL DEFAULT 0,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id),
		player_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		winner INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		step INTEGER NOT NULL DEFAULT 0,
		player_id INTEGER,
		name TEXT,
		other_id INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_match ON events(match_id);
	CREATE INDEX IF NOT EXISTS idx_matches_finished ON matches(finished_at);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Track enqueues an event without blocking. Events are dropped when the
// queue is full.
func (s *Store) Track(e world.Event) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.events <- e:
	default:
		s.log.Warn("event queue full, dropping", "type", e.Type)
	}
}

// Close drains pending events and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		err = s.conn.Close()
	})
	return err
}

func (s *Store) writer() {
	defer s.wg.Done()

	batch := make([]world.Event, 0, batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case e := <-s.events:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.stop:
			for len(s.events) > 0 {
				batch = append(batch, <-s.events)
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

// flush writes a batch in one transaction. A finished game also gets its
// match and participant rows.
func (s *Store) flush(events []world.Event) {
	if err := s.writeBatch(context.Background(), events); err != nil {
		s.log.Error("flush events", "count", len(events), "err", err)
		return
	}
	s.log.Debug("flushed events", "count", len(events))
}

func (s *Store) writeBatch(ctx context.Context, events []world.Event) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (match_id, event_type, step, player_id, name, other_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare event insert")
	}
	defer stmt.Close()

	for _, e := range events {
		pid := sql.NullInt64{Int64: int64(e.Player), Valid: e.Player > 0}
		other := sql.NullInt64{Int64: int64(e.Other), Valid: e.Other > 0}
		name := sql.NullString{String: e.Name, Valid: e.Name != ""}
		if _, err := stmt.ExecContext(ctx, e.Match, e.Type, int64(e.Step), pid, name, other, e.At.Format(time.RFC3339Nano)); err != nil {
			return errors.Wrapf(err, "insert %s event", e.Type)
		}
		if e.Type == world.EventGameFinished {
			if err := recordMatch(ctx, tx, e); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func recordMatch(ctx context.Context, tx *sql.Tx, e world.Event) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO matches (id, winner_id, winner_name, steps, finished_at) VALUES (?, ?, ?, ?, ?)`,
		e.Match, int64(e.Player), e.Name, int64(e.Step), e.At.Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "insert match")
	}
	for _, r := range e.Results {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO match_players (match_id, player_id, name, kills, deaths, winner) VALUES (?, ?, ?, ?, ?, ?)`,
			e.Match, int64(r.ID), r.Name, r.Kills, r.Deaths, boolToInt(r.Winner))
		if err != nil {
			return errors.Wrapf(err, "insert match player %d", r.ID)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
