package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ErrLedgerBusy is returned when the writer queue is full.
var ErrLedgerBusy = errors.New("storage: ledger queue full")

// LedgerEntry is one applied command that moved units.
type LedgerEntry struct {
	CommandID string
	Actor     string
	Command   string
	Inventory string
	Kind      string
	Given     int
	Outcome   string
	At        time.Time
}

type ledgerReq struct {
	entry LedgerEntry
	sync  chan struct{}
}

// Ledger is an append-only audit trail in SQLite. Writes are applied by a
// single writer goroutine.
type Ledger struct {
	db     *sql.DB
	ch     chan ledgerReq
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
	logger logrus.FieldLogger
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string, logger logrus.FieldLogger) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty ledger path")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initLedger(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{
		db:     db,
		ch:     make(chan ledgerReq, 4096),
		logger: logger.WithField("component", "ledger"),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l, nil
}

func initLedger(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS transfers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			command TEXT NOT NULL,
			inventory TEXT NOT NULL,
			kind TEXT NOT NULL,
			given INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_actor ON transfers(actor, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_inventory ON transfers(inventory, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record queues an entry without blocking.
func (l *Ledger) Record(entry LedgerEntry) error {
	if l == nil || l.closed.Load() {
		return nil
	}
	select {
	case l.ch <- ledgerReq{entry: entry}:
		return nil
	default:
		return ErrLedgerBusy
	}
}

// Sync waits until every entry queued before the call is written.
func (l *Ledger) Sync(ctx context.Context) error {
	if l.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case l.ch <- ledgerReq{sync: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) loop() {
	for req := range l.ch {
		if req.sync != nil {
			close(req.sync)
			continue
		}
		e := req.entry
		_, err := l.db.Exec(
			`INSERT INTO transfers (command_id, actor, command, inventory, kind, given, outcome, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.CommandID, e.Actor, e.Command, e.Inventory, e.Kind, e.Given, e.Outcome, e.At.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			l.logger.WithError(err).Warnf("Failed to write ledger entry for command %s.", e.CommandID)
		}
	}
}

// Entries returns up to limit entries for an actor, oldest first. An empty
// actor returns entries for everyone.
func (l *Ledger) Entries(ctx context.Context, actor string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT command_id, actor, command, inventory, kind, given, outcome, at FROM transfers`
	args := []any{}
	if actor != "" {
		q += ` WHERE actor = ?`
		args = append(args, actor)
	}
	q += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e  LedgerEntry
			at string
		)
		if err := rows.Scan(&e.CommandID, &e.Actor, &e.Command, &e.Inventory, &e.Kind, &e.Given, &e.Outcome, &at); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close drains the queue and closes the database.
func (l *Ledger) Close() error {
	var err error
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}
