package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"npprobes/internal/config"
	"npprobes/internal/logging"
	"npprobes/internal/services"
)

//go:embed schema.sql
var schemaSQL string

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLRegistry keeps sequences in an id_sequences table. Allocations read the
// counters at Acquire and advance them with compare-and-set at Commit.
type SQLRegistry struct {
	db       *sql.DB
	dialect  dialect
	mode     string
	location string
	logger   *slog.Logger
}

// OpenSQLite opens (creating if needed) a sqlite registry at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "registry", "open", "sqlite_path is empty", nil)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return newSQLRegistry(ctx, db, dialectSQLite, config.RegistrySQLite, path, logger)
}

// OpenPostgres connects to a shared postgres registry.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*SQLRegistry, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "registry", "open", "dsn is empty", nil)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return newSQLRegistry(ctx, db, dialectPostgres, config.RegistryPostgres, redactDSN(dsn), logger)
}

func newSQLRegistry(ctx context.Context, db *sql.DB, d dialect, mode, location string, logger *slog.Logger) (*SQLRegistry, error) {
	r := &SQLRegistry{
		db:       db,
		dialect:  d,
		mode:     mode,
		location: location,
		logger:   logging.NewComponentLogger(logger, "registry"),
	}
	if err := r.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRegistry) initSchema(ctx context.Context) error {
	return r.retry(ctx, func() error {
		for _, stmt := range strings.Split(schemaSQL, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		for _, k := range Kinds {
			if _, err := r.db.ExecContext(ctx,
				r.rebind(`INSERT INTO id_sequences (kind, last_id) VALUES (?, -1) ON CONFLICT (kind) DO NOTHING`),
				string(k),
			); err != nil {
				return fmt.Errorf("seed sequence %s: %w", k, err)
			}
		}
		return nil
	})
}

// rebind converts ? placeholders to $n for postgres.
func (r *SQLRegistry) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *SQLRegistry) readLast(ctx context.Context) (map[Kind]int64, error) {
	last := make(map[Kind]int64, len(Kinds))
	err := r.retry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, `SELECT kind, last_id FROM id_sequences`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				kind string
				id   int64
			)
			if err := rows.Scan(&kind, &id); err != nil {
				return err
			}
			last[Kind(kind)] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("read sequences: %w", err)
	}
	return last, nil
}

// Acquire snapshots the counters. No lock is held until Commit.
func (r *SQLRegistry) Acquire(ctx context.Context) (Allocation, error) {
	last, err := r.readLast(ctx)
	if err != nil {
		return nil, err
	}
	base := make(map[Kind]int64, len(last))
	for k, v := range last {
		base[k] = v
	}
	return &sqlAllocation{registry: r, base: base, seq: newSequences(last)}, nil
}

func (r *SQLRegistry) Describe(ctx context.Context) (State, error) {
	last, err := r.readLast(ctx)
	if err != nil {
		return State{}, err
	}
	return State{Mode: r.mode, Location: r.location, Last: newSequences(last).last}, nil
}

func (r *SQLRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLRegistry) retry(ctx context.Context, op func() error) error {
	if r.dialect != dialectSQLite {
		return op()
	}
	return retryOnBusy(ctx, op)
}

type sqlAllocation struct {
	registry *SQLRegistry
	base     map[Kind]int64
	seq      *sequences
}

func (a *sqlAllocation) Next(kind Kind) (int64, error) { return a.seq.next(kind) }

func (a *sqlAllocation) Issued(kind Kind) []int64 { return a.seq.issuedCopy(kind) }

func (a *sqlAllocation) Commit(ctx context.Context) error {
	if a.seq.closed {
		return ErrClosed
	}
	defer a.Release()
	r := a.registry
	sessionID, _ := services.SessionIDFromContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	err := r.retry(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, k := range Kinds {
			ids := a.seq.issued[k]
			if len(ids) == 0 {
				continue
			}
			res, err := tx.ExecContext(ctx,
				r.rebind(`UPDATE id_sequences SET last_id = ? WHERE kind = ? AND last_id = ?`),
				ids[len(ids)-1], string(k), a.base[k],
			)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if n, err := res.RowsAffected(); err != nil || n != 1 {
				_ = tx.Rollback()
				return fmt.Errorf("%w: %s sequence no longer at %d", ErrConflict, k, a.base[k])
			}
			if _, err := tx.ExecContext(ctx,
				r.rebind(`INSERT INTO id_allocations (kind, first_id, last_id, session_id, committed_at) VALUES (?, ?, ?, ?, ?)`),
				string(k), ids[0], ids[len(ids)-1], sessionID, now,
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("commit allocation: %w", err)
	}
	r.logger.Info("registry committed",
		logging.String("mode", r.mode),
		logging.Int("probes", len(a.seq.issued[Probe])),
		logging.Int("channels", len(a.seq.issued[Channel])),
		logging.Int("units", len(a.seq.issued[Unit])),
	)
	return nil
}

func (a *sqlAllocation) Release() { a.seq.closed = true }

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// redactDSN drops credentials from a connection string for display.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
