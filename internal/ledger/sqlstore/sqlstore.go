// Package sqlstore keeps the attendance ledger in a SQL database. The
// per-day rule for recognition marks is a UNIQUE (label, day, dedupe_key)
// constraint: recognition rows share the key "auto", manual rows get a
// fresh uuid so operator corrections never collide.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const autoKey = "auto"

func init() {
	for driver := range dialects {
		ledger.RegisterDriver(driver, func(cfg config.LedgerConfig, path string) (ledger.Ledger, error) {
			dsn := cfg.DatabaseURL
			if dsn == "" && driver == "sqlite" {
				dsn = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
			}
			return Open(context.Background(), driver, dsn, cfg)
		})
	}
}

// Store is a ledger.Ledger over database/sql.
type Store struct {
	db      *sql.DB
	driver  string
	dialect dialect
	loc     *time.Location
}

// Open connects to the database, verifies the connection and applies
// pending migrations. driver is one of sqlite, postgres or mysql.
func Open(ctx context.Context, driver, dsn string, cfg config.LedgerConfig) (*Store, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported SQL ledger driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// One writer per file; also keeps ":memory:" a single database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, driver: driver, dialect: d, loc: time.Local}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

func (s *Store) ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ledger.ErrLedgerIO, op, err)
}

// firstOfDay returns the earliest timestamp for label on day.
func (s *Store) firstOfDay(ctx context.Context, label int, day string, loc *time.Location) (time.Time, bool, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		"SELECT ts FROM attendance WHERE label = ? AND day = ? ORDER BY ts, id LIMIT 1"), label, day).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, s.ioErr("querying day", err)
	}
	t, err := ledger.ParseTimestamp(ts, loc)
	if err != nil {
		return time.Time{}, false, s.ioErr("parsing stored timestamp", err)
	}
	return t, true, nil
}

func (s *Store) MarkIfAbsent(ctx context.Context, label int, name string, now time.Time) (ledger.MarkResult, error) {
	now = now.Truncate(time.Second)
	day := now.Format(constants.DayLayout)

	if first, ok, err := s.firstOfDay(ctx, label, day, now.Location()); err != nil || ok {
		return ledger.MarkResult{FirstTimestamp: first}, err
	}

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(s.dialect.insertAuto),
		label, name, day, ledger.FormatTimestamp(now))
	if err != nil {
		return ledger.MarkResult{}, s.ioErr("inserting mark", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return ledger.MarkResult{Marked: true, FirstTimestamp: now}, nil
	}

	// Lost a race against another writer for the same day.
	first, _, err := s.firstOfDay(ctx, label, day, now.Location())
	return ledger.MarkResult{FirstTimestamp: first}, err
}

const selectRows = "SELECT id, label, name, ts FROM attendance"

func (s *Store) query(ctx context.Context, loc *time.Location, where string, args ...any) ([]ledger.Row, error) {
	q := selectRows
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY ts, id"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, s.ioErr("querying rows", err)
	}
	defer rows.Close()

	var out []ledger.Row
	for rows.Next() {
		var (
			r  ledger.Row
			ts string
		)
		if err := rows.Scan(&r.Row, &r.Label, &r.Name, &ts); err != nil {
			return nil, s.ioErr("scanning row", err)
		}
		if r.Timestamp, err = ledger.ParseTimestamp(ts, loc); err != nil {
			return nil, s.ioErr("parsing stored timestamp", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.ioErr("iterating rows", err)
	}
	return out, nil
}

func records(rows []ledger.Row) []ledger.Record {
	out := make([]ledger.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record
	}
	return out
}

func (s *Store) Records(ctx context.Context) ([]ledger.Record, error) {
	rows, err := s.query(ctx, s.loc, "")
	return records(rows), err
}

func (s *Store) Today(ctx context.Context, now time.Time) ([]ledger.Record, error) {
	rows, err := s.query(ctx, now.Location(), "day = ?", now.Format(constants.DayLayout))
	return records(rows), err
}

func (s *Store) List(ctx context.Context) ([]ledger.Row, error) {
	return s.query(ctx, s.loc, "")
}

// Search filters in Go so names also match without diacritics.
func (s *Store) Search(ctx context.Context, term string) ([]ledger.Row, error) {
	all, err := s.query(ctx, s.loc, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if ledger.MatchRecord(r.Record, term) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Filter(ctx context.Context, f ledger.Filter) ([]ledger.Row, error) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "day >= ?")
		args = append(args, f.From.Format(constants.DayLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "day <= ?")
		args = append(args, f.To.Format(constants.DayLayout))
	}
	if f.Label != nil {
		conds = append(conds, "label = ?")
		args = append(args, *f.Label)
	}
	return s.query(ctx, s.loc, strings.Join(conds, " AND "), args...)
}

// Add inserts a manual row that bypasses the per-day rule.
func (s *Store) Add(ctx context.Context, label int, name string, ts time.Time) (ledger.Row, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Row{}, fmt.Errorf("%w: name cannot be empty", ledger.ErrInvalidRecord)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.Truncate(time.Second)

	if label < 0 {
		if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(label), 0) + 1 FROM attendance").Scan(&label); err != nil {
			return ledger.Row{}, s.ioErr("allocating ID", err)
		}
	}

	id, err := s.insertManual(ctx, s.db, label, name, ts)
	if err != nil {
		return ledger.Row{}, err
	}
	return ledger.Row{Row: id, Record: ledger.Record{Label: label, Name: name, Timestamp: ts}}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insertManual(ctx context.Context, db execer, label int, name string, ts time.Time) (int, error) {
	key := uuid.NewString()
	args := []any{label, name, ts.Format(constants.DayLayout), ledger.FormatTimestamp(ts), key}
	const insert = "INSERT INTO attendance (label, name, day, ts, dedupe_key) VALUES (?, ?, ?, ?, ?)"

	// lib/pq does not implement LastInsertId.
	if s.dialect.numbered {
		var id int
		if err := db.QueryRowContext(ctx, s.dialect.rebind(insert+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, s.ioErr("inserting row", err)
		}
		return id, nil
	}

	res, err := db.ExecContext(ctx, insert, args...)
	if err != nil {
		return 0, s.ioErr("inserting row", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, s.ioErr("reading row id", err)
	}
	return int(id), nil
}

func (s *Store) get(ctx context.Context, id int) (ledger.Row, error) {
	rows, err := s.query(ctx, s.loc, "id = ?", id)
	if err != nil {
		return ledger.Row{}, err
	}
	if len(rows) == 0 {
		return ledger.Row{}, fmt.Errorf("%w: %d", ledger.ErrRowNotFound, id)
	}
	return rows[0], nil
}

// Update changes a row by id. An edited row no longer counts as the
// recognition mark of its day.
func (s *Store) Update(ctx context.Context, id int, name string, ts time.Time) (ledger.Row, error) {
	row, err := s.get(ctx, id)
	if err != nil {
		return ledger.Row{}, err
	}
	if name = strings.TrimSpace(name); name != "" {
		row.Name = name
	}
	if !ts.IsZero() {
		row.Timestamp = ts.Truncate(time.Second)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(
		"UPDATE attendance SET name = ?, day = ?, ts = ?, dedupe_key = ? WHERE id = ?"),
		row.Name, row.Day(), ledger.FormatTimestamp(row.Timestamp), uuid.NewString(), id)
	if err != nil {
		return ledger.Row{}, s.ioErr("updating row", err)
	}
	return row, nil
}

func (s *Store) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM attendance WHERE id = ?"), id)
	if err != nil {
		return s.ioErr("deleting row", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrRowNotFound, id)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attendance"); err != nil {
		return s.ioErr("clearing ledger", err)
	}
	return nil
}

// Export renders the canonical CSV.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.query(ctx, s.loc, "")
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ledger.Header); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{strconv.Itoa(r.Label), r.Name, ledger.FormatTimestamp(r.Timestamp)}); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Import replaces every row in one transaction.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ledger.ParseImport(r)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.ioErr("beginning import", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM attendance"); err != nil {
		return 0, s.ioErr("clearing ledger", err)
	}
	for _, fields := range rows {
		label, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("%w: ID %q", ledger.ErrInvalidRecord, fields[0])
		}
		ts, err := ledger.ParseTimestamp(fields[2], s.loc)
		if err != nil {
			return 0, err
		}
		if _, err := s.insertManual(ctx, tx, label, fields[1], ts); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, s.ioErr("committing import", err)
	}
	return len(rows), nil
}
