package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/identity"
	log "github.com/sirupsen/logrus"
)

// Manager edits the CSV ledger by rewriting the whole file atomically.
// It shares the CSV lock so management edits and recognition appends in
// one process never interleave.
type Manager struct {
	csv *CSV
}

// NewManager creates a management writer over c.
func NewManager(c *CSV) *Manager {
	return &Manager{csv: c}
}

// rows returns every valid row numbered by its position in the file.
func (m *Manager) rows(snap *snapshot) []Row {
	out := make([]Row, 0, len(snap.rows))
	for i, fields := range snap.rows {
		rec, err := parseRow(fields, time.Local)
		if err != nil {
			continue
		}
		out = append(out, Row{Row: i + 1, Record: rec})
	}
	return out
}

func (m *Manager) view(ctx context.Context, keep func(Row) bool) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.csv.mu.Lock()
	defer m.csv.mu.Unlock()

	snap, err := m.csv.load()
	if err != nil {
		return nil, err
	}
	all := m.rows(snap)
	if keep == nil {
		return all, nil
	}
	out := all[:0]
	for _, r := range all {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// List returns all rows.
func (m *Manager) List(ctx context.Context) ([]Row, error) {
	return m.view(ctx, nil)
}

// Search returns rows where term is a case-insensitive substring of any
// column. Names also match without diacritics.
func (m *Manager) Search(ctx context.Context, term string) ([]Row, error) {
	return m.view(ctx, func(r Row) bool { return MatchRecord(r.Record, term) })
}

// MatchRecord reports whether term matches any column of r.
func MatchRecord(r Record, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, field := range formatRow(r) {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return identity.MatchesName(r.Name, term)
}

// Filter returns rows inside the filter's day range and label.
func (m *Manager) Filter(ctx context.Context, f Filter) ([]Row, error) {
	return m.view(ctx, func(r Row) bool { return f.Match(r.Record) })
}

// Add appends a record without the per-day check. A negative label takes
// the next free ID and a zero timestamp means now.
func (m *Manager) Add(ctx context.Context, label int, name string, ts time.Time) (Row, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Row{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidRecord)
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	var added Row
	err := m.edit(ctx, func(rows [][]string) ([][]string, error) {
		if label < 0 {
			label = nextID(rows)
		}
		added = Row{Row: len(rows) + 1, Record: Record{Label: label, Name: name, Timestamp: ts.Truncate(time.Second)}}
		return append(rows, formatRow(added.Record)), nil
	})
	return added, err
}

func nextID(rows [][]string) int {
	next := 1
	for _, fields := range rows {
		if len(fields) == 0 {
			continue
		}
		if id, err := strconv.Atoi(fields[0]); err == nil && id >= next {
			next = id + 1
		}
	}
	return next
}

// Update changes the name and timestamp of a row. An empty name or zero
// timestamp keeps the current value.
func (m *Manager) Update(ctx context.Context, row int, name string, ts time.Time) (Row, error) {
	var updated Row
	err := m.edit(ctx, func(rows [][]string) ([][]string, error) {
		if row < 1 || row > len(rows) {
			return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
		}
		rec, err := parseRow(rows[row-1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if name = strings.TrimSpace(name); name != "" {
			rec.Name = name
		}
		if !ts.IsZero() {
			rec.Timestamp = ts.Truncate(time.Second)
		}
		rows[row-1] = formatRow(rec)
		updated = Row{Row: row, Record: rec}
		return rows, nil
	})
	return updated, err
}

// Delete removes a row. Later rows move up by one.
func (m *Manager) Delete(ctx context.Context, row int) error {
	return m.edit(ctx, func(rows [][]string) ([][]string, error) {
		if row < 1 || row > len(rows) {
			return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
		}
		return slices.Delete(rows, row-1, row), nil
	})
}

// Clear leaves only the header.
func (m *Manager) Clear(ctx context.Context) error {
	return m.edit(ctx, func([][]string) ([][]string, error) {
		return nil, nil
	})
}

// Export copies the ledger file to w byte for byte.
func (m *Manager) Export(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.csv.mu.Lock()
	defer m.csv.mu.Unlock()

	f, err := os.Open(m.csv.path)
	if errors.Is(err, os.ErrNotExist) {
		header, err := encodeRows(false, Header)
		if err != nil {
			return err
		}
		_, err = w.Write(header)
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrLedgerIO, m.csv.path, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("exporting ledger: %w", err)
	}
	return nil
}

// ExportTo writes an atomic copy of the ledger to path.
func (m *Manager) ExportTo(ctx context.Context, path string) error {
	return ExportFile(ctx, m, path)
}

// Import validates a CSV document and replaces the ledger with it. The
// header must name ID, Name and Timestamp columns in any order and every
// row must have a numeric ID and a valid timestamp. Nothing is written
// when validation fails.
func (m *Manager) Import(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ParseImport(r)
	if err != nil {
		return 0, err
	}

	err = m.edit(ctx, func([][]string) ([][]string, error) {
		return rows, nil
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"path": m.csv.path, "rows": len(rows)}).Info("ledger imported")
	return len(rows), nil
}

// ParseImport reads and validates an import document, returning rows in
// ID,Name,Timestamp order.
func ParseImport(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	all, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidRecord)
	}

	cols := make(map[string]int, len(all[0]))
	for i, name := range all[0] {
		cols[strings.TrimSpace(trimBOM(name))] = i
	}
	idx := make([]int, len(Header))
	for i, name := range Header {
		col, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: header must contain %s", ErrInvalidRecord, strings.Join(Header, ", "))
		}
		idx[i] = col
	}

	rows := make([][]string, 0, len(all)-1)
	for n, fields := range all[1:] {
		row := make([]string, len(Header))
		for i, col := range idx {
			if col >= len(fields) {
				return nil, fmt.Errorf("%w: row %d has %d fields", ErrInvalidRecord, n+1, len(fields))
			}
			row[i] = strings.TrimSpace(fields[col])
		}
		if _, err := parseRow(row, time.Local); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// edit loads the raw rows, applies fn and atomically rewrites the file.
func (m *Manager) edit(ctx context.Context, fn func([][]string) ([][]string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.csv.mu.Lock()
	defer m.csv.mu.Unlock()

	snap, err := m.csv.load()
	if err != nil {
		return err
	}
	rows, err := fn(snap.rows)
	if err != nil {
		return err
	}

	data, err := encodeRows(snap.crlf, append([][]string{Header}, rows...)...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.csv.path), 0755); err != nil {
		return fmt.Errorf("%w: creating ledger directory: %v", ErrLedgerIO, err)
	}
	if err := renameio.WriteFile(m.csv.path, data, 0644); err != nil {
		return fmt.Errorf("%w: rewriting %s: %v", ErrLedgerIO, m.csv.path, err)
	}
	return nil
}
