// Package ledger records attendance, at most one mark per identity and
// calendar day on the recognition path.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

var (
	// ErrLedgerIO wraps every storage failure. A failed mark attempt is
	// dropped; the next frame re-derives the decision from the store.
	ErrLedgerIO = errors.New("ledger I/O error")

	// ErrRowNotFound is returned by management operations on a missing row.
	ErrRowNotFound = errors.New("attendance row not found")

	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid attendance record")
)

// Header is the fixed CSV header.
var Header = []string{"ID", "Name", "Timestamp"}

// Record is one attendance entry.
type Record struct {
	Label     int       `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Day returns the calendar day of the record in its own location.
func (r Record) Day() string {
	return r.Timestamp.Format(constants.DayLayout)
}

// Row is a record addressed by its row number (CSV) or row id (SQL).
type Row struct {
	Row int `json:"row"`
	Record
}

// MarkResult is the outcome of MarkIfAbsent.
type MarkResult struct {
	Marked         bool      `json:"marked"`
	FirstTimestamp time.Time `json:"first_timestamp"`
}

// Filter selects rows by day range and label. Zero values match everything.
type Filter struct {
	From  time.Time
	To    time.Time
	Label *int
}

// Match reports whether r passes the filter. From and To compare calendar
// days inclusively.
func (f Filter) Match(r Record) bool {
	day := r.Day()
	if !f.From.IsZero() && day < f.From.Format(constants.DayLayout) {
		return false
	}
	if !f.To.IsZero() && day > f.To.Format(constants.DayLayout) {
		return false
	}
	if f.Label != nil && r.Label != *f.Label {
		return false
	}
	return true
}

// Store is the recognition path writer.
type Store interface {
	// MarkIfAbsent records label for now's calendar day unless a record for
	// that day already exists, in which case the first timestamp is returned.
	MarkIfAbsent(ctx context.Context, label int, name string, now time.Time) (MarkResult, error)
	Records(ctx context.Context) ([]Record, error)
	Today(ctx context.Context, now time.Time) ([]Record, error)
	Close() error
}

// Admin is the management writer. Rows are addressed by number because
// labels repeat across days.
type Admin interface {
	List(ctx context.Context) ([]Row, error)
	Search(ctx context.Context, term string) ([]Row, error)
	Filter(ctx context.Context, f Filter) ([]Row, error)
	Add(ctx context.Context, label int, name string, ts time.Time) (Row, error)
	Update(ctx context.Context, row int, name string, ts time.Time) (Row, error)
	Delete(ctx context.Context, row int) error
	Clear(ctx context.Context) error
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader) (int, error)
}

// Ledger combines both writer roles over one backing store.
type Ledger interface {
	Store
	Admin
}

// Opener opens a ledger backend.
type Opener func(cfg config.LedgerConfig, path string) (Ledger, error)

var (
	drivers   = make(map[string]Opener)
	driversMu sync.RWMutex
)

// RegisterDriver makes a ledger backend available by name.
func RegisterDriver(name string, opener Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = opener
}

// Drivers returns the registered backend names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the ledger selected by cfg.Driver. path is the CSV file used
// by the csv driver.
func Open(cfg config.LedgerConfig, path string) (Ledger, error) {
	driversMu.RLock()
	opener, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ledger driver %q (available: %v)", cfg.Driver, Drivers())
	}
	return opener(cfg, path)
}

func init() {
	RegisterDriver("csv", func(_ config.LedgerConfig, path string) (Ledger, error) {
		return OpenCSV(path), nil
	})
}

// ParseTimestamp parses the fixed ledger timestamp format in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(constants.TimestampLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q must look like %s", ErrInvalidRecord, s, constants.TimestampLayout)
	}
	return t, nil
}

// FormatTimestamp formats t in the fixed ledger format.
func FormatTimestamp(t time.Time) string {
	return t.Format(constants.TimestampLayout)
}

// TodayOf filters records down to now's calendar day.
func TodayOf(records []Record, now time.Time) []Record {
	day := now.Format(constants.DayLayout)
	var out []Record
	for _, r := range records {
		if r.Day() == day {
			out = append(out, r)
		}
	}
	return out
}
