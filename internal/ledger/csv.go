package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CSV is the canonical ledger file: header ID,Name,Timestamp followed by
// one line per record. Appends are a single write on an O_APPEND handle
// followed by fsync, so a crash can leave at most one torn trailing line.
// Readers ignore that line and the next append truncates it away. A
// trailing line that is a complete record but lacks its terminator is kept
// and terminated before the next append.
type CSV struct {
	path string
	mu   *sync.Mutex
}

// NewCSV creates a ledger over the file at path. The file is created on
// the first write.
func NewCSV(path string) *CSV {
	return &CSV{path: path, mu: &sync.Mutex{}}
}

// Path returns the ledger file path.
func (c *CSV) Path() string {
	return c.path
}

// snapshot is the parsed content of the ledger file.
type snapshot struct {
	rows     [][]string // data rows, header excluded
	complete int64      // length of the newline-terminated prefix
	size     int64
	crlf     bool // lines end with \r\n
	// The last line is a valid record without a terminator.
	unterminated bool
	trailingCR   bool
}

func (s *snapshot) torn() bool {
	return s.complete < s.size && !s.unterminated
}

// load reads and parses the file. Callers hold c.mu.
func (c *CSV) load() (*snapshot, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return &snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrLedgerIO, c.path, err)
	}

	snap := &snapshot{
		complete: int64(bytes.LastIndexByte(data, '\n') + 1),
		size:     int64(len(data)),
	}
	if i := bytes.IndexByte(data, '\n'); i > 0 && data[i-1] == '\r' {
		snap.crlf = true
	}
	body := data[:snap.complete]
	if snap.complete < snap.size {
		if wholeLine(data[snap.complete:], snap.complete == 0) {
			snap.unterminated = true
			snap.trailingCR = data[len(data)-1] == '\r'
			body = data
		} else {
			log.WithField("path", c.path).Warn("ignoring torn trailing ledger line")
		}
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrLedgerIO, c.path, err)
	}
	if len(rows) > 0 && isHeader(rows[0]) {
		rows = rows[1:]
	}
	snap.rows = rows
	return snap, nil
}

// wholeLine reports whether an unterminated trailing line holds a complete
// record, or the header when it is the first line.
func wholeLine(line []byte, first bool) bool {
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return false
	}
	if first && isHeader(fields) {
		return true
	}
	_, err = parseRow(fields, time.Local)
	return err == nil
}

func isHeader(fields []string) bool {
	return len(fields) > 0 && trimBOM(fields[0]) == Header[0]
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}

// parseRow converts raw fields to a record with timestamps in loc.
func parseRow(fields []string, loc *time.Location) (Record, error) {
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("%w: want 3 fields, got %d", ErrInvalidRecord, len(fields))
	}
	label, err := strconv.Atoi(fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("%w: ID %q is not a number", ErrInvalidRecord, fields[0])
	}
	ts, err := ParseTimestamp(fields[2], loc)
	if err != nil {
		return Record{}, err
	}
	return Record{Label: label, Name: fields[1], Timestamp: ts}, nil
}

func formatRow(r Record) []string {
	return []string{strconv.Itoa(r.Label), r.Name, FormatTimestamp(r.Timestamp)}
}

// records parses every valid row, logging and skipping the rest.
func (s *snapshot) records(path string, loc *time.Location) []Record {
	out := make([]Record, 0, len(s.rows))
	for i, fields := range s.rows {
		rec, err := parseRow(fields, loc)
		if err != nil {
			log.WithFields(log.Fields{"path": path, "row": i + 1}).WithError(err).Debug("skipping ledger row")
			continue
		}
		out = append(out, rec)
	}
	return out
}

// MarkIfAbsent appends a record for label unless one exists for now's
// calendar day.
func (c *CSV) MarkIfAbsent(ctx context.Context, label int, name string, now time.Time) (MarkResult, error) {
	if err := ctx.Err(); err != nil {
		return MarkResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load()
	if err != nil {
		return MarkResult{}, err
	}

	now = now.Truncate(time.Second)
	for _, rec := range TodayOf(snap.records(c.path, now.Location()), now) {
		if rec.Label == label {
			return MarkResult{Marked: false, FirstTimestamp: rec.Timestamp}, nil
		}
	}

	if err := c.append(snap, Record{Label: label, Name: name, Timestamp: now}); err != nil {
		return MarkResult{}, err
	}
	return MarkResult{Marked: true, FirstTimestamp: now}, nil
}

// append writes rec as one line. Callers hold c.mu and pass the snapshot
// they just loaded.
func (c *CSV) append(snap *snapshot, rec Record) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating ledger directory: %v", ErrLedgerIO, err)
		}
	}

	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrLedgerIO, c.path, err)
	}
	defer f.Close()

	if snap.torn() {
		if err := f.Truncate(snap.complete); err != nil {
			return fmt.Errorf("%w: repairing torn line: %v", ErrLedgerIO, err)
		}
	}

	if snap.complete == 0 && !snap.unterminated {
		header, err := encodeRows(snap.crlf, Header)
		if err != nil {
			return err
		}
		if _, err := f.Write(header); err != nil {
			return fmt.Errorf("%w: writing header: %v", ErrLedgerIO, err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("%w: syncing header: %v", ErrLedgerIO, err)
		}
	}

	line, err := encodeRows(snap.crlf, formatRow(rec))
	if err != nil {
		return err
	}
	if snap.unterminated {
		end := lineEnd(snap.crlf)
		if snap.trailingCR {
			end = "\n"
		}
		line = append([]byte(end), line...)
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("%w: appending record: %v", ErrLedgerIO, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: syncing record: %v", ErrLedgerIO, err)
	}
	return nil
}

func lineEnd(crlf bool) string {
	if crlf {
		return "\r\n"
	}
	return "\n"
}

// encodeRows renders rows with the file's line terminator.
func encodeRows(crlf bool, rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = crlf
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("%w: encoding rows: %v", ErrLedgerIO, err)
	}
	return buf.Bytes(), nil
}

// Records returns every valid record in file order.
func (c *CSV) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load()
	if err != nil {
		return nil, err
	}
	return snap.records(c.path, time.Local), nil
}

// Today returns the records of now's calendar day.
func (c *CSV) Today(ctx context.Context, now time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load()
	if err != nil {
		return nil, err
	}
	return TodayOf(snap.records(c.path, now.Location()), now), nil
}

func (c *CSV) Close() error {
	return nil
}

// File is the CSV ledger with both writer roles.
type File struct {
	*CSV
	*Manager
}

// OpenCSV opens the CSV ledger at path.
func OpenCSV(path string) *File {
	c := NewCSV(path)
	return &File{CSV: c, Manager: NewManager(c)}
}
