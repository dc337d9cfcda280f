package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	log "github.com/sirupsen/logrus"
)

// AttendanceHandler exposes the management view of the ledger.
type AttendanceHandler struct {
	ledger ledger.Ledger
	now    func() time.Time
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(l ledger.Ledger) *AttendanceHandler {
	return &AttendanceHandler{ledger: l, now: time.Now}
}

// RowResponse is a ledger row in the fixed timestamp format.
type RowResponse struct {
	Row       int    `json:"row"`
	Label     int    `json:"id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

func toRowResponses(rows []ledger.Row) []RowResponse {
	out := make([]RowResponse, len(rows))
	for i, r := range rows {
		out[i] = RowResponse{Row: r.Row, Label: r.Label, Name: r.Name, Timestamp: ledger.FormatTimestamp(r.Timestamp)}
	}
	return out
}

// parseFilter reads from, to (YYYY-MM-DD) and label query parameters.
func parseFilter(r *http.Request) (ledger.Filter, error) {
	var f ledger.Filter
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		t, err := time.ParseInLocation(constants.DayLayout, s, time.Local)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q", s)
		}
		f.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.ParseInLocation(constants.DayLayout, s, time.Local)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q", s)
		}
		f.To = t
	}
	if s := q.Get("label"); s != "" {
		label, err := strconv.Atoi(s)
		if err != nil {
			return f, fmt.Errorf("invalid label %q", s)
		}
		f.Label = &label
	}
	return f, nil
}

// List returns ledger rows, optionally narrowed by a free-text q and a
// day range or label filter.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.ledger.Filter(r.Context(), f)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if term := r.URL.Query().Get("q"); term != "" {
		matched := rows[:0]
		for _, row := range rows {
			if ledger.MatchRecord(row.Record, term) {
				matched = append(matched, row)
			}
		}
		rows = matched
	}
	respondJSON(w, http.StatusOK, toRowResponses(rows))
}

// Today returns the records of the current calendar day.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	records, err := h.ledger.Today(r.Context(), now)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	out := make([]RowResponse, len(records))
	for i, rec := range records {
		out[i] = RowResponse{Label: rec.Label, Name: rec.Name, Timestamp: ledger.FormatTimestamp(rec.Timestamp)}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"day":     now.Format(constants.DayLayout),
		"present": out,
	})
}

type rowRequest struct {
	Label     *int   `json:"id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

func (req rowRequest) time() (time.Time, error) {
	if req.Timestamp == "" {
		return time.Time{}, nil
	}
	return ledger.ParseTimestamp(req.Timestamp, time.Local)
}

// Create adds a row by hand. Manual rows bypass the once-per-day rule.
func (h *AttendanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	ts, err := req.time()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	label := -1
	if req.Label != nil {
		label = *req.Label
	}

	row, err := h.ledger.Add(r.Context(), label, req.Name, ts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"row": row.Row, "label": row.Label, "user": editor(r)}).Info("attendance row added")
	respondJSON(w, http.StatusCreated, toRowResponses([]ledger.Row{row})[0])
}

func rowParam(r *http.Request) (int, error) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || row < 1 {
		return 0, fmt.Errorf("invalid row %q", chi.URLParam(r, "row"))
	}
	return row, nil
}

// Update edits the name and timestamp of a row. Empty fields are kept.
func (h *AttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	row, err := rowParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req rowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	ts, err := req.time()
	if err != nil {
		respondErr(w, r, err)
		return
	}

	updated, err := h.ledger.Update(r.Context(), row, req.Name, ts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"row": row, "user": editor(r)}).Info("attendance row updated")
	respondJSON(w, http.StatusOK, toRowResponses([]ledger.Row{updated})[0])
}

// Delete removes one row.
func (h *AttendanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	row, err := rowParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.Delete(r.Context(), row); err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"row": row, "user": editor(r)}).Info("attendance row deleted")
	respondJSON(w, http.StatusOK, map[string]int{"deleted": row})
}

// Clear removes every row.
func (h *AttendanceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Clear(r.Context()); err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithField("user", editor(r)).Warn("attendance ledger cleared")
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// Export downloads the ledger as CSV.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	name := "attendance-" + h.now().Format(constants.DayLayout) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := h.ledger.Export(r.Context(), w); err != nil {
		// Headers are gone once the body has started.
		log.WithError(err).Error("attendance export failed")
	}
}

// Import replaces the ledger with an uploaded CSV, either as the "file"
// field of a multipart form or as the raw request body.
func (h *AttendanceHandler) Import(w http.ResponseWriter, r *http.Request) {
	var src io.Reader = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
			respondError(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer f.Close()
		src = f
	}

	n, err := h.ledger.Import(r.Context(), src)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	log.WithFields(log.Fields{"rows": n, "user": editor(r)}).Info("attendance ledger imported")
	respondJSON(w, http.StatusOK, map[string]int{"imported": n})
}
