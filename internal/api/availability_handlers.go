package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tablebook/internal/availability"
)

// RangeResponse is returned by GET /api/availability?start=&end=.
type RangeResponse struct {
	Start string             `json:"start"`
	End   string             `json:"end"`
	Days  []availability.Day `json:"days"`
}

// handleAvailabilityDay returns the resolved status and slots for one date.
// GET /api/availability/{date}
func (s *Server) handleAvailabilityDay(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	day, err := s.avail.Day(r.Context(), date)
	if err != nil {
		s.writeAvailabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// handleAvailabilityRange returns every date in [start, end] with its closed flag and slots,
// so the date picker can disable closed days.
// GET /api/availability?start=YYYY-MM-DD&end=YYYY-MM-DD
func (s *Server) handleAvailabilityRange(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days, err := s.avail.Calendar(r.Context(), q.Start, q.End)
	if err != nil {
		s.writeAvailabilityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RangeResponse{Start: q.Start, End: q.End, Days: days})
}

// parseRange validates start/end query parameters against the configured maximum span.
func (s *Server) parseRange(r *http.Request) (RangeQuery, error) {
	q := RangeQuery{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	}
	if err := s.validate.Struct(q); err != nil {
		return q, errors.New(validationMessage(err))
	}

	start, _ := time.Parse("2006-01-02", q.Start)
	end, _ := time.Parse("2006-01-02", q.End)
	if start.After(end) {
		return q, errors.New("start must be before or equal to end")
	}
	days := int(end.Sub(start).Hours() / 24)
	if days > s.cfg.MaxRangeDays {
		return q, fmt.Errorf("date range exceeds maximum of %d days", s.cfg.MaxRangeDays)
	}
	return q, nil
}
