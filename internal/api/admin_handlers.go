package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tablebook/internal/availability"
	"tablebook/internal/export"
	"tablebook/internal/model"
)

// GET /api/admin/weekly
func (s *Server) handleGetWeekly(w http.ResponseWriter, r *http.Request) {
	weekly, err := s.store.GetWeeklyTemplate(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":    weekly.Days(),
		"missing": weekly.Missing(),
	})
}

// PUT /api/admin/weekly/{day}
func (s *Server) handlePutWeeklyDay(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || day < 0 || day > 6 {
		writeError(w, http.StatusBadRequest, "day must be 0-6 (0=Sunday)")
		return
	}

	var req WeeklyDayRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if err := req.checkWindows(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry := req.toModel(day)
	if err := s.store.UpdateWeeklyDay(r.Context(), entry); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info().Int("day", day).Bool("open", entry.IsOpen).Bool("split", entry.UseSplitHours).Msg("weekly schedule updated")
	writeJSON(w, http.StatusOK, entry)
}

// GET /api/admin/overrides?start=&end=
func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.store.ListDateOverrides(r.Context(), q.Start, q.End)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if list == nil {
		list = []model.DateOverride{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": list})
}

// GET /api/admin/overrides/{date}
func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	o, err := s.store.GetDateOverride(r.Context(), date)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// PUT /api/admin/overrides/{date}
func (s *Server) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if err := req.checkWindows(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o := req.toModel(date)
	if err := s.store.UpsertDateOverride(r.Context(), o); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info().Str("date", date).Bool("closed", o.IsClosed).Msg("date override saved")
	writeJSON(w, http.StatusOK, o)
}

// DELETE /api/admin/overrides/{date}
func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteDateOverride(r.Context(), date); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info().Str("date", date).Msg("date override removed")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/admin/overrides/{date}/close
func (s *Server) handleCloseDate(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	var req CloseRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := s.store.SetDayOff(r.Context(), date, req.Reason); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info().Str("date", date).Str("reason", req.Reason).Msg("date closed")
	writeJSON(w, http.StatusOK, model.DateOverride{Date: date, IsClosed: true, Reason: req.Reason})
}

// POST /api/admin/overrides/{date}/hours
func (s *Server) handleSpecialHours(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	var req SpecialHoursRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if err := checkHours(false, req.OpeningTime, req.ClosingTime, "", "", "", ""); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if err := s.store.SetSpecialHours(r.Context(), date, req.OpeningTime, req.ClosingTime, reason); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info().Str("date", date).Str("opening", req.OpeningTime).Str("closing", req.ClosingTime).Msg("special hours set")
	writeJSON(w, http.StatusOK, model.DateOverride{
		Date:        date,
		Reason:      reason,
		OpeningTime: req.OpeningTime,
		ClosingTime: req.ClosingTime,
	})
}

// POST /api/admin/overrides/{date}/split
func (s *Server) handleSplitHours(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	var req SplitHoursRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	morning, afternoon := req.Morning.toModel(), req.Afternoon.toModel()
	if err := checkHours(true, "", "", morning.Opening, morning.Closing, afternoon.Opening, afternoon.Closing); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if err := s.store.SetSplitHours(r.Context(), date, morning, afternoon, reason); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.logger.Info().Str("date", date).Msg("split hours set")
	writeJSON(w, http.StatusOK, model.DateOverride{
		Date:             date,
		Reason:           reason,
		UseSplitHours:    true,
		MorningOpening:   morning.Opening,
		MorningClosing:   morning.Closing,
		AfternoonOpening: afternoon.Opening,
		AfternoonClosing: afternoon.Closing,
	})
}

// GET /api/admin/export?start=&end=
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
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
	weekly, err := s.store.GetWeeklyTemplate(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCalendar(&buf, days, weekly); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="availability_%s_%s.xlsx"`, q.Start, q.End))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := chi.URLParam(r, "date")
	if _, err := availability.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}
