package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tablebook/internal/availability"
	"tablebook/internal/model"
	"tablebook/internal/slots"
)

const maxBodyBytes = 64 << 10

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := slots.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("ymd", func(fl validator.FieldLevel) bool {
		_, err := availability.ParseDate(fl.Field().String())
		return err == nil
	})
	return v
}

// WeeklyDayRequest is the body of PUT /api/admin/weekly/{day}.
type WeeklyDayRequest struct {
	IsOpen           *bool  `json:"is_open" validate:"required"`
	UseSplitHours    bool   `json:"use_split_hours"`
	SingleOpening    string `json:"single_opening" validate:"omitempty,hhmm"`
	SingleClosing    string `json:"single_closing" validate:"omitempty,hhmm"`
	MorningOpening   string `json:"morning_opening" validate:"omitempty,hhmm"`
	MorningClosing   string `json:"morning_closing" validate:"omitempty,hhmm"`
	AfternoonOpening string `json:"afternoon_opening" validate:"omitempty,hhmm"`
	AfternoonClosing string `json:"afternoon_closing" validate:"omitempty,hhmm"`
}

func (req *WeeklyDayRequest) checkWindows() error {
	if !*req.IsOpen {
		return nil
	}
	return checkHours(req.UseSplitHours,
		req.SingleOpening, req.SingleClosing,
		req.MorningOpening, req.MorningClosing,
		req.AfternoonOpening, req.AfternoonClosing)
}

func (req *WeeklyDayRequest) toModel(day int) model.WeeklyScheduleDay {
	return model.WeeklyScheduleDay{
		DayOfWeek:        day,
		IsOpen:           *req.IsOpen,
		UseSplitHours:    req.UseSplitHours,
		SingleOpening:    req.SingleOpening,
		SingleClosing:    req.SingleClosing,
		MorningOpening:   req.MorningOpening,
		MorningClosing:   req.MorningClosing,
		AfternoonOpening: req.AfternoonOpening,
		AfternoonClosing: req.AfternoonClosing,
	}
}

// OverrideRequest is the body of PUT /api/admin/overrides/{date}.
type OverrideRequest struct {
	IsClosed         bool   `json:"is_closed"`
	Reason           string `json:"reason" validate:"max=200"`
	UseSplitHours    bool   `json:"use_split_hours"`
	OpeningTime      string `json:"opening_time" validate:"omitempty,hhmm"`
	ClosingTime      string `json:"closing_time" validate:"omitempty,hhmm"`
	MorningOpening   string `json:"morning_opening" validate:"omitempty,hhmm"`
	MorningClosing   string `json:"morning_closing" validate:"omitempty,hhmm"`
	AfternoonOpening string `json:"afternoon_opening" validate:"omitempty,hhmm"`
	AfternoonClosing string `json:"afternoon_closing" validate:"omitempty,hhmm"`
}

func (req *OverrideRequest) checkWindows() error {
	if req.IsClosed {
		return nil
	}
	return checkHours(req.UseSplitHours,
		req.OpeningTime, req.ClosingTime,
		req.MorningOpening, req.MorningClosing,
		req.AfternoonOpening, req.AfternoonClosing)
}

func (req *OverrideRequest) toModel(date string) *model.DateOverride {
	o := &model.DateOverride{
		Date:     date,
		IsClosed: req.IsClosed,
		Reason:   strings.TrimSpace(req.Reason),
	}
	if req.IsClosed {
		return o
	}
	o.UseSplitHours = req.UseSplitHours
	if req.UseSplitHours {
		o.MorningOpening = req.MorningOpening
		o.MorningClosing = req.MorningClosing
		o.AfternoonOpening = req.AfternoonOpening
		o.AfternoonClosing = req.AfternoonClosing
	} else {
		o.OpeningTime = req.OpeningTime
		o.ClosingTime = req.ClosingTime
	}
	return o
}

// CloseRequest is the optional body of POST /api/admin/overrides/{date}/close.
type CloseRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

// SpecialHoursRequest is the body of POST /api/admin/overrides/{date}/hours.
type SpecialHoursRequest struct {
	OpeningTime string `json:"opening_time" validate:"required,hhmm"`
	ClosingTime string `json:"closing_time" validate:"required,hhmm"`
	Reason      string `json:"reason" validate:"max=200"`
}

// WindowRequest is one opening window of a split day.
type WindowRequest struct {
	Opening string `json:"opening" validate:"required,hhmm"`
	Closing string `json:"closing" validate:"required,hhmm"`
}

func (w *WindowRequest) toModel() model.Window {
	return model.Window{Opening: w.Opening, Closing: w.Closing}
}

// SplitHoursRequest is the body of POST /api/admin/overrides/{date}/split.
type SplitHoursRequest struct {
	Morning   *WindowRequest `json:"morning" validate:"required"`
	Afternoon *WindowRequest `json:"afternoon" validate:"required"`
	Reason    string         `json:"reason" validate:"max=200"`
}

// RangeQuery holds start/end query parameters.
type RangeQuery struct {
	Start string `json:"start" validate:"required,ymd"`
	End   string `json:"end" validate:"required,ymd"`
}

// checkHours requires every field of the chosen mode and opening < closing per window.
// The two split windows are not compared with each other.
func checkHours(split bool, opening, closing, morningOpening, morningClosing, afternoonOpening, afternoonClosing string) error {
	if split {
		if err := slots.ValidWindow(morningOpening, morningClosing); err != nil {
			return fmt.Errorf("morning: %w", err)
		}
		if err := slots.ValidWindow(afternoonOpening, afternoonClosing); err != nil {
			return fmt.Errorf("afternoon: %w", err)
		}
		return nil
	}
	return slots.ValidWindow(opening, closing)
}

// decodeBody decodes a JSON body into dst. An empty body is allowed when allowEmpty is set.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

// validationMessage renders validator errors as "field: rule" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "hhmm":
			parts = append(parts, field+" must be HH:MM")
		case "ymd":
			parts = append(parts, field+" must be YYYY-MM-DD")
		case "required":
			parts = append(parts, field+" is required")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
