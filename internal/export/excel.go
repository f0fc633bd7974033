package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tablebook/internal/availability"
	"tablebook/internal/model"
)

const (
	CalendarSheet = "Availability"
	WeeklySheet   = "Weekly"
)

var (
	calendarColumns = []string{"Date", "Weekday", "Status", "Reason", "Hours", "Slots", "Source"}
	weeklyColumns   = []string{"Weekday", "Open", "Mode", "Hours"}
)

// sheetWriter appends rows to an excelize workbook one sheet at a time.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	if err := w.writeRow(toRow(columns)); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// WriteCalendar renders resolved days and the weekly template as an xlsx workbook.
func WriteCalendar(out io.Writer, days []availability.Day, weekly model.WeeklyTemplate) error {
	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(CalendarSheet); err != nil {
		return err
	}
	if err := w.writeHeader(calendarColumns); err != nil {
		return err
	}
	for _, d := range days {
		if err := w.writeRow(calendarRow(d)); err != nil {
			return fmt.Errorf("write %s: %w", d.Date, err)
		}
	}
	_ = w.file.SetColWidth(CalendarSheet, "F", "F", 80)

	if err := w.addSheet(WeeklySheet); err != nil {
		return err
	}
	if err := w.writeHeader(weeklyColumns); err != nil {
		return err
	}
	for _, entry := range weekly.WithDefaults().Days() {
		if err := w.writeRow(weeklyRow(entry)); err != nil {
			return fmt.Errorf("write weekday %d: %w", entry.DayOfWeek, err)
		}
	}

	w.file.SetActiveSheet(0)
	return w.file.Write(out)
}

func calendarRow(d availability.Day) []any {
	weekday := ""
	if t, err := time.Parse(model.DateLayout, d.Date); err == nil {
		weekday = t.Weekday().String()
	}
	status := "Open"
	if d.IsClosed {
		status = "Closed"
	}
	return []any{d.Date, weekday, status, d.Reason, formatWindows(d.Windows()), strings.Join(d.Slots, ", "), string(d.Source)}
}

func weeklyRow(entry model.WeeklyScheduleDay) []any {
	open := "yes"
	if !entry.IsOpen {
		open = "no"
	}
	mode := "continuous"
	hours := []model.Window{{Opening: entry.SingleOpening, Closing: entry.SingleClosing}}
	if entry.UseSplitHours {
		mode = "split"
		hours = []model.Window{
			{Opening: entry.MorningOpening, Closing: entry.MorningClosing},
			{Opening: entry.AfternoonOpening, Closing: entry.AfternoonClosing},
		}
	}
	if !entry.IsOpen {
		hours = nil
	}
	return []any{time.Weekday(entry.DayOfWeek).String(), open, mode, formatWindows(hours)}
}

func formatWindows(windows []model.Window) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, w.Opening+"-"+w.Closing)
	}
	return strings.Join(parts, ", ")
}

func toRow(values []string) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
