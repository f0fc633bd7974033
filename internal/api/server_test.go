package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tablebook/internal/availability"
	"tablebook/internal/database"
	"tablebook/internal/events"
	"tablebook/internal/model"
	"tablebook/internal/service"
)

const testAPIKey = "test-key"

type testEnv struct {
	server *Server
	db     *database.DB
	svc    *service.AvailabilityService
}

// newTestEnv wires the server to a real SQLite store. Monday is closed, Friday uses split
// hours and every other day is open 10:00-14:00.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	seed := make(model.WeeklyTemplate, 7)
	for day := 0; day <= 6; day++ {
		seed[day] = model.WeeklyScheduleDay{DayOfWeek: day, IsOpen: true, SingleOpening: "10:00", SingleClosing: "14:00"}
	}
	seed[1] = model.WeeklyScheduleDay{DayOfWeek: 1, IsOpen: false}
	seed[5] = model.WeeklyScheduleDay{
		DayOfWeek:        5,
		IsOpen:           true,
		UseSplitHours:    true,
		MorningOpening:   "10:00",
		MorningClosing:   "14:00",
		AfternoonOpening: "19:00",
		AfternoonClosing: "22:00",
	}
	_, err = db.EnsureDefaultSchedules(context.Background(), seed)
	require.NoError(t, err)

	resolver := availability.NewResolver(availability.WithLocation(time.UTC))
	svc := service.NewAvailabilityService(db, resolver, service.Options{
		WindowDays: 30,
		Now:        func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}, nil)
	require.NoError(t, svc.Reload(context.Background()))

	server := NewServer(svc, db, Config{
		AdminAPIKey:        testAPIKey,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}, nil)

	return &testEnv{server: server, db: db, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if admin {
		req.Header.Set(HeaderAPIKey, testAPIKey)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAvailabilityDay(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.SetDayOff(context.Background(), "2025-06-03", "Holiday"))
	require.NoError(t, env.svc.Reload(context.Background()))

	tests := []struct {
		name       string
		date       string
		wantStatus int
		wantClosed bool
		wantReason string
		wantSlots  []string
	}{
		{
			name:       "weekly closed monday",
			date:       "2025-06-02",
			wantStatus: http.StatusOK,
			wantClosed: true,
			wantReason: availability.WeeklyClosedReason,
			wantSlots:  []string{},
		},
		{
			name:       "override closes tuesday",
			date:       "2025-06-03",
			wantStatus: http.StatusOK,
			wantClosed: true,
			wantReason: "Holiday",
			wantSlots:  []string{},
		},
		{
			name:       "open wednesday",
			date:       "2025-06-04",
			wantStatus: http.StatusOK,
			wantSlots:  []string{"10:00", "10:30", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30"},
		},
		{
			name:       "split friday",
			date:       "2025-06-06",
			wantStatus: http.StatusOK,
			wantSlots: []string{
				"10:00", "10:30", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30",
				"19:00", "19:30", "20:00", "20:30", "21:00", "21:30",
			},
		},
		{
			name:       "invalid date",
			date:       "2025-13-01",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not a date",
			date:       "tomorrow",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/availability/"+tt.date, nil, false)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, decode[map[string]string](t, w), "error")
				return
			}

			day := decode[availability.Day](t, w)
			assert.Equal(t, tt.date, day.Date)
			assert.Equal(t, tt.wantClosed, day.IsClosed)
			assert.Equal(t, tt.wantReason, day.Reason)
			assert.Equal(t, tt.wantSlots, day.Slots)
		})
	}
}

func TestAvailabilityRange(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/availability?start=2025-06-01&end=2025-06-07", nil, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[RangeResponse](t, w)
	require.Len(t, resp.Days, 7)
	assert.Equal(t, "2025-06-01", resp.Days[0].Date)
	assert.True(t, resp.Days[1].IsClosed)
	assert.Empty(t, resp.Days[1].Slots)
	assert.Len(t, resp.Days[5].Slots, 14)

	// Outside the preloaded window.
	w = env.do(t, http.MethodGet, "/api/availability?start=2025-09-01&end=2025-09-02", nil, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[RangeResponse](t, w).Days[0].IsClosed)

	bad := []struct {
		name  string
		query string
	}{
		{name: "missing end", query: "?start=2025-06-01"},
		{name: "bad start", query: "?start=06/01/2025&end=2025-06-07"},
		{name: "reversed", query: "?start=2025-06-07&end=2025-06-01"},
		{name: "too long", query: "?start=2025-01-01&end=2025-06-01"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/availability"+tt.query, nil, false)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Day(ctx context.Context, date string) (availability.Day, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(availability.Day), args.Error(1)
}

func (m *mockProvider) Calendar(ctx context.Context, start, end string) ([]availability.Day, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]availability.Day), args.Error(1)
}

func TestAvailabilityErrors(t *testing.T) {
	provider := new(mockProvider)
	provider.On("Day", mock.Anything, "2025-06-02").Return(availability.Day{}, service.ErrAvailabilityUnavailable)
	provider.On("Day", mock.Anything, "2025-06-05").Return(availability.Day{}, availability.ErrMalformedOverride)
	provider.On("Calendar", mock.Anything, "2025-06-01", "2025-06-07").Return(nil, service.ErrAvailabilityUnavailable)

	server := NewServer(provider, nil, Config{}, nil)

	tests := []struct {
		path string
		want int
	}{
		{path: "/api/availability/2025-06-02", want: http.StatusServiceUnavailable},
		{path: "/api/availability/2025-06-05", want: http.StatusInternalServerError},
		{path: "/api/availability?start=2025-06-01&end=2025-06-07", want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
		assert.Equal(t, tt.want, w.Code, tt.path)
		assert.Equal(t, msgUnavailable, decode[map[string]string](t, w)["error"])
	}
	provider.AssertExpectations(t)
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/availability/2025-06-04", http.NoBody)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestRateLimit(t *testing.T) {
	provider := new(mockProvider)
	provider.On("Day", mock.Anything, "2025-06-04").Return(availability.Day{Slots: []string{}}, nil)

	server := NewServer(provider, nil, Config{RateLimitPerSecond: 0.001, RateLimitBurst: 2}, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/availability/2025-06-04", http.NoBody)
		req.RemoteAddr = "198.51.100.7:4000"
		server.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Other clients have their own bucket.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/availability/2025-06-04", http.NoBody)
	req.RemoteAddr = "198.51.100.8:4000"
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(1, 1)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.get("203.0.113.1")
	l.get("203.0.113.2")
	require.Len(t, l.limiters, 2)

	now = now.Add(5 * time.Minute)
	l.get("203.0.113.2")
	assert.Len(t, l.limiters, 2, "nothing is idle long enough yet")

	now = now.Add(6 * time.Minute)
	l.get("203.0.113.3")
	assert.NotContains(t, l.limiters, "203.0.113.1")
	assert.Contains(t, l.limiters, "203.0.113.2")
	assert.Contains(t, l.limiters, "203.0.113.3")

	now = now.Add(limiterIdleTTL + limiterSweepEvery)
	l.get("203.0.113.4")
	assert.Len(t, l.limiters, 1)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/admin/weekly", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/weekly", http.NoBody)
	req.Header.Set(HeaderAPIKey, "wrong")
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/weekly", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	disabled := NewServer(env.svc, env.db, Config{}, nil)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/weekly", http.NoBody)
	req.Header.Set(HeaderAPIKey, "")
	w = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminWeekly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/admin/weekly", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Days    []model.WeeklyScheduleDay `json:"days"`
		Missing []int                     `json:"missing"`
	}](t, w)
	assert.Len(t, resp.Days, 7)
	assert.Empty(t, resp.Missing)

	tests := []struct {
		name string
		day  string
		body string
		want int
	}{
		{
			name: "open monday",
			day:  "1",
			body: `{"is_open":true,"single_opening":"11:00","single_closing":"15:00"}`,
			want: http.StatusOK,
		},
		{
			name: "split sunday",
			day:  "0",
			body: `{"is_open":true,"use_split_hours":true,"morning_opening":"12:00","morning_closing":"15:00","afternoon_opening":"18:00","afternoon_closing":"23:00"}`,
			want: http.StatusOK,
		},
		{
			name: "overlapping split windows are accepted",
			day:  "2",
			body: `{"is_open":true,"use_split_hours":true,"morning_opening":"12:00","morning_closing":"16:00","afternoon_opening":"15:00","afternoon_closing":"18:00"}`,
			want: http.StatusOK,
		},
		{name: "closed", day: "3", body: `{"is_open":false}`, want: http.StatusOK},
		{name: "day out of range", day: "7", body: `{"is_open":false}`, want: http.StatusBadRequest},
		{name: "day not a number", day: "mon", body: `{"is_open":false}`, want: http.StatusBadRequest},
		{name: "missing is_open", day: "4", body: `{"single_opening":"10:00","single_closing":"12:00"}`, want: http.StatusBadRequest},
		{name: "bad time", day: "4", body: `{"is_open":true,"single_opening":"9:00","single_closing":"12:00"}`, want: http.StatusBadRequest},
		{name: "reversed window", day: "4", body: `{"is_open":true,"single_opening":"14:00","single_closing":"12:00"}`, want: http.StatusBadRequest},
		{name: "split missing afternoon", day: "4", body: `{"is_open":true,"use_split_hours":true,"morning_opening":"12:00","morning_closing":"14:00"}`, want: http.StatusBadRequest},
		{name: "unknown field", day: "4", body: `{"is_open":false,"color":"red"}`, want: http.StatusBadRequest},
		{name: "invalid json", day: "4", body: `{`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, "/api/admin/weekly/"+tt.day, tt.body, true)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	weekly, err := env.db.GetWeeklyTemplate(context.Background())
	require.NoError(t, err)
	assert.True(t, weekly[1].IsOpen)
	assert.Equal(t, "11:00", weekly[1].SingleOpening)
	assert.True(t, weekly[0].UseSplitHours)
	assert.False(t, weekly[3].IsOpen)
	assert.Equal(t, "10:00", weekly[4].SingleOpening)
}

func TestAdminOverrides(t *testing.T) {
	env := newTestEnv(t)
	bus := events.NewEventBus()
	env.db.SetPublisher(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.svc.Watch(ctx, bus)

	w := env.do(t, http.MethodPut, "/api/admin/overrides/2025-06-04",
		`{"is_closed":false,"reason":"Brunch","opening_time":"09:00","closing_time":"11:00"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/availability/2025-06-04", nil, false)
		day := decode[availability.Day](t, w)
		return len(day.Slots) == 4 && day.Slots[0] == "09:00"
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodGet, "/api/admin/overrides/2025-06-04", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	o := decode[model.DateOverride](t, w)
	assert.Equal(t, "Brunch", o.Reason)

	w = env.do(t, http.MethodPost, "/api/admin/overrides/2025-06-07/close", `{"reason":"Staff party"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/admin/overrides/2025-06-08/close", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/admin/overrides?start=2025-06-01&end=2025-06-30", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Overrides []model.DateOverride `json:"overrides"`
	}](t, w)
	require.Len(t, list.Overrides, 3)
	assert.Equal(t, "2025-06-07", list.Overrides[1].Date)
	assert.True(t, list.Overrides[1].IsClosed)

	w = env.do(t, http.MethodDelete, "/api/admin/overrides/2025-06-04", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/admin/overrides/2025-06-04", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/admin/overrides/2025-06-04", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/availability/2025-06-04", nil, false)
		day := decode[availability.Day](t, w)
		return len(day.Slots) == 8 && day.Slots[0] == "10:00"
	}, 2*time.Second, 10*time.Millisecond)

	invalid := []struct {
		name string
		path string
		body string
	}{
		{name: "bad date", path: "/api/admin/overrides/2025-02-30", body: `{"is_closed":true}`},
		{name: "open without hours", path: "/api/admin/overrides/2025-06-10", body: `{"is_closed":false}`},
		{name: "split missing morning", path: "/api/admin/overrides/2025-06-10", body: `{"use_split_hours":true,"afternoon_opening":"19:00","afternoon_closing":"22:00"}`},
		{name: "bad time", path: "/api/admin/overrides/2025-06-10", body: `{"opening_time":"25:00","closing_time":"26:00"}`},
		{name: "reason too long", path: "/api/admin/overrides/2025-06-10", body: `{"is_closed":true,"reason":"` + strings.Repeat("x", 201) + `"}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, tt.path, tt.body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestAdminQuickHours(t *testing.T) {
	env := newTestEnv(t)
	bus := events.NewEventBus()
	env.db.SetPublisher(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.svc.Watch(ctx, bus)

	w := env.do(t, http.MethodPost, "/api/admin/overrides/2025-06-10/hours",
		`{"opening_time":"18:00","closing_time":"20:00","reason":" Tasting menu "}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	o, err := env.db.GetDateOverride(ctx, "2025-06-10")
	require.NoError(t, err)
	assert.False(t, o.IsClosed)
	assert.Equal(t, "Tasting menu", o.Reason)
	assert.Equal(t, "18:00", o.OpeningTime)
	assert.Equal(t, "20:00", o.ClosingTime)

	w = env.do(t, http.MethodPost, "/api/admin/overrides/2025-06-11/split",
		`{"morning":{"opening":"11:00","closing":"12:00"},"afternoon":{"opening":"18:00","closing":"19:00"}}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	split := decode[model.DateOverride](t, w)
	assert.True(t, split.UseSplitHours)
	assert.Equal(t, "18:00", split.AfternoonOpening)

	assert.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/availability/2025-06-10", nil, false)
		day := decode[availability.Day](t, w)
		return assert.ObjectsAreEqual([]string{"18:00", "18:30", "19:00", "19:30"}, day.Slots)
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/availability/2025-06-11", nil, false)
		day := decode[availability.Day](t, w)
		return assert.ObjectsAreEqual([]string{"11:00", "11:30", "18:00", "18:30"}, day.Slots)
	}, 2*time.Second, 10*time.Millisecond)

	invalid := []struct {
		name string
		path string
		body string
	}{
		{name: "hours reversed", path: "/api/admin/overrides/2025-06-12/hours", body: `{"opening_time":"20:00","closing_time":"18:00"}`},
		{name: "hours missing closing", path: "/api/admin/overrides/2025-06-12/hours", body: `{"opening_time":"18:00"}`},
		{name: "hours bad date", path: "/api/admin/overrides/2025-13-01/hours", body: `{"opening_time":"18:00","closing_time":"20:00"}`},
		{name: "hours empty body", path: "/api/admin/overrides/2025-06-12/hours", body: ``},
		{name: "split missing afternoon", path: "/api/admin/overrides/2025-06-12/split", body: `{"morning":{"opening":"11:00","closing":"12:00"}}`},
		{name: "split bad time", path: "/api/admin/overrides/2025-06-12/split", body: `{"morning":{"opening":"11:00","closing":"12:60"},"afternoon":{"opening":"18:00","closing":"19:00"}}`},
		{name: "split empty window", path: "/api/admin/overrides/2025-06-12/split", body: `{"morning":{"opening":"12:00","closing":"12:00"},"afternoon":{"opening":"18:00","closing":"19:00"}}`},
		{name: "split unknown field", path: "/api/admin/overrides/2025-06-12/split", body: `{"lunch":{"opening":"11:00","closing":"12:00"}}`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body, true)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	_, err = env.db.GetDateOverride(ctx, "2025-06-12")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestAdminExport(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/admin/export?start=2025-06-01&end=2025-06-07", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "availability_2025-06-01_2025-06-07.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Availability")
	require.NoError(t, err)
	assert.Len(t, rows, 8)
	assert.Equal(t, "Closed", rows[2][2])

	w = env.do(t, http.MethodGet, "/api/admin/export?start=2025-06-07", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/unknown", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
