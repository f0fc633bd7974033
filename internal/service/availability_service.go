package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tablebook/internal/availability"
	"tablebook/internal/cache"
	"tablebook/internal/events"
	"tablebook/internal/metrics"
	"tablebook/internal/model"
)

// ErrAvailabilityUnavailable means no schedule data could be loaded. Callers must not fall
// back to default hours in that case.
var ErrAvailabilityUnavailable = errors.New("availability unavailable")

// SettingsStore provides the weekly template and date overrides.
type SettingsStore interface {
	GetWeeklyTemplate(ctx context.Context) (model.WeeklyTemplate, error)
	ListDateOverrides(ctx context.Context, from, to string) ([]model.DateOverride, error)
}

// Subscriber is the part of the event bus the service listens on.
type Subscriber interface {
	Subscribe(handler events.EventHandler, eventTypes ...string)
}

// Options tune how the snapshot is fetched.
type Options struct {
	WindowDays   int
	FetchTimeout time.Duration
	Cache        *cache.Cache
	Now          func() time.Time
}

type snapshot struct {
	weekly    model.WeeklyTemplate
	overrides model.Overrides
	from, to  string
}

// AvailabilityService keeps the latest weekly template and override window in memory and
// answers availability queries through the resolver.
type AvailabilityService struct {
	store    SettingsStore
	resolver *availability.Resolver
	cache    *cache.Cache
	logger   *zerolog.Logger

	windowDays   int
	fetchTimeout time.Duration
	now          func() time.Time

	mu   sync.RWMutex
	snap *snapshot

	reloadMu sync.Mutex
	pending  chan struct{}
	// changes counts store notifications; a cache fill is dropped if it moved during the read.
	changes atomic.Uint64
}

func NewAvailabilityService(store SettingsStore, resolver *availability.Resolver, opts Options, logger *zerolog.Logger) *AvailabilityService {
	if resolver == nil {
		resolver = availability.NewResolver()
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &AvailabilityService{
		store:        store,
		resolver:     resolver,
		cache:        opts.Cache,
		logger:       logger,
		windowDays:   opts.WindowDays,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		pending:      make(chan struct{}, 1),
	}
}

// Resolver returns the resolver used for queries.
func (s *AvailabilityService) Resolver() *availability.Resolver {
	return s.resolver
}

// Reload fetches the weekly template and the overrides from today to today+WindowDays.
// On failure the previous snapshot stays in place.
func (s *AvailabilityService) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	today := s.today()
	from := today.Format(model.DateLayout)
	to := today.AddDate(0, 0, s.windowDays).Format(model.DateLayout)

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	weekly, err := s.loadWeekly(ctx)
	if err != nil {
		metrics.ObserveReload("error", time.Since(start))
		s.logger.Error().Err(err).Msg("failed to load weekly schedule")
		return fmt.Errorf("load weekly schedule: %w", err)
	}

	overrides, err := s.loadOverrides(ctx, from, to)
	if err != nil {
		metrics.ObserveReload("error", time.Since(start))
		s.logger.Error().Err(err).Str("from", from).Str("to", to).Msg("failed to load date overrides")
		return fmt.Errorf("load date overrides: %w", err)
	}

	if missing := weekly.Missing(); len(missing) > 0 {
		s.logger.Warn().Ints("missing_days", missing).Msg("incomplete weekly template, using default hours for missing days")
	}

	s.mu.Lock()
	s.snap = &snapshot{
		weekly:    weekly,
		overrides: overrides,
		from:      from,
		to:        to,
	}
	s.mu.Unlock()

	metrics.ObserveReload("ok", time.Since(start))
	s.logger.Debug().
		Int("weekly_days", len(weekly)).
		Int("overrides", len(overrides)).
		Str("from", from).
		Str("to", to).
		Msg("availability snapshot reloaded")
	return nil
}

// Watch reloads the snapshot in the background whenever the weekly schedule or a date
// override changes. Bursts of notifications collapse into a single reload. It returns
// immediately; the worker stops when ctx is done.
func (s *AvailabilityService) Watch(ctx context.Context, bus Subscriber) {
	bus.Subscribe(func(events.Event) {
		s.noteChange()
	}, events.WeeklyScheduleChanged, events.DateOverrideChanged)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.pending:
				if err := s.cache.Invalidate(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("failed to invalidate settings cache")
				}
				if err := s.Reload(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error().Err(err).Msg("background reload failed")
				}
			}
		}
	}()
}

func (s *AvailabilityService) noteChange() {
	s.changes.Add(1)
	s.scheduleReload()
}

func (s *AvailabilityService) scheduleReload() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Ready reports whether a snapshot has been loaded.
func (s *AvailabilityService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap != nil
}

// DayStatus resolves a single date.
func (s *AvailabilityService) DayStatus(ctx context.Context, date string) (model.ResolvedDayStatus, error) {
	if _, err := s.resolver.ParseDate(date); err != nil {
		return model.ResolvedDayStatus{}, err
	}
	weekly, overrides, err := s.settingsFor(ctx, date, date)
	if err != nil {
		return model.ResolvedDayStatus{}, err
	}
	status, err := s.resolver.ResolveDayStatus(date, weekly, overrides)
	if err != nil {
		s.recordResolveError(date, err)
		return model.ResolvedDayStatus{}, err
	}
	return status, nil
}

// TimeSlots returns the reservation slots for date. Closed dates have none.
func (s *AvailabilityService) TimeSlots(ctx context.Context, date string) ([]string, error) {
	day, err := s.Day(ctx, date)
	if err != nil {
		return nil, err
	}
	return day.Slots, nil
}

// Day resolves date together with its slots.
func (s *AvailabilityService) Day(ctx context.Context, date string) (availability.Day, error) {
	status, err := s.DayStatus(ctx, date)
	if err != nil {
		return availability.Day{}, err
	}
	daySlots, err := s.resolver.SlotsFor(status)
	if err != nil {
		s.recordResolveError(date, err)
		return availability.Day{}, err
	}
	return availability.Day{ResolvedDayStatus: status, Slots: daySlots}, nil
}

// Calendar resolves every date from start to end inclusive.
func (s *AvailabilityService) Calendar(ctx context.Context, start, end string) ([]availability.Day, error) {
	from, err := s.resolver.ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := s.resolver.ParseDate(end)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, fmt.Errorf("start %s is after end %s", start, end)
	}

	weekly, overrides, err := s.settingsFor(ctx, start, end)
	if err != nil {
		return nil, err
	}
	days, err := s.resolver.ResolveRange(start, end, weekly, overrides)
	if err != nil {
		s.recordResolveError(start, err)
		return nil, err
	}
	return days, nil
}

// settingsFor returns the template and the overrides covering [from, to]. Ranges outside
// the snapshot window are read from the store directly.
func (s *AvailabilityService) settingsFor(ctx context.Context, from, to string) (model.WeeklyTemplate, model.Overrides, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	if snap == nil {
		return nil, nil, ErrAvailabilityUnavailable
	}
	if from >= snap.from && to <= snap.to {
		return snap.weekly, snap.overrides, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	overrides, err := s.loadOverrides(ctx, from, to)
	if err != nil {
		s.logger.Error().Err(err).Str("from", from).Str("to", to).Msg("failed to load date overrides")
		return nil, nil, fmt.Errorf("%w: %w", ErrAvailabilityUnavailable, err)
	}
	return snap.weekly, overrides, nil
}

func (s *AvailabilityService) loadWeekly(ctx context.Context) (model.WeeklyTemplate, error) {
	var cached []model.WeeklyScheduleDay
	if s.cacheGet(ctx, "weekly", &cached) {
		return model.NewWeeklyTemplate(cached), nil
	}

	gen := s.changes.Load()
	weekly, err := s.store.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, gen, "weekly", weekly.Days())
	return weekly, nil
}

func (s *AvailabilityService) loadOverrides(ctx context.Context, from, to string) (model.Overrides, error) {
	key := "overrides:" + from + ":" + to

	var cached []model.DateOverride
	if s.cacheGet(ctx, key, &cached) {
		return model.NewOverrides(cached), nil
	}

	gen := s.changes.Load()
	list, err := s.store.ListDateOverrides(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, gen, key, list)
	return model.NewOverrides(list), nil
}

func (s *AvailabilityService) cacheGet(ctx context.Context, key string, out any) bool {
	if !s.cache.Enabled() {
		return false
	}
	hit := s.cache.Get(ctx, key, out)
	metrics.IncCacheLookup(hit)
	return hit
}

// cacheSet stores val unless a change was published after gen was taken. The pending
// invalidation would otherwise run before this write and leave stale data behind.
func (s *AvailabilityService) cacheSet(ctx context.Context, gen uint64, key string, val any) {
	if s.changes.Load() != gen {
		return
	}
	s.cache.Set(ctx, key, val)
}

func (s *AvailabilityService) today() time.Time {
	now := s.now().In(s.resolver.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.resolver.Location())
}

func (s *AvailabilityService) recordResolveError(date string, err error) {
	kind := "other"
	switch {
	case errors.Is(err, availability.ErrMalformedOverride):
		kind = "malformed_override"
	case errors.Is(err, availability.ErrInvalidTimeFormat):
		kind = "invalid_time"
	}
	metrics.IncResolveError(kind)
	s.logger.Error().Err(err).Str("date", date).Msg("failed to resolve availability")
}
