package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablebook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	settingsReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablebook",
			Name:      "settings_reload_total",
			Help:      "Count of schedule snapshot reloads by result.",
		},
		[]string{"result"},
	)

	settingsReloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tablebook",
			Name:      "settings_reload_duration_seconds",
			Help:      "Time spent loading the weekly template and overrides.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	resolveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablebook",
			Name:      "resolve_errors_total",
			Help:      "Count of failed availability resolutions by kind.",
		},
		[]string{"kind"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablebook",
			Name:      "cache_lookups_total",
			Help:      "Count of settings cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, settingsReloads, settingsReloadDuration, resolveErrors, cacheLookups)
	})
}

func IncHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, statusClass(code)).Inc()
}

func ObserveReload(result string, d time.Duration) {
	settingsReloads.WithLabelValues(result).Inc()
	settingsReloadDuration.Observe(d.Seconds())
}

func IncResolveError(kind string) {
	resolveErrors.WithLabelValues(kind).Inc()
}

func IncCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
