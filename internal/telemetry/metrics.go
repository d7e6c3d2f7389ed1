// Package telemetry registers the Prometheus metrics exposed on /metrics.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	ScansTotal          *prometheus.CounterVec
	ScansSkipped        *prometheus.CounterVec
	ArtistsChecked      prometheus.Counter
	ArtistErrors        prometheus.Counter
	ReleasesFound       prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	ScanDuration        prometheus.Observer
	TrackedArtists      prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hatsubai_scans_total", Help: "Release scans run, by trigger"}, []string{"trigger"})
		ScansSkipped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "hatsubai_scans_skipped_total", Help: "Scan requests refused because of a running scan or cooldown, by trigger"}, []string{"trigger"})
		ArtistsChecked = promauto.NewCounter(prometheus.CounterOpts{Name: "hatsubai_artists_checked_total", Help: "Artists looked up on Spotify"})
		ArtistErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "hatsubai_artist_errors_total", Help: "Artist lookups that failed and were skipped"})
		ReleasesFound = promauto.NewCounter(prometheus.CounterOpts{Name: "hatsubai_releases_found_total", Help: "Releases inside the lookback window"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "hatsubai_notifications_sent_total", Help: "Release alerts delivered"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "hatsubai_notifications_failed_total", Help: "Release alerts that could not be delivered"})
		ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "hatsubai_scan_duration_seconds", Help: "Full scan duration seconds", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}})
		TrackedArtists = promauto.NewGauge(prometheus.GaugeOpts{Name: "hatsubai_tracked_artists", Help: "Artists in the roster"})
	})
}

// SetTrackedArtists records the roster size.
func SetTrackedArtists(n int) {
	Init()
	TrackedArtists.Set(float64(n))
}
