package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExporterMetrics holds Prometheus metrics for the bridge's own health
type ExporterMetrics struct {
	// Poll cycle duration histogram (in seconds)
	PollDurationSeconds prometheus.Histogram

	// Failed poll cycles
	PollErrorsTotal prometheus.Counter

	// Build info gauge
	BuildInfo prometheus.Gauge

	// Authentication status gauge (1 = valid, 0 = invalid)
	AuthenticationValid prometheus.Gauge

	// Failed password or refresh grants
	AuthenticationErrorsTotal prometheus.Counter

	// Last successful token exchange (unix seconds)
	LastAuthenticationSuccessUnix prometheus.Gauge

	// Refresh grants attempted
	TokenRefreshesTotal prometheus.Counter

	// Refresh tokens rotated by the identity provider
	TokenRotationsTotal prometheus.Counter
}

// NewExporterMetrics creates exporter health metrics and registers them with reg
func NewExporterMetrics(reg prometheus.Registerer) (*ExporterMetrics, error) {
	em := &ExporterMetrics{
		// Buckets: 0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4
		PollDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rise_garden_exporter_poll_duration_seconds",
			Help:    "Time taken to poll the Rise Gardens API in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 7),
		}),

		PollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rise_garden_exporter_poll_errors_total",
			Help: "Total number of failed poll cycles",
		}),

		BuildInfo: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rise_garden_exporter_build_info",
			Help: "Build information for the exporter (value is always 1)",
		}),

		AuthenticationValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rise_garden_exporter_authentication_valid",
			Help: "Set to 1 if the last token exchange succeeded, 0 otherwise",
		}),

		AuthenticationErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rise_garden_exporter_authentication_errors_total",
			Help: "Total number of failed password or refresh grants",
		}),

		LastAuthenticationSuccessUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rise_garden_exporter_last_authentication_success_unix",
			Help: "Unix timestamp of the last successful token exchange",
		}),

		TokenRefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rise_garden_exporter_token_refreshes_total",
			Help: "Total number of successful refresh grants",
		}),

		TokenRotationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rise_garden_exporter_token_rotations_total",
			Help: "Total number of refresh tokens rotated by the identity provider",
		}),
	}

	if err := em.Register(reg); err != nil {
		return nil, err
	}

	em.BuildInfo.Set(1)
	em.AuthenticationValid.Set(0)

	return em, nil
}

// Collectors returns every metric held by em
func (em *ExporterMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		em.PollDurationSeconds,
		em.PollErrorsTotal,
		em.BuildInfo,
		em.AuthenticationValid,
		em.AuthenticationErrorsTotal,
		em.LastAuthenticationSuccessUnix,
		em.TokenRefreshesTotal,
		em.TokenRotationsTotal,
	}
}

// Register registers exporter metrics with reg
func (em *ExporterMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range em.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordPollDuration records the duration of a poll cycle
func (em *ExporterMetrics) RecordPollDuration(d time.Duration) {
	em.PollDurationSeconds.Observe(d.Seconds())
}

// IncrementPollErrors increments the poll error counter
func (em *ExporterMetrics) IncrementPollErrors() {
	em.PollErrorsTotal.Inc()
}

// SetAuthenticationValid sets the authentication status gauge
func (em *ExporterMetrics) SetAuthenticationValid(valid bool) {
	if valid {
		em.AuthenticationValid.Set(1)
	} else {
		em.AuthenticationValid.Set(0)
	}
}

// IncrementAuthenticationErrors increments the authentication error counter
func (em *ExporterMetrics) IncrementAuthenticationErrors() {
	em.AuthenticationErrorsTotal.Inc()
}

// RecordAuthenticationSuccess marks authentication valid and stores the timestamp
func (em *ExporterMetrics) RecordAuthenticationSuccess(at time.Time) {
	em.SetAuthenticationValid(true)
	em.LastAuthenticationSuccessUnix.Set(float64(at.Unix()))
}

// IncrementTokenRefreshes counts a successful refresh grant
func (em *ExporterMetrics) IncrementTokenRefreshes() {
	em.TokenRefreshesTotal.Inc()
}

// IncrementTokenRotations increments the rotation counter
func (em *ExporterMetrics) IncrementTokenRotations() {
	em.TokenRotationsTotal.Inc()
}
