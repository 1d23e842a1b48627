package tune

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuminosukeSato/tidytune/core/parallel"
)

// Recorder exports counts and durations of the fits run by Grid.
type Recorder struct {
	fits     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder registers the search metrics on reg. A nil reg creates
// unregistered collectors.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		fits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tidytune_fits_total",
				Help: "Total number of (configuration, fold) fits by family and final status",
			},
			[]string{"family", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tidytune_fit_duration_seconds",
				Help:    "Duration of one (configuration, fold) fit in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"family"},
		),
	}
}

// Observe records one executed pair.
func (r *Recorder) Observe(family string, status parallel.Status, elapsed time.Duration) {
	r.fits.WithLabelValues(family, status.String()).Inc()
	r.duration.WithLabelValues(family).Observe(elapsed.Seconds())
}
