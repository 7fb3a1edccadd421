package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/comicsub/internal/metrics"
)

const namespace = "comicsub"

type recorder struct {
	taskDuration  *prometheus.HistogramVec
	flowDuration  *prometheus.HistogramVec
	comics        *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	coverCache    *prometheus.CounterVec
}

// NewRecorder returns a Prometheus metrics recorder registered on reg.
func NewRecorder(reg prometheus.Registerer) metrics.Recorder {
	r := &recorder{
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "The duration of the external tool commands.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"command", "outcome"}),

		flowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "duration_seconds",
			Help:      "The duration of the update flows.",
			Buckets:   []float64{5, 30, 60, 120, 300, 600, 1200},
		}, []string{"kind"}),

		comics: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "comics",
			Help:      "The number of tracked comics.",
		}, []string{"failed"}),

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "The number of update notifications sent.",
		}, []string{"success"}),

		coverCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cover_cache_total",
			Help:      "The number of cover cache operations.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.taskDuration,
		r.flowDuration,
		r.comics,
		r.notifications,
		r.coverCache,
	)

	return r
}

func (r *recorder) ObserveTask(command, outcome string, duration time.Duration) {
	r.taskDuration.WithLabelValues(command, outcome).Observe(duration.Seconds())
}

func (r *recorder) ObserveFlow(kind string, duration time.Duration) {
	r.flowDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (r *recorder) SetComics(total, failed int) {
	r.comics.WithLabelValues("false").Set(float64(total - failed))
	r.comics.WithLabelValues("true").Set(float64(failed))
}

func (r *recorder) IncNotification(success bool) {
	r.notifications.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (r *recorder) IncCoverCache(result string) {
	r.coverCache.WithLabelValues(result).Inc()
}
