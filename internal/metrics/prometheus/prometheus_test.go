package prometheus_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/comicsub/internal/metrics"
	metricsprom "github.com/slok/comicsub/internal/metrics/prometheus"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metricsprom.NewRecorder(reg)

	rec.ObserveTask("webdav down", metrics.TaskOutcomeTimeout, 2*time.Second)
	rec.ObserveFlow(metrics.FlowKindFull, time.Minute)
	rec.SetComics(10, 3)
	rec.IncNotification(true)
	rec.IncNotification(false)
	rec.IncCoverCache("hit")

	exp := `
# HELP comicsub_comics The number of tracked comics.
# TYPE comicsub_comics gauge
comicsub_comics{failed="false"} 7
comicsub_comics{failed="true"} 3
# HELP comicsub_notifications_total The number of update notifications sent.
# TYPE comicsub_notifications_total counter
comicsub_notifications_total{success="false"} 1
comicsub_notifications_total{success="true"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(exp), "comicsub_comics", "comicsub_notifications_total")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "comicsub_task_duration_seconds", "comicsub_flow_duration_seconds", "comicsub_cover_cache_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
