package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NotificationsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tube_relay_notifications_received_total",
		Help: "Content events received from the push and poll ingestion paths",
	})

	DuplicateEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tube_relay_events_duplicate_total",
		Help: "Events skipped because their hash was already processed",
	})

	DroppedBusy = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tube_relay_events_dropped_busy_total",
		Help: "Events dropped because a pipeline job was already in flight",
	})

	JobsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tube_relay_jobs_processed_total",
		Help: "Pipeline jobs that reached upload fan-out completion",
	})

	JobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tube_relay_jobs_failed_total",
		Help: "Pipeline jobs aborted before completion, by stage",
	}, []string{"stage"})

	SegmentUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tube_relay_segments_uploaded_total",
		Help: "Segment upload attempts by result",
	}, []string{"result"})

	ActiveLeases = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tube_relay_active_leases",
		Help: "Subscription leases currently in the active state",
	})

	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tube_relay_cache_entries",
		Help: "Entries currently held by the channel list cache",
	})
)

func init() {
	prometheus.MustRegister(
		NotificationsReceived,
		DuplicateEvents,
		DroppedBusy,
		JobsProcessed,
		JobsFailed,
		SegmentUploads,
		ActiveLeases,
		CacheEntries,
	)
}

// Handler exposes the default Prometheus registry behind gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
