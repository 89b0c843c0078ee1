package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream names used as label values
const (
	UpstreamStory        = "story"
	UpstreamVision       = "vision"
	UpstreamIllustration = "illustration"
)

var (
	storyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendertales_story_requests_total",
			Help: "Total number of story generation requests by outcome.",
		},
		[]string{"status"}, // succeeded, degraded, failed, rejected
	)
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tendertales_upstream_requests_total",
			Help: "Total number of calls to upstream generation APIs.",
		},
		[]string{"upstream", "status"},
	)
	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tendertales_upstream_request_duration_seconds",
			Help:    "Duration of upstream generation calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"upstream"},
	)
	predictionPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tendertales_prediction_polls",
		Help:    "Number of status requests issued per image prediction.",
		Buckets: prometheus.LinearBuckets(1, 5, 12), // 1, 6, ..., 56
	})
)

// ObserveStoryRequest counts a finished /generate-story request.
func ObserveStoryRequest(status string) {
	storyRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveUpstream records one upstream call started at start.
func ObserveUpstream(upstream string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	upstreamRequestsTotal.WithLabelValues(upstream, status).Inc()
	upstreamRequestDuration.WithLabelValues(upstream).Observe(time.Since(start).Seconds())
}

// ObservePolls records how many status requests a prediction needed.
func ObservePolls(n int) {
	predictionPolls.Observe(float64(n))
}
