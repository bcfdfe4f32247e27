// Package metrics exposes run progress as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/soocke/score-split-go/domain/split"
)

// OutcomeScored labels checks that produced a score.
const OutcomeScored = "scored"

// Metrics holds the collectors of one registry.
type Metrics struct {
	ChecksTotal         *prometheus.CounterVec
	CheckDuration       prometheus.Histogram
	SplitsScoredTotal   prometheus.Counter
	CurrentSplit        prometheus.Gauge
	FramesTotal         *prometheus.CounterVec
	LastScore           prometheus.Gauge
	LastMatchConfidence prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresplit_checks_total",
			Help: "Total number of frame checks, by outcome",
		}, []string{"outcome"}),
		CheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scoresplit_check_duration_seconds",
			Help:    "Duration of a single frame check",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SplitsScoredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "scoresplit_splits_scored_total",
			Help: "Total number of splits that produced a score",
		}),
		CurrentSplit: f.NewGauge(prometheus.GaugeOpts{
			Name: "scoresplit_current_split",
			Help: "Index of the split currently being watched for",
		}),
		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresplit_frames_total",
			Help: "Total number of frames pulled from a source",
		}, []string{"source"}),
		LastScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "scoresplit_last_score",
			Help: "Most recently recognized score",
		}),
		LastMatchConfidence: f.NewGauge(prometheus.GaugeOpts{
			Name: "scoresplit_last_match_confidence",
			Help: "Best trigger match confidence of the last checked frame",
		}),
	}
	// Every outcome is exported from zero.
	m.ChecksTotal.WithLabelValues(OutcomeScored)
	for _, k := range split.Kinds {
		m.ChecksTotal.WithLabelValues(k.String())
	}
	return m
}

// ObserveFrame counts a frame pulled from source.
func (m *Metrics) ObserveFrame(source string) {
	m.FramesTotal.WithLabelValues(source).Inc()
}

// ObserveCheck records one check outcome and its duration.
func (m *Metrics) ObserveCheck(outcome string, confidence float64, d time.Duration) {
	m.ChecksTotal.WithLabelValues(outcome).Inc()
	m.CheckDuration.Observe(d.Seconds())
	m.LastMatchConfidence.Set(confidence)
}

// ObserveScore records a recognized score.
func (m *Metrics) ObserveScore(score int64) {
	m.SplitsScoredTotal.Inc()
	m.LastScore.Set(float64(score))
}

// SetCurrentSplit publishes the split index.
func (m *Metrics) SetCurrentSplit(i int) {
	m.CurrentSplit.Set(float64(i))
}
