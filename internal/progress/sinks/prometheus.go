package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/purifier-console/internal/progress"
)

var knownStages = map[string]struct{}{
	progress.StageDownloading: {},
	progress.StageDownloaded:  {},
	progress.StageProcessing:  {},
	progress.StageUploading:   {},
	progress.StageCompleted:   {},
	progress.StageFailed:      {},
}

// PrometheusSink exports episode processing metrics derived from the live
// progress stream.
type PrometheusSink struct {
	events    *prometheus.CounterVec
	percent   prometheus.Histogram
	completed *prometheus.CounterVec
	active    prometheus.Gauge

	tracker *episodeTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purifier_progress_events_total",
			Help: "Progress events received, partitioned by stage.",
		}, []string{"stage"}),
		percent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "purifier_progress_percent",
			Help:    "Distribution of reported completion percentages.",
			Buckets: []float64{10, 25, 50, 75, 90, 100},
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purifier_episodes_completed_total",
			Help: "Episodes whose job finished, partitioned by result.",
		}, []string{"result"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "purifier_episodes_active",
			Help: "Episodes with a job in flight as seen on the progress stream.",
		}),
		tracker: newEpisodeTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.percent,
		s.completed,
		s.active,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	s.events.WithLabelValues(stageLabel(evt.Stage)).Inc()
	s.percent.Observe(evt.Progress)

	if !evt.Terminal() {
		if s.tracker.start(evt.EpisodeID) {
			s.active.Inc()
		}
		return
	}
	result := "success"
	if evt.Stage == progress.StageFailed {
		result = "error"
	}
	s.completed.WithLabelValues(result).Inc()
	if s.tracker.complete(evt.EpisodeID) {
		s.active.Dec()
	}
}

func stageLabel(stage string) string {
	if _, ok := knownStages[stage]; ok {
		return stage
	}
	return "other"
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type episodeTracker struct {
	mu      sync.Mutex
	running map[int64]struct{}
}

func newEpisodeTracker() *episodeTracker {
	return &episodeTracker{running: make(map[int64]struct{})}
}

func (t *episodeTracker) start(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *episodeTracker) complete(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
