package sinks

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/purifier-console/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and gauges follow one episode's job.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		{EpisodeID: 5, Progress: 10, Stage: progress.StageDownloading},
		{EpisodeID: 5, Progress: 30, Stage: progress.StageDownloaded},
		{EpisodeID: 6, Progress: 10, Stage: progress.StageDownloading},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.InDelta(t, 2, testutil.ToFloat64(sink.active), 1e-9)
	require.InDelta(t, 2, testutil.ToFloat64(sink.events.WithLabelValues(progress.StageDownloading)), 1e-9)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{EpisodeID: 5, Progress: 100, Stage: progress.StageCompleted},
		{EpisodeID: 6, Progress: 0, Stage: progress.StageFailed},
		{EpisodeID: 6, Progress: 0, Stage: progress.StageFailed},
	}))
	require.InDelta(t, 0, testutil.ToFloat64(sink.active), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(sink.completed.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 2, testutil.ToFloat64(sink.completed.WithLabelValues("error")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.percent))
}

func TestPrometheusSinkFoldsUnknownStages(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{EpisodeID: 1, Progress: 55, Stage: "clean"},
		{EpisodeID: 2, Progress: 60, Stage: "transcribe"},
	}))
	require.InDelta(t, 2, testutil.ToFloat64(sink.events.WithLabelValues("other")), 1e-9)
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
