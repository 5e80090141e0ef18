package frameflow

import (
	"context"
	"sync"
	"time"

	"github.com/nirosys/frameflow/data"

	log "github.com/sirupsen/logrus"
)

// StreamMetrics accumulates step timings for a DataStream. Metrics resets
// the counters, so each call reports the interval since the previous one.
type StreamMetrics struct {
	MeanStepSecs   float64 `json:"mean_step_sec"`
	NumberOfSteps  uint    `json:"num_steps"`
	NumberOfErrors uint    `json:"num_errors"`
	StepsPerSecond float64 `json:"steps_per_sec"`

	total_time_sec float64
	in_step        bool
	window_start   time.Time
	metricsLock    sync.Mutex
}

func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{
		window_start: time.Now(),
	}
}

func (m *StreamMetrics) Metrics() data.MetricCollection {
	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	elapsed := time.Since(m.window_start).Seconds()
	if elapsed > 0 {
		m.StepsPerSecond = float64(m.NumberOfSteps) / elapsed
	}

	metrics := data.MetricCollection{
		"num_steps":     m.NumberOfSteps,
		"num_errors":    m.NumberOfErrors,
		"mean_step_sec": m.MeanStepSecs,
		"steps_per_sec": m.StepsPerSecond,
	}
	m.MeanStepSecs = 0.0
	m.NumberOfSteps = 0
	m.NumberOfErrors = 0
	m.StepsPerSecond = 0.0
	m.total_time_sec = 0.0
	m.window_start = time.Now()
	return metrics
}

// StepBegin opens a step and returns ctx carrying the step start time, to
// be passed down the pull and back to StepEnd.
func (m *StreamMetrics) StepBegin(ctx context.Context) context.Context {
	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	if m.in_step {
		log.WithField("op", "frameflow:metrics.stepbegin").
			Error("step already being tracked")
	}
	m.in_step = true
	return NewContextWithStartTime(ctx)
}

// StepEnd closes the step opened by StepBegin, timing it from the start
// time in ctx. A failed step counts as an error and is left out of the
// timing average.
func (m *StreamMetrics) StepEnd(ctx context.Context, err error) {
	end := time.Now()
	start, ok := StartTimeFromContext(ctx)

	m.metricsLock.Lock()
	defer m.metricsLock.Unlock()

	if !m.in_step || !ok {
		log.WithField("op", "frameflow:metrics.stepend").Error("step ending without record of start")
		m.in_step = false
		m.NumberOfErrors += 1
		return
	}
	m.in_step = false
	if err != nil {
		m.NumberOfErrors += 1
		return
	}
	m.total_time_sec += end.Sub(start).Seconds()
	m.NumberOfSteps += 1
	m.MeanStepSecs = m.total_time_sec / float64(m.NumberOfSteps)
}
