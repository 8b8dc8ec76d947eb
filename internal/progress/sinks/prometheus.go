package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/w1tte/hltv-scraper-sub000/internal/progress"
)

// PrometheusSink exports run, unit and discovery-page progress.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	pages        *prometheus.CounterVec
	halts        *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hltv_runs_started_total",
			Help: "Runs started, labeled by stage.",
		}, []string{"stage"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hltv_runs_completed_total",
			Help: "Runs finished, labeled by stage and result (done or halted).",
		}, []string{"stage", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hltv_runs_running",
			Help: "Runs currently in progress.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hltv_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 21600},
		}, []string{"stage"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hltv_units_total",
			Help: "Work units finished by the pipeline, labeled by stage and outcome.",
		}, []string{"stage", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hltv_unit_duration_seconds",
			Help:    "Parse, validate and persist time per unit.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"stage"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hltv_discovery_pages_total",
			Help: "Listing pages handled by discovery, labeled by result.",
		}, []string{"result"}),
		halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hltv_halts_total",
			Help: "Runs halted by the consecutive-failure guard, labeled by stage.",
		}, []string{"stage"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.units,
		s.unitDuration,
		s.pages,
		s.halts,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindRunStart:
		s.runsStarted.WithLabelValues(evt.Stage).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.KindRunDone, progress.KindRunHalted:
		result := "done"
		if evt.Kind == progress.KindRunHalted {
			result = "halted"
			s.halts.WithLabelValues(evt.Stage).Inc()
		}
		s.runsCompleted.WithLabelValues(evt.Stage, result).Inc()
		if evt.Dur > 0 {
			s.runRuntime.WithLabelValues(evt.Stage).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.KindPageDone:
		s.pages.WithLabelValues(string(evt.Page)).Inc()
	case progress.KindUnitDone, progress.KindUnitFailed, progress.KindUnitDiscarded:
		s.units.WithLabelValues(evt.Stage, unitOutcome(evt.Kind)).Inc()
		if evt.Dur > 0 {
			s.unitDuration.WithLabelValues(evt.Stage).Observe(evt.Dur.Seconds())
		}
	}
}

func unitOutcome(kind progress.Kind) string {
	switch kind {
	case progress.KindUnitDone:
		return "done"
	case progress.KindUnitFailed:
		return "failed"
	default:
		return "discarded"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
