// Package metrics holds the prometheus instruments for scene operations
// and transitions.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels
const (
	ResultOK       = "ok"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

var (
	// SceneOperationsTotal counts manager load/unload/activate calls by outcome.
	SceneOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneflow_scene_operations_total",
		Help: "Scene lifecycle operations by kind and result",
	}, []string{"op", "result"})

	// SceneLoadDuration tracks how long individual scene loads take to settle.
	SceneLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sceneflow_scene_load_duration_seconds",
		Help:    "Time from load request to the scene being tracked",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// TransitionsTotal counts orchestrated transitions by protocol and result.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneflow_transitions_total",
		Help: "Scene transitions by protocol and result",
	}, []string{"mode", "result"})

	// TransitionDuration tracks end-to-end transition latency, including
	// time spent waiting on a loading screen driver.
	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sceneflow_transition_duration_seconds",
		Help:    "Time from transition start to its result",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	}, []string{"mode"})

	// DetachedFailuresTotal counts failures routed to the fire-and-forget error sink.
	DetachedFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneflow_detached_failures_total",
		Help: "Fire-and-forget operation failures by operation and result",
	}, []string{"op", "result"})
)

// Result maps an operation error to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}

// ObserveSceneOperation records one manager operation.
func ObserveSceneOperation(op string, err error) {
	SceneOperationsTotal.WithLabelValues(op, Result(err)).Inc()
}

// ObserveSceneLoad records the settle time of a successful load.
func ObserveSceneLoad(d time.Duration) {
	SceneLoadDuration.Observe(d.Seconds())
}

// ObserveTransition records a finished transition.
func ObserveTransition(mode string, d time.Duration, err error) {
	TransitionsTotal.WithLabelValues(mode, Result(err)).Inc()
	TransitionDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveDetachedFailure records a failure handed to the error sink.
func ObserveDetachedFailure(op string, err error) {
	DetachedFailuresTotal.WithLabelValues(op, Result(err)).Inc()
}
