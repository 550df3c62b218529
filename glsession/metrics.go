package glsession

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glgraph_session_compiles_total",
		Help: "Compile replies handled by outcome: applied, failed or link_failed",
	}, []string{"outcome"})

	staleRepliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glgraph_session_stale_replies_total",
		Help: "Compile replies dropped because a newer request was issued",
	})

	parameterUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glgraph_session_parameter_updates_total",
		Help: "Parameter edits by path taken: fast or recompile",
	}, []string{"path"})

	framesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glgraph_session_frames_total",
		Help: "Frames rendered",
	})

	compileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glgraph_session_compile_latency_seconds",
		Help:    "Time from issuing a compile request to handling its reply",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})
)
