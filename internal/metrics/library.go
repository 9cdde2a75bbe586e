// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DockTargetRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashcam_dock_target_running",
		Help: "1 when the dock heuristic targets continuous capture on",
	})

	DockProbeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_dock_probe_errors_total",
		Help: "Dock probe failures by source (power, bluetooth)",
	}, []string{"source"})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_uploads_total",
		Help: "Recording submission uploads by outcome",
	}, []string{"outcome"})

	LibraryFileEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_library_file_events_total",
		Help: "Recordings directory events observed by the watcher by op",
	}, []string{"op"})
)

// SetDockTarget records the target computed by the dock heuristic.
func SetDockTarget(running bool) {
	if running {
		DockTargetRunning.Set(1)
		return
	}
	DockTargetRunning.Set(0)
}

func IncDockProbeError(source string) {
	DockProbeErrorsTotal.WithLabelValues(source).Inc()
}

func ObserveUpload(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}

func ObserveFileEvent(op string) {
	LibraryFileEventsTotal.WithLabelValues(op).Inc()
}
