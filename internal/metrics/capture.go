// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CaptureTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_capture_transitions_total",
		Help: "Capture state machine transitions by source and target state",
	}, []string{"from", "to"})

	CaptureStrayCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_capture_stray_callbacks_total",
		Help: "Hardware completions discarded because their generation no longer matched",
	}, []string{"kind"})

	CaptureTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_capture_triggers_total",
		Help: "Triggers handled by the capture run loop by outcome (applied, deferred, ignored, suppressed)",
	}, []string{"trigger", "outcome"})

	CameraAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_camera_acquire_total",
		Help: "Camera acquisition attempts by outcome",
	}, []string{"outcome"})

	CameraHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashcam_camera_held",
		Help: "1 while the camera handle is held, 0 otherwise",
	})

	RecordingsPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_recordings_persisted_total",
		Help: "Finalized recordings written to the record store by capture mode",
	}, []string{"mode"})

	SegmentRotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_segment_rotations_total",
		Help: "Continuous capture segment rotations by outcome",
	}, []string{"outcome"})

	SegmentsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashcam_segments_deleted_total",
		Help: "Rotated continuous capture segments removed from disk",
	})

	LocationFixesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_location_fixes_total",
		Help: "Location fixes by verdict (accepted, rejected, forced, stray)",
	}, []string{"verdict"})

	GeocodeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashcam_geocode_requests_total",
		Help: "Reverse geocode lookups by outcome",
	}, []string{"outcome"})
)

// ObserveTransition records a capture state transition.
func ObserveTransition(from, to string) {
	CaptureTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveTrigger records how the run loop treated a trigger.
func ObserveTrigger(trigger, outcome string) {
	if trigger == "" {
		trigger = "unknown"
	}
	CaptureTriggersTotal.WithLabelValues(trigger, outcome).Inc()
}

// IncStrayCallback records a discarded stale completion.
func IncStrayCallback(kind string) {
	CaptureStrayCallbacksTotal.WithLabelValues(kind).Inc()
}

// ObserveCameraAcquire records the outcome of one acquisition attempt.
func ObserveCameraAcquire(outcome string) {
	CameraAcquireTotal.WithLabelValues(outcome).Inc()
}

// IncRecordingPersisted records one persisted recording.
func IncRecordingPersisted(mode string) {
	RecordingsPersistedTotal.WithLabelValues(mode).Inc()
}

// ObserveRotation records one rotation attempt.
func ObserveRotation(outcome string) {
	SegmentRotationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFix records the accuracy gate verdict for one fix.
func ObserveFix(verdict string) {
	LocationFixesTotal.WithLabelValues(verdict).Inc()
}

// ObserveGeocode records one reverse geocode outcome.
func ObserveGeocode(outcome string) {
	GeocodeRequestsTotal.WithLabelValues(outcome).Inc()
}
