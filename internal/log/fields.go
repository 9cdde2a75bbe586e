// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldRecordID      = "record_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldGeneration    = "generation"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTrigger   = "trigger"
	FieldMode      = "mode"
	FieldPID       = "pid"

	// Media fields
	FieldDevice     = "device"
	FieldResolution = "resolution"
	FieldDuration   = "duration"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"

	// Location fields
	FieldAccuracy = "accuracy_m"
	FieldAttempt  = "attempt"
)
