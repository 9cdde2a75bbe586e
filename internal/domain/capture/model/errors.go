// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrPipelineConfig    = errors.New("pipeline configuration failed")
	ErrPipelineIdle      = errors.New("pipeline idle")
	ErrPipelineBusy      = errors.New("pipeline already writing")
	ErrPersistence       = errors.New("persistence failure")
	ErrNotFound          = errors.New("record not found")
	ErrGeocodeFailed     = errors.New("reverse geocode failed")
)

// CameraReason details why a camera could not be acquired.
type CameraReason string

const (
	CameraNoDevice         CameraReason = "no_device"
	CameraPermissionDenied CameraReason = "permission_denied"
	CameraTimeout          CameraReason = "timeout"
	CameraBusy             CameraReason = "busy"
	CameraOpenFailed       CameraReason = "open_failed"
)

// CameraError is the typed acquisition failure. It matches ErrCameraUnavailable.
type CameraError struct {
	Reason CameraReason
	Err    error
}

func (e *CameraError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("camera unavailable (%s)", e.Reason)
}

func (e *CameraError) Is(target error) bool { return target == ErrCameraUnavailable }

func (e *CameraError) Unwrap() error { return e.Err }

// IntegrityError reports a mutation that touched an unexpected number of rows.
// It matches ErrPersistence.
type IntegrityError struct {
	Op       string
	Expected int64
	Actual   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: data integrity fault: expected %d affected rows, got %d", e.Op, e.Expected, e.Actual)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrPersistence }

// CheckAffected returns an IntegrityError when actual != expected.
func CheckAffected(op string, expected, actual int64) error {
	if expected != actual {
		return &IntegrityError{Op: op, Expected: expected, Actual: actual}
	}
	return nil
}
