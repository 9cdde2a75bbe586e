// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"path/filepath"
	"time"
)

// TitleLayout is the default human-readable title of a new recording.
const TitleLayout = "2006/01/02 - 15:04"

// RecordingSession is one output file currently being written.
type RecordingSession struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	StartedAt time.Time `json:"started_at"`
	Mode      Mode      `json:"mode"`
}

// FileName is the base name stored on the persisted record.
func (s RecordingSession) FileName() string {
	return filepath.Base(s.FilePath)
}

// Segment is a finalized output file handed back by the pipeline.
type Segment struct {
	Session    RecordingSession
	Duration   time.Duration
	FinishedAt time.Time
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the coordinate placeholder shown until an address is known.
func (c LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Fix is a single position reading from the location subsystem.
type Fix struct {
	Coordinates LatLng
	AccuracyM   float64
	At          time.Time
}

// Address is a reverse-geocoded location label.
type Address struct {
	Street   string
	Locality string
}

func (a Address) String() string {
	return a.Street + ", " + a.Locality
}

// VideoRecord is the persisted metadata of one finished recording.
type VideoRecord struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	FileName        string    `json:"file_name"`
	DurationSeconds int       `json:"duration_seconds"`
	Address         *string   `json:"address,omitempty"`
	Coordinates     *LatLng   `json:"coordinates,omitempty"`
	Submitted       bool      `json:"submitted"`
	CreatedAt       time.Time `json:"created_at"`
}

// DurationSeconds rounds a measured container duration to whole seconds.
func DurationSeconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}

// NoticeKind classifies user-visible feedback.
type NoticeKind string

const (
	NoticeCaptureStarted     NoticeKind = "capture_started"
	NoticeCaptureSaved       NoticeKind = "capture_saved"
	NoticeContinuousEnabled  NoticeKind = "continuous_enabled"
	NoticeContinuousDisabled NoticeKind = "continuous_disabled"
	NoticeCaptureFailed      NoticeKind = "capture_failed"
)

// Notice is a user-visible message emitted by the orchestrator.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Message  string     `json:"message"`
	RecordID int64      `json:"record_id,omitempty"`
	Err      error      `json:"-"`
}
