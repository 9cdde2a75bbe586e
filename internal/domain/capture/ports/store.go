// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
)

// RecordUpdater is the subset of the record store used for location enrichment.
type RecordUpdater interface {
	UpdateAddress(ctx context.Context, id int64, address string) error
	UpdateCoordinates(ctx context.Context, id int64, at model.LatLng) error
}

// RecordStore is the durable store of recording metadata. Every mutation
// checks its affected-row count and reports a mismatch as a
// *model.IntegrityError.
type RecordStore interface {
	RecordUpdater
	Insert(ctx context.Context, rec model.VideoRecord) (int64, error)
	UpdateTitle(ctx context.Context, id int64, title string) error
	MarkSubmitted(ctx context.Context, ids []int64) error
	Delete(ctx context.Context, ids []int64) error
	Get(ctx context.Context, id int64) (model.VideoRecord, error)
	// Query returns records in insertion order. Page is zero-based.
	Query(ctx context.Context, page, pageSize int, submittedOnly bool) ([]model.VideoRecord, error)
	// PendingAddress returns every record whose address is still null.
	PendingAddress(ctx context.Context) ([]model.VideoRecord, error)
	Close() error
}

// Notifier carries user-visible notices and the payload-free
// "new recording available" signal.
type Notifier interface {
	Notify(ctx context.Context, n model.Notice)
	RecordingsChanged(ctx context.Context)
}
