// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"

	"github.com/ManuGH/dashcam/internal/bus"
	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/ManuGH/dashcam/internal/domain/capture/ports"
	"github.com/ManuGH/dashcam/internal/log"
)

// LossyPublisher publishes without blocking the caller.
type LossyPublisher interface {
	PublishLossy(topic string, msg bus.Message)
}

// BusNotifier logs notices and fans them out on the bus. It never blocks
// the run loop; slow listeners lose notices, not recordings.
type BusNotifier struct {
	Bus LossyPublisher
}

var _ ports.Notifier = (*BusNotifier)(nil)

func (n *BusNotifier) Notify(ctx context.Context, notice model.Notice) {
	logger := log.WithComponentFromContext(ctx, "notice")
	ev := logger.Info()
	if notice.Kind == model.NoticeCaptureFailed {
		ev = logger.Warn().Err(notice.Err)
	}
	if notice.RecordID != 0 {
		ev = ev.Int64(log.FieldRecordID, notice.RecordID)
	}
	ev.Str("kind", string(notice.Kind)).Msg(notice.Message)

	if n.Bus != nil {
		n.Bus.PublishLossy(bus.TopicNotices, notice)
	}
}

func (n *BusNotifier) RecordingsChanged(context.Context) {
	if n.Bus != nil {
		n.Bus.PublishLossy(bus.TopicRecordingsChanged, struct{}{})
	}
}
