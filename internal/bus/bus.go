// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the in-process publish/subscribe fabric used to fan out
// domain signals (new recording available, user notices) to listeners.
package bus

import "context"

// Well-known topics.
const (
	// TopicRecordingsChanged carries a payload-free signal; listeners re-query the store.
	TopicRecordingsChanged = "recordings.changed"
	// TopicNotices carries model.Notice values for user-visible feedback.
	TopicNotices = "capture.notices"
)

// Message is an opaque bus payload.
type Message = any

// Bus publishes messages to topic subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Subscriber receives messages for one topic until closed.
type Subscriber interface {
	C() <-chan Message
	Close() error
}
