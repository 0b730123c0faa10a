// Package pubsub provides a generic publish/subscribe event system used to
// stream migration progress to the operator.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	RunStarted       EventType = "run_started"
	AnalysisStarted  EventType = "analysis_started"
	AnalysisMigrated EventType = "analysis_migrated"
	AnalysisSkipped  EventType = "analysis_skipped"
	AnalysisFailed   EventType = "analysis_failed"
	JobSkipped       EventType = "job_skipped"
	FilesDetached    EventType = "files_detached"
	RunFinished      EventType = "run_finished"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Listen calls fn for every event on ch until ch is closed or ctx is done.
func Listen[T any](ctx context.Context, ch <-chan Event[T], fn func(Event[T])) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fn(event)
		}
	}
}
