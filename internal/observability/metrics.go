package observability

import (
	"fmt"
	"time"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	WindowsOpened         int            `json:"windows_opened"`
	WindowsReplaced       int            `json:"windows_replaced"`
	ContributionsAccepted int            `json:"contributions_accepted"`
	IngestRejections      map[string]int `json:"ingest_rejections"`
	CyclesCompleted       int            `json:"cycles_completed"`
	CyclesFailed          int            `json:"cycles_failed"`
	DegradedSummaries     int            `json:"degraded_summaries"`
	EventCount            int            `json:"event_count"`
	OldestEvent           *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent           *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		IngestRejections: make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case EventWindowOpened:
			m.WindowsOpened++
		case EventWindowReplaced:
			m.WindowsReplaced++
		case EventIngestAccepted:
			m.ContributionsAccepted++
		case EventIngestRejected:
			if reason, ok := event.Data["reason"].(string); ok {
				m.IngestRejections[reason]++
			}
		case EventCycleCompleted:
			m.CyclesCompleted++
		case EventCycleFailed:
			m.CyclesFailed++
		case EventSummaryDegraded:
			m.DegradedSummaries++
		}
	}

	return m, nil
}
