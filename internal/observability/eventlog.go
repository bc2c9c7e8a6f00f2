// Package observability provides the append-only event log and the metrics
// derived from it. Ingestion rejections are invisible to end users by design,
// so the event log is the only place they can be seen.
package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Level is the severity of an event.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// EventType names one observable report-bot event.
type EventType string

const (
	EventWindowOpened             EventType = "window.opened"
	EventWindowReplaced           EventType = "window.replaced"
	EventIngestAccepted           EventType = "ingest.accepted"
	EventIngestRejected           EventType = "ingest.rejected"
	EventCycleCompleted           EventType = "cycle.completed"
	EventCycleFailed              EventType = "cycle.failed"
	EventCycleDroppedUnconfigured EventType = "cycle.dropped_unconfigured"
	EventSummaryDegraded          EventType = "summary.degraded"
	EventPublishFailed            EventType = "publish.failed"
	EventConfigReloaded           EventType = "config.reloaded"
)

// Event represents a single observable event in the system.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   Level          `json:"level"`
	Type    EventType      `json:"type"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewEvent builds a timestamped event at the level conventional for its type:
// cycle and publish failures are errors, losses and degradations warn, the
// rest inform.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		Time:    time.Now().UTC(),
		Level:   levelFor(eventType),
		Type:    eventType,
		Message: string(eventType),
		Data:    data,
	}
}

func levelFor(t EventType) Level {
	switch t {
	case EventCycleFailed, EventPublishFailed:
		return LevelError
	case EventWindowReplaced, EventIngestRejected, EventSummaryDegraded, EventCycleDroppedUnconfigured:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// EventFilter specifies criteria for reading events.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  EventType
	Level Level
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using an append-only JSONL file.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog creates a new EventLog backed by a JSONL file at the given path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
	}, nil
}

// Write appends a JSON-encoded event followed by a newline to the log file.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read opens the log file for reading, scans line by line, decodes each
// event, and returns those matching the given filter.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // skip malformed lines
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	return true
}
