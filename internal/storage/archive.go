// Package storage provides the durable summary archive: an append-only JSONL
// record of every completed aggregation cycle.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/reportbot/reportbot/pkg/models"
)

// ArchiveManager defines the interface for the summary archive. Records are
// immutable once written; there is no update or delete operation.
type ArchiveManager interface {
	// Append persists the record, assigning and returning its ID.
	Append(record models.AggregationRecord) (string, error)
	// ListRecent returns records sorted by CreatedAt descending.
	ListRecent(limit, offset int) ([]models.AggregationRecord, error)
	// GetByID returns the record with the given ID, or nil if absent.
	GetByID(id string) (*models.AggregationRecord, error)
	// Count returns the total number of archived records.
	Count() (int, error)
	Close() error
}

// jsonlArchive implements ArchiveManager using an append-only JSONL file.
type jsonlArchive struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLArchive creates an ArchiveManager backed by a JSONL file at the
// given path.
func NewJSONLArchive(path string) (ArchiveManager, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening summary archive: %w", err)
	}
	return &jsonlArchive{path: path, file: f}, nil
}

func (a *jsonlArchive) Append(record models.AggregationRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	record.ID = uuid.NewString()

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshaling aggregation record: %w", err)
	}
	data = append(data, '\n')

	if _, err := a.file.Write(data); err != nil {
		return "", fmt.Errorf("writing aggregation record: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return "", fmt.Errorf("syncing summary archive: %w", err)
	}
	return record.ID, nil
}

func (a *jsonlArchive) ListRecent(limit, offset int) ([]models.AggregationRecord, error) {
	records, err := a.readAll()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

func (a *jsonlArchive) GetByID(id string) (*models.AggregationRecord, error) {
	records, err := a.readAll()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (a *jsonlArchive) Count() (int, error) {
	records, err := a.readAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (a *jsonlArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("closing summary archive: %w", err)
	}
	return nil
}

// readAll opens the archive file for reading and decodes every line,
// skipping malformed ones.
func (a *jsonlArchive) readAll() ([]models.AggregationRecord, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening summary archive for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []models.AggregationRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record models.AggregationRecord
		if err := json.Unmarshal(line, &record); err != nil {
			continue // skip malformed lines
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning summary archive: %w", err)
	}
	return records, nil
}
