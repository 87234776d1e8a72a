package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const eventsFile = "events.json"

// FileRepository implements Repository using a JSON file in dataDir.
// The whole log is rewritten atomically on every append.
type FileRepository struct {
	dataDir string
	events  []Event
	mutex   sync.RWMutex
}

// eventData represents the structure of data stored in the JSON file
type eventData struct {
	Events []Event `json:"events"`
}

// NewFileRepository creates a file-backed event log, loading any existing events
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{dataDir: dataDir}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return repo, nil
}

func (r *FileRepository) Append(ctx context.Context, events ...Event) ([]Event, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored := stamp(events, uint64(len(r.events)), time.Now().UTC())
	previous := r.events
	r.events = append(append([]Event{}, r.events...), stored...)

	if err := r.save(); err != nil {
		r.events = previous
		return nil, fmt.Errorf("failed to save: %w", err)
	}
	return stored, nil
}

func (r *FileRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []Event
	for _, e := range r.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return limit(out, filter.Limit), nil
}

func (r *FileRepository) LastSequence(ctx context.Context) (uint64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return uint64(len(r.events)), nil
}

func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, eventsFile)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var ed eventData
	if err := json.Unmarshal(data, &ed); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	for i, e := range ed.Events {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("event log out of order at position %d (sequence %d)", i, e.Sequence)
		}
	}
	r.events = ed.Events
	return nil
}

// save writes the event log to file atomically
func (r *FileRepository) save() error {
	jsonData, err := json.MarshalIndent(eventData{Events: r.events}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	tempFile := filepath.Join(r.dataDir, eventsFile+".tmp")
	if err := os.WriteFile(tempFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filepath.Join(r.dataDir, eventsFile)); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
