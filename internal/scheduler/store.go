package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// scheduleFile is the on-disk shape of schedules.yaml.
type scheduleFile struct {
	Schedules []*ScheduleEntry `yaml:"schedules"`
}

// ScheduleStore persists schedule entries in a single YAML file, rewritten
// atomically on every change.
type ScheduleStore struct {
	mu   sync.Mutex
	path string
}

// NewScheduleStore creates a ScheduleStore backed by the given file.
func NewScheduleStore(path string) *ScheduleStore {
	return &ScheduleStore{path: path}
}

// Load reads all entries. A missing file yields an empty list.
func (s *ScheduleStore) Load() ([]*ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Add persists a new entry, assigning an ID when absent.
func (s *ScheduleStore) Add(entry *ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = GenerateScheduleID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	return s.save(append(entries, entry))
}

// Update rewrites the entry with the same ID.
func (s *ScheduleStore) Update(entry *ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	for i, e := range entries {
		if e.ID == entry.ID {
			entries[i] = entry
			return s.save(entries)
		}
	}
	return fmt.Errorf("schedule not found: %s", entry.ID)
}

// Remove deletes the entry with the given ID.
func (s *ScheduleStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return fmt.Errorf("schedule not found: %s", id)
	}
	return s.save(kept)
}

func (s *ScheduleStore) load() ([]*ScheduleEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schedules: %w", err)
	}

	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schedules: %w", err)
	}
	return f.Schedules, nil
}

func (s *ScheduleStore) save(entries []*ScheduleEntry) error {
	data, err := yaml.Marshal(scheduleFile{Schedules: entries})
	if err != nil {
		return fmt.Errorf("marshal schedules: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create schedules dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write schedules tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename schedules: %w", err)
	}
	return nil
}
