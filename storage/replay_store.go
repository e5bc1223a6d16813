package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"evote-backend/models"
)

const replayFileName = "replay_records.json"

// ReplayStore persists committed replay records with the same
// write-then-rename discipline as the chain file. Records survive restarts;
// the replay guard reloads them to keep at-most-once voting across crashes.
type ReplayStore struct {
	basePath string
	mu       sync.Mutex
	records  map[string]models.ReplayRecord
}

func NewReplayStore(basePath string) (*ReplayStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	store := &ReplayStore{basePath: basePath, records: make(map[string]models.ReplayRecord)}
	if err := store.loadFromFile(); err != nil {
		return nil, err
	}
	return store, nil
}

// Load returns a copy of the persisted replay records keyed by voter hash.
func (s *ReplayStore) Load() map[string]models.ReplayRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make(map[string]models.ReplayRecord, len(s.records))
	for k, v := range s.records {
		records[k] = v
	}
	return records
}

// Put stores a record and durably writes the set before returning.
func (s *ReplayStore) Put(record models.ReplayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.VoterIDHash] = record
	if err := s.saveToFile(); err != nil {
		delete(s.records, record.VoterIDHash)
		return err
	}
	return nil
}

// Delete removes a record; used when a ledger append fails after the replay
// slot was reserved.
func (s *ReplayStore) Delete(voterIDHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[voterIDHash]
	if !ok {
		return nil
	}
	delete(s.records, voterIDHash)
	if err := s.saveToFile(); err != nil {
		s.records[voterIDHash] = record
		return err
	}
	return nil
}

func (s *ReplayStore) loadFromFile() error {
	path := filepath.Join(s.basePath, replayFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read replay file: %w", err)
	}

	var records []models.ReplayRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal replay records: %w", err)
	}
	for _, record := range records {
		s.records[record.VoterIDHash] = record
	}
	return nil
}

func (s *ReplayStore) saveToFile() error {
	path := filepath.Join(s.basePath, replayFileName)

	records := make([]models.ReplayRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal replay records: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write replay file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save replay file: %w", err)
	}
	return nil
}
