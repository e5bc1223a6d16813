// Package registry is the boundary to the official voter roll. The core only
// needs point lookups, a mark-as-voted call, and the candidate list.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"evote-backend/models"
)

// VoterRecord is the registry's view of a registered voter. DOB is carried as
// an ISO date string because that is how clients submit it.
type VoterRecord struct {
	VoterID  string `json:"voter_id"`
	Name     string `json:"name"`
	DOB      string `json:"dob"`
	Email    string `json:"email"`
	HasVoted bool   `json:"has_voted"`
}

// VoterRegistry is the external registry collaborator.
type VoterRegistry interface {
	Lookup(voterID string) (*VoterRecord, error)
	MarkVoted(voterID string) error
	Candidates() []string
}

type registryFile struct {
	Voters     []*VoterRecord `json:"voters"`
	Candidates []string       `json:"candidates"`
}

// FileRegistry is a JSON-file-backed registry implementation used for
// development and tests. Mutations are written back to the file.
type FileRegistry struct {
	path       string
	mu         sync.RWMutex
	voters     map[string]*VoterRecord
	candidates []string
}

// NewFileRegistry loads the registry file, seeding default test data when the
// file does not exist yet.
func NewFileRegistry(path string) (*FileRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	r := &FileRegistry{path: path, voters: make(map[string]*VoterRecord)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := r.seedDefaults(); err != nil {
				return nil, err
			}
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	for _, voter := range rf.Voters {
		r.voters[voter.VoterID] = voter
	}
	r.candidates = rf.Candidates
	return r, nil
}

func (r *FileRegistry) Lookup(voterID string) (*VoterRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, ok := r.voters[voterID]
	if !ok {
		return nil, fmt.Errorf("voter %q: %w", voterID, models.ErrCredentialMismatch)
	}
	copied := *voter
	return &copied, nil
}

func (r *FileRegistry) MarkVoted(voterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	voter, ok := r.voters[voterID]
	if !ok {
		return fmt.Errorf("voter %q not found in registry", voterID)
	}
	voter.HasVoted = true
	return r.saveLocked()
}

func (r *FileRegistry) Candidates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]string, len(r.candidates))
	copy(candidates, r.candidates)
	return candidates
}

func (r *FileRegistry) seedDefaults() error {
	r.voters = map[string]*VoterRecord{
		"V001": {VoterID: "V001", Name: "Jonas Jonaitis", DOB: "1990-01-01", Email: "jonas@example.com"},
		"V002": {VoterID: "V002", Name: "Ona Onaite", DOB: "1985-06-15", Email: "ona@example.com"},
		"V003": {VoterID: "V003", Name: "Petras Petraitis", DOB: "1978-11-30", Email: "petras@example.com"},
	}
	r.candidates = []string{"CandidateA", "CandidateB", "CandidateC"}
	return r.saveLocked()
}

func (r *FileRegistry) saveLocked() error {
	rf := registryFile{Candidates: r.candidates}
	for _, voter := range r.voters {
		rf.Voters = append(rf.Voters, voter)
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tempPath := r.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	if err := os.Rename(tempPath, r.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save registry file: %w", err)
	}
	return nil
}
