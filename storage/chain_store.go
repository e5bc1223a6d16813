package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"evote-backend/models"
)

const chainFileName = "vote_chain.json"

type chainFile struct {
	Blocks []*models.Block `json:"blocks"`
}

// ChainStore persists the ledger as a single JSON file. Every append rewrites
// the file through a temp-file-then-rename sequence so a crash can never leave
// a half-written chain behind.
type ChainStore struct {
	basePath string
	mu       sync.Mutex
	blocks   []*models.Block
}

func NewChainStore(basePath string) (*ChainStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	store := &ChainStore{basePath: basePath}
	if err := store.loadFromFile(); err != nil {
		return nil, err
	}
	return store, nil
}

// Load returns a copy of the persisted chain.
func (s *ChainStore) Load() []*models.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make([]*models.Block, len(s.blocks))
	copy(blocks, s.blocks)
	return blocks
}

// Append adds a block and durably writes the updated chain before returning.
func (s *ChainStore) Append(block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks = append(s.blocks, block)
	if err := s.saveToFile(); err != nil {
		// Roll the in-memory view back so it never claims more than the file holds.
		s.blocks = s.blocks[:len(s.blocks)-1]
		return err
	}
	return nil
}

func (s *ChainStore) loadFromFile() error {
	path := filepath.Join(s.basePath, chainFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.blocks = make([]*models.Block, 0)
			return nil
		}
		return fmt.Errorf("failed to read chain file: %w", err)
	}

	var cf chainFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to unmarshal chain: %w", err)
	}
	s.blocks = cf.Blocks
	return nil
}

func (s *ChainStore) saveToFile() error {
	path := filepath.Join(s.basePath, chainFileName)

	data, err := json.MarshalIndent(chainFile{Blocks: s.blocks}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write chain file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save chain file: %w", err)
	}
	return nil
}
