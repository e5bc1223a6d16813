// Package ledger implements the tamper-evidence ledger: an append-only
// hash-linked chain of encrypted vote records with proof lookup and
// full-chain integrity verification.
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"evote-backend/encryption"
	"evote-backend/models"
	"evote-backend/storage"
)

type proofEntry struct {
	blockIndex uint64
	blockHash  string
	voteHash   string
}

// Ledger owns the chain exclusively. Every append is persisted before the new
// block is acknowledged to the caller; proof lookups run against an in-memory
// index rebuilt from the encrypted payloads at load time.
type Ledger struct {
	mu     sync.RWMutex
	blocks []*models.Block
	index  map[string]proofEntry
	store  *storage.ChainStore
	cipher *encryption.Cipher
	log    *slog.Logger
}

// New loads the persisted chain, creating and persisting a genesis block for
// a fresh store, and rebuilds the proof index.
func New(store *storage.ChainStore, cipher *encryption.Cipher, log *slog.Logger) (*Ledger, error) {
	l := &Ledger{
		blocks: store.Load(),
		index:  make(map[string]proofEntry),
		store:  store,
		cipher: cipher,
		log:    log.With("component", "ledger"),
	}

	if len(l.blocks) == 0 {
		genesis := models.NewGenesisBlock()
		if err := store.Append(genesis); err != nil {
			return nil, fmt.Errorf("failed to persist genesis block: %w", err)
		}
		l.blocks = append(l.blocks, genesis)
		l.log.Info("created genesis block", "hash", genesis.Hash)
		return l, nil
	}

	if err := l.rebuildIndex(); err != nil {
		return nil, err
	}
	l.log.Info("loaded chain", "blocks", len(l.blocks))
	return l, nil
}

func (l *Ledger) rebuildIndex() error {
	for _, block := range l.blocks[1:] {
		record, err := l.decryptRecord(block)
		if err != nil {
			return fmt.Errorf("block %d: %w", block.Index, err)
		}
		plaintext, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("block %d: failed to re-serialize record: %w", block.Index, err)
		}
		l.index[record.VoterIDHash] = proofEntry{
			blockIndex: block.Index,
			blockHash:  block.Hash,
			voteHash:   encryption.HashSHA256Hex(plaintext),
		}
	}
	return nil
}

// Append links a new block to the current tail, persists the chain, and only
// then returns the block. voterIDHash and voteHash feed the proof index.
func (l *Ledger) Append(encryptedPayload []byte, voterIDHash, voteHash string) (*models.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail := l.blocks[len(l.blocks)-1]
	block := models.NewBlock(tail.Index+1, encryptedPayload, tail.Hash)

	if err := l.store.Append(block); err != nil {
		return nil, fmt.Errorf("failed to persist block: %w", err)
	}

	l.blocks = append(l.blocks, block)
	l.index[voterIDHash] = proofEntry{
		blockIndex: block.Index,
		blockHash:  block.Hash,
		voteHash:   voteHash,
	}
	l.log.Info("appended block", "index", block.Index, "hash", block.Hash)
	return block, nil
}

// ProofFor returns the proof for a voter identity hash, or nil if that voter
// never committed a vote.
func (l *Ledger) ProofFor(voterIDHash string) *models.Proof {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.index[voterIDHash]
	if !ok {
		return nil
	}
	return &models.Proof{
		BlockIndex: entry.blockIndex,
		BlockHash:  entry.blockHash,
		VoteHash:   entry.voteHash,
	}
}

// VerifyIntegrity walks the whole chain from genesis, recomputing each
// block's hash and checking the previous-hash linkage. It returns the index
// of the first block failing either check, or (true, -1) when the chain is
// intact. A full scan is intentional: verification is a rare, explicit audit
// operation, not a hot path.
func (l *Ledger) VerifyIntegrity() (bool, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, block := range l.blocks {
		if !block.Validate() {
			return false, i
		}
		if i == 0 {
			continue
		}
		prev := l.blocks[i-1]
		if block.PrevHash != prev.Hash {
			return false, i
		}
		if block.Index != prev.Index+1 {
			return false, i
		}
	}
	return true, -1
}

// Length returns the chain length including genesis.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Blocks returns a copy of the chain for read-only inspection.
func (l *Ledger) Blocks() []*models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	blocks := make([]*models.Block, len(l.blocks))
	copy(blocks, l.blocks)
	return blocks
}

// Records decrypts every vote record in the chain. Callers are responsible
// for authorization; the ledger itself only enforces confidentiality at rest.
func (l *Ledger) Records() ([]models.VoteRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]models.VoteRecord, 0, len(l.blocks)-1)
	for _, block := range l.blocks[1:] {
		record, err := l.decryptRecord(block)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Index, err)
		}
		records = append(records, *record)
	}
	return records, nil
}

func (l *Ledger) decryptRecord(block *models.Block) (*models.VoteRecord, error) {
	plaintext, err := l.cipher.Open(block.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	var record models.VoteRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vote record: %w", err)
	}
	return &record, nil
}
