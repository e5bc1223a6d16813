// Package replay enforces at-most-one committed vote per voter identity and
// rejects replayed or duplicate submissions under concurrent requests.
package replay

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"evote-backend/encryption"
	"evote-backend/models"
	"evote-backend/storage"
)

// DefaultSkewWindow bounds how far a client timestamp may drift from server
// time before a submission is rejected as stale.
const DefaultSkewWindow = 5 * time.Minute

// Guard tracks committed replay records. CheckEligible is advisory only;
// Commit is the single authoritative serialization point. When two
// submissions race past the check, exactly one Commit succeeds.
type Guard struct {
	mu      sync.Mutex
	records map[string]models.ReplayRecord
	store   *storage.ReplayStore
	skew    time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func NewGuard(store *storage.ReplayStore, skew time.Duration, log *slog.Logger) *Guard {
	if skew <= 0 {
		skew = DefaultSkewWindow
	}
	return &Guard{
		records: store.Load(),
		store:   store,
		skew:    skew,
		now:     time.Now,
		log:     log.With("component", "replay"),
	}
}

// CheckEligible reports whether the voter may still vote. The answer can be
// invalidated by a concurrent submission, so callers must still Commit.
func (g *Guard) CheckEligible(voterIDHash string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[voterIDHash]; ok {
		return models.ErrDuplicateVote
	}
	return nil
}

// IssueNonce derives a single-use submission token bound to the client
// timestamp. Timestamps outside the skew window are rejected as stale.
func (g *Guard) IssueNonce(voterID string, clientTimestamp int64) (string, error) {
	drift := g.now().Unix() - clientTimestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(g.skew.Seconds()) {
		return "", models.ErrStaleTimestamp
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate nonce salt: %w", err)
	}
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(clientTimestamp))

	return hex.EncodeToString(encryption.Keccak256([]byte(voterID), ts, salt)), nil
}

// Commit atomically inserts the replay record unless one already exists for
// the voter, persisting it before acknowledging.
func (g *Guard) Commit(voterIDHash, nonce string, timestamp int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[voterIDHash]; ok {
		return models.ErrDuplicateVote
	}

	record := models.ReplayRecord{VoterIDHash: voterIDHash, Nonce: nonce, Timestamp: timestamp}
	if err := g.store.Put(record); err != nil {
		return fmt.Errorf("failed to persist replay record: %w", err)
	}
	g.records[voterIDHash] = record
	return nil
}

// Release frees a reserved replay slot after a failed ledger append so the
// voter is not locked out by a vote that was never recorded.
func (g *Guard) Release(voterIDHash string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[voterIDHash]; !ok {
		return
	}
	if err := g.store.Delete(voterIDHash); err != nil {
		g.log.Error("failed to release replay slot", "voter_id_hash", voterIDHash, "error", err)
		return
	}
	delete(g.records, voterIDHash)
	g.log.Warn("released replay slot after failed append", "voter_id_hash", voterIDHash)
}
