package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"evote-backend/encryption"
	"evote-backend/kyc"
	"evote-backend/ledger"
	"evote-backend/models"
	"evote-backend/registry"
	"evote-backend/replay"
)

// VoteCoordinator ties session validity, KYC binding, replay protection,
// encryption, and the ledger append into one vote submission.
type VoteCoordinator struct {
	auth       *SessionAuthority
	guard      *replay.Guard
	kyc        *kyc.CredentialStore
	ledger     *ledger.Ledger
	registry   registry.VoterRegistry
	crypto     *encryption.CryptoService
	window     *ElectionWindow
	metrics    *Metrics
	adminToken string
	now        func() time.Time
	log        *slog.Logger
}

type VoteCoordinatorConfig struct {
	Auth       *SessionAuthority
	Guard      *replay.Guard
	KYC        *kyc.CredentialStore
	Ledger     *ledger.Ledger
	Registry   registry.VoterRegistry
	Crypto     *encryption.CryptoService
	Window     *ElectionWindow
	Metrics    *Metrics
	AdminToken string
}

func NewVoteCoordinator(cfg VoteCoordinatorConfig, log *slog.Logger) *VoteCoordinator {
	return &VoteCoordinator{
		auth:       cfg.Auth,
		guard:      cfg.Guard,
		kyc:        cfg.KYC,
		ledger:     cfg.Ledger,
		registry:   cfg.Registry,
		crypto:     cfg.Crypto,
		window:     cfg.Window,
		metrics:    cfg.Metrics,
		adminToken: cfg.AdminToken,
		now:        time.Now,
		log:        log.With("component", "coordinator"),
	}
}

// ProcessVote runs one submission end to end. The replay slot is reserved
// before the ledger append, so an append only happens once exclusivity is
// secured; a failed append releases the slot again.
func (c *VoteCoordinator) ProcessVote(sessionToken, voteChoice, kycImageHash, clientIP string, clientTimestamp int64) (*models.Receipt, error) {
	receipt, err := c.processVote(sessionToken, voteChoice, kycImageHash, clientIP, clientTimestamp)
	c.metrics.Votes.WithLabelValues(voteResult(err)).Inc()
	return receipt, err
}

func (c *VoteCoordinator) processVote(sessionToken, voteChoice, kycImageHash, clientIP string, clientTimestamp int64) (*models.Receipt, error) {
	if !c.window.IsActive() {
		return nil, models.ErrElectionClosed
	}

	session := c.auth.VerifySession(sessionToken)
	if session == nil {
		return nil, models.ErrInvalidSession
	}
	voterIDHash := encryption.HashIdentity(session.VoterID)

	// Fast fail before the expensive work; Commit below re-validates atomically.
	if err := c.guard.CheckEligible(voterIDHash); err != nil {
		return nil, err
	}

	if !c.validChoice(voteChoice) {
		return nil, models.ErrUnknownCandidate
	}

	bound, err := c.kyc.BoundTo(kycImageHash, voterIDHash)
	if err != nil {
		c.log.Error("kyc binding check failed", "error", err)
		return nil, fmt.Errorf("%w: kyc lookup", models.ErrStorage)
	}
	if !bound {
		return nil, models.ErrKYCMismatch
	}

	nonce, err := c.guard.IssueNonce(session.VoterID, clientTimestamp)
	if err != nil {
		return nil, err
	}

	record := models.VoteRecord{
		ID:           uuid.New().String(),
		VoterIDHash:  voterIDHash,
		VoterName:    session.Name,
		VoteChoice:   voteChoice,
		Timestamp:    c.now().Unix(),
		KYCImageHash: kycImageHash,
		ClientIP:     clientIP,
	}
	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vote record: %w", err)
	}
	voteHash := encryption.HashSHA256Hex(plaintext)

	sealed, err := c.crypto.PII.Seal(plaintext)
	if err != nil {
		c.log.Error("vote encryption failed", "error", err)
		return nil, fmt.Errorf("%w: encryption", models.ErrStorage)
	}

	if err := c.guard.Commit(voterIDHash, nonce, clientTimestamp); err != nil {
		return nil, err
	}

	block, err := c.ledger.Append(sealed, voterIDHash, voteHash)
	if err != nil {
		c.guard.Release(voterIDHash)
		c.log.Error("ledger append failed", "voter_id_hash", voterIDHash, "error", err)
		return nil, fmt.Errorf("%w: ledger append", models.ErrStorage)
	}

	// The vote is committed; a registry failure here is logged, not surfaced.
	if err := c.registry.MarkVoted(session.VoterID); err != nil {
		c.log.Error("failed to mark voter in registry", "voter_id_hash", voterIDHash, "error", err)
	}

	receipt := &models.Receipt{
		BlockIndex: block.Index,
		BlockHash:  block.Hash,
		VoteHash:   voteHash,
		Timestamp:  block.Timestamp,
	}
	signature, err := c.crypto.SignDigest(receiptDigest(receipt))
	if err != nil {
		c.log.Error("failed to sign receipt", "error", err)
	} else {
		receipt.Signature = signature
	}

	c.log.Info("vote committed", "block_index", block.Index, "voter_id_hash", voterIDHash)
	return receipt, nil
}

// ProofFor is the public read path for a voter identity hash.
func (c *VoteCoordinator) ProofFor(voterIDHash string) *models.Proof {
	return c.ledger.ProofFor(voterIDHash)
}

// VerifyChain runs a full integrity scan. Violations are reported, never
// auto-repaired: the ledger is evidence.
func (c *VoteCoordinator) VerifyChain() (bool, int, int) {
	valid, firstBad := c.ledger.VerifyIntegrity()
	c.metrics.ChainVerifications.WithLabelValues(fmt.Sprintf("%t", valid)).Inc()
	if !valid {
		c.log.Error("chain integrity violation", "first_bad_index", firstBad)
	}
	return valid, firstBad, c.ledger.Length()
}

// ExportResults decrypts all vote records for the admin export path. It
// refuses to export from a chain that fails verification.
func (c *VoteCoordinator) ExportResults(adminToken string) ([]models.VoteRecord, error) {
	if c.adminToken == "" || adminToken != c.adminToken {
		return nil, models.ErrUnauthorized
	}
	if valid, firstBad := c.ledger.VerifyIntegrity(); !valid {
		return nil, fmt.Errorf("%w: first bad index %d", models.ErrIntegrityViolation, firstBad)
	}
	records, err := c.ledger.Records()
	if err != nil {
		c.log.Error("export failed", "error", err)
		return nil, fmt.Errorf("%w: export", models.ErrStorage)
	}
	return records, nil
}

// VerifyReceipt checks the authority signature on a receipt.
func (c *VoteCoordinator) VerifyReceipt(receipt *models.Receipt) bool {
	if len(receipt.Signature) == 0 {
		return false
	}
	return c.crypto.VerifyDigest(receiptDigest(receipt), receipt.Signature)
}

func (c *VoteCoordinator) validChoice(choice string) bool {
	for _, candidate := range c.registry.Candidates() {
		if candidate == choice {
			return true
		}
	}
	return false
}

func receiptDigest(r *models.Receipt) []byte {
	return encryption.Keccak256([]byte(r.BlockHash), []byte(r.VoteHash))
}

func voteResult(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, models.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, models.ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, models.ErrKYCMismatch):
		return "kyc_mismatch"
	case errors.Is(err, models.ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, models.ErrElectionClosed):
		return "election_closed"
	case errors.Is(err, models.ErrUnknownCandidate):
		return "unknown_candidate"
	default:
		return "error"
	}
}
