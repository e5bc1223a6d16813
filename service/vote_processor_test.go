package service

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"evote-backend/encryption"
	"evote-backend/kyc"
	"evote-backend/ledger"
	"evote-backend/models"
	"evote-backend/registry"
	"evote-backend/replay"
	"evote-backend/storage"
)

const testAdminToken = "test-admin-token"

type CoordinatorSuite struct {
	suite.Suite
	registry    *registry.FileRegistry
	notifier    *captureNotifier
	auth        *SessionAuthority
	kyc         *kyc.CredentialStore
	ledger      *ledger.Ledger
	window      *ElectionWindow
	coordinator *VoteCoordinator
}

func (s *CoordinatorSuite) SetupTest() {
	dir := s.T().TempDir()
	log := discardLogger()

	keys, err := encryption.LoadOrGenerateKeys(dir)
	s.Require().NoError(err)
	cryptoService, err := encryption.NewCryptoService(keys)
	s.Require().NoError(err)

	chainStore, err := storage.NewChainStore(dir)
	s.Require().NoError(err)
	replayStore, err := storage.NewReplayStore(dir)
	s.Require().NoError(err)

	s.ledger, err = ledger.New(chainStore, cryptoService.PII, log)
	s.Require().NoError(err)

	s.kyc, err = kyc.NewCredentialStore(filepath.Join(dir, "kyc"), cryptoService.PII, log)
	s.Require().NoError(err)

	s.registry, err = registry.NewFileRegistry(filepath.Join(dir, "voter_registry.json"))
	s.Require().NoError(err)

	s.notifier = newCaptureNotifier()
	otp := NewOTPService(s.notifier, log)
	s.auth = NewSessionAuthority(s.registry, otp, cryptoService.Session, log)
	s.window = NewElectionWindow(24 * time.Hour)

	s.coordinator = NewVoteCoordinator(VoteCoordinatorConfig{
		Auth:       s.auth,
		Guard:      replay.NewGuard(replayStore, replay.DefaultSkewWindow, log),
		KYC:        s.kyc,
		Ledger:     s.ledger,
		Registry:   s.registry,
		Crypto:     cryptoService,
		Window:     s.window,
		Metrics:    NewMetrics(prometheus.NewRegistry()),
		AdminToken: testAdminToken,
	}, log)
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

// loginAndUpload completes the two-phase login for a seeded voter and stores
// a KYC image, returning the session token and image hash.
func (s *CoordinatorSuite) loginAndUpload(voterID, dob, email string, image []byte) (string, string) {
	tempToken, _, err := s.auth.BeginLogin(voterID, dob, email)
	s.Require().NoError(err)
	sessionToken, _, err := s.auth.CompleteLogin(tempToken, s.notifier.lastCode(email))
	s.Require().NoError(err)

	imageHash, _, err := s.kyc.Store(image, voterID, time.Now())
	s.Require().NoError(err)
	return sessionToken, imageHash
}

func (s *CoordinatorSuite) TestProcessVoteHappyPath() {
	sessionToken, imageHash := s.loginAndUpload("V001", "1990-01-01", "jonas@example.com", []byte("jonas id card"))

	receipt, err := s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
	s.Require().NoError(err)
	s.Require().NotNil(receipt)
	s.NotEmpty(receipt.BlockHash)
	s.NotEmpty(receipt.VoteHash)
	s.Equal(uint64(1), receipt.BlockIndex)
	s.True(s.coordinator.VerifyReceipt(receipt))

	s.Equal(2, s.ledger.Length())
	valid, firstBad := s.ledger.VerifyIntegrity()
	s.True(valid)
	s.Equal(-1, firstBad)

	proof := s.coordinator.ProofFor(encryption.HashIdentity("V001"))
	s.Require().NotNil(proof)
	s.Equal(receipt.BlockHash, proof.BlockHash)
	s.Equal(receipt.VoteHash, proof.VoteHash)

	voter, err := s.registry.Lookup("V001")
	s.Require().NoError(err)
	s.True(voter.HasVoted)
}

func (s *CoordinatorSuite) TestProcessVoteRejectsDuplicate() {
	sessionToken, imageHash := s.loginAndUpload("V001", "1990-01-01", "jonas@example.com", []byte("jonas id card"))

	_, err := s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
	s.Require().NoError(err)

	_, err = s.coordinator.ProcessVote(sessionToken, "CandidateB", imageHash, "203.0.113.7", time.Now().Unix())
	s.ErrorIs(err, models.ErrDuplicateVote)

	// The ledger holds exactly one vote.
	s.Equal(2, s.ledger.Length())
}

func (s *CoordinatorSuite) TestProcessVoteValidation() {
	sessionToken, imageHash := s.loginAndUpload("V001", "1990-01-01", "jonas@example.com", []byte("jonas id card"))

	s.Run("rejects an invalid session", func() {
		_, err := s.coordinator.ProcessVote("bogus", "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
		s.ErrorIs(err, models.ErrInvalidSession)
	})

	s.Run("rejects an unknown candidate", func() {
		_, err := s.coordinator.ProcessVote(sessionToken, "Nobody", imageHash, "203.0.113.7", time.Now().Unix())
		s.ErrorIs(err, models.ErrUnknownCandidate)
	})

	s.Run("rejects someone else's KYC upload", func() {
		otherHash, _, err := s.kyc.Store([]byte("ona id card"), "V002", time.Now())
		s.Require().NoError(err)

		_, err = s.coordinator.ProcessVote(sessionToken, "CandidateA", otherHash, "203.0.113.7", time.Now().Unix())
		s.ErrorIs(err, models.ErrKYCMismatch)
	})

	s.Run("rejects a stale client timestamp", func() {
		_, err := s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Add(-time.Hour).Unix())
		s.ErrorIs(err, models.ErrStaleTimestamp)
	})

	s.Run("rejects votes outside the election window", func() {
		s.window.End()
		_, err := s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
		s.ErrorIs(err, models.ErrElectionClosed)
	})

	// No rejected submission reached the ledger.
	s.Equal(1, s.ledger.Length())
}

// TestConcurrentSubmissions races two submissions for one voter; exactly one
// is committed and the other observes a duplicate.
func (s *CoordinatorSuite) TestConcurrentSubmissions() {
	sessionToken, imageHash := s.loginAndUpload("V001", "1990-01-01", "jonas@example.com", []byte("jonas id card"))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range results {
		if err == nil {
			committed++
		} else {
			s.Require().True(errors.Is(err, models.ErrDuplicateVote))
		}
	}
	s.Equal(1, committed)
	s.Equal(2, s.ledger.Length())
}

func (s *CoordinatorSuite) TestExportResults() {
	sessionToken, imageHash := s.loginAndUpload("V001", "1990-01-01", "jonas@example.com", []byte("jonas id card"))
	_, err := s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
	s.Require().NoError(err)

	s.Run("rejects a wrong admin token", func() {
		_, err := s.coordinator.ExportResults("wrong")
		s.ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("decrypts records for the admin", func() {
		records, err := s.coordinator.ExportResults(testAdminToken)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal("CandidateA", records[0].VoteChoice)
		s.Equal(encryption.HashIdentity("V001"), records[0].VoterIDHash)
		s.Equal(imageHash, records[0].KYCImageHash)
	})
}

func (s *CoordinatorSuite) TestVerifyChainReportsTampering() {
	sessionToken, imageHash := s.loginAndUpload("V001", "1990-01-01", "jonas@example.com", []byte("jonas id card"))
	_, err := s.coordinator.ProcessVote(sessionToken, "CandidateA", imageHash, "203.0.113.7", time.Now().Unix())
	s.Require().NoError(err)

	valid, _, total := s.coordinator.VerifyChain()
	s.True(valid)
	s.Equal(2, total)

	s.ledger.Blocks()[1].Payload = []byte("tampered")

	valid, firstBad, _ := s.coordinator.VerifyChain()
	s.False(valid)
	s.Equal(1, firstBad)

	// A tampered chain must not be exportable.
	_, err = s.coordinator.ExportResults(testAdminToken)
	s.ErrorIs(err, models.ErrIntegrityViolation)
}
