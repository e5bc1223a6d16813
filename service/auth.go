package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"evote-backend/encryption"
	"evote-backend/models"
	"evote-backend/registry"
)

const (
	pendingTTL = 10 * time.Minute
	sessionTTL = time.Hour
)

// SessionAuthority runs the two-phase login: credential check against the
// registry followed by OTP-gated session issuance. Pending verifications and
// sessions are held only as sealed JSON, so voter PII never sits in plaintext
// process memory between requests.
type SessionAuthority struct {
	mu       sync.Mutex
	pending  map[string][]byte
	sessions map[string][]byte
	cipher   *encryption.Cipher
	registry registry.VoterRegistry
	otp      *OTPService
	now      func() time.Time
	log      *slog.Logger
}

func NewSessionAuthority(reg registry.VoterRegistry, otp *OTPService, cipher *encryption.Cipher, log *slog.Logger) *SessionAuthority {
	return &SessionAuthority{
		pending:  make(map[string][]byte),
		sessions: make(map[string][]byte),
		cipher:   cipher,
		registry: reg,
		otp:      otp,
		now:      time.Now,
		log:      log.With("component", "auth"),
	}
}

// BeginLogin validates the submitted credentials against the registry and, on
// success, sends an OTP and returns a one-time temp token for step two.
func (a *SessionAuthority) BeginLogin(voterID, dob, email string) (string, *registry.VoterRecord, error) {
	voter, err := a.registry.Lookup(voterID)
	if err != nil {
		return "", nil, models.ErrCredentialMismatch
	}
	if voter.DOB != dob || voter.Email != email {
		return "", nil, models.ErrCredentialMismatch
	}
	if voter.HasVoted {
		return "", nil, models.ErrAlreadyVoted
	}

	if err := a.otp.Send(voter.Email, voter.Name); err != nil {
		return "", nil, err
	}

	tempToken, err := encryption.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	now := a.now()
	sealed, err := a.seal(models.PendingVerification{
		TempToken: tempToken,
		VoterID:   voter.VoterID,
		Name:      voter.Name,
		Email:     voter.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(pendingTTL),
	})
	if err != nil {
		return "", nil, err
	}

	a.mu.Lock()
	a.pending[tempToken] = sealed
	a.mu.Unlock()

	a.log.Info("login step one passed", "voter_id_hash", encryption.HashIdentity(voter.VoterID))
	return tempToken, voter, nil
}

// ResendOTP re-sends the code for an outstanding pending verification,
// subject to the same rate limit as the first send.
func (a *SessionAuthority) ResendOTP(tempToken string) error {
	pending, err := a.lookupPending(tempToken)
	if err != nil {
		return err
	}
	return a.otp.Send(pending.Email, pending.Name)
}

// CompleteLogin consumes the temp token once the OTP checks out and issues a
// session. A wrong-but-retryable OTP keeps the pending verification alive;
// expiry and attempt exhaustion consume it.
func (a *SessionAuthority) CompleteLogin(tempToken, otpCode string) (string, *models.Session, error) {
	pending, err := a.lookupPending(tempToken)
	if err != nil {
		return "", nil, err
	}

	if err := a.otp.Verify(pending.Email, otpCode); err != nil {
		if errors.Is(err, models.ErrOTPExpired) || errors.Is(err, models.ErrOTPAttemptsExceeded) {
			a.deletePending(tempToken)
		}
		return "", nil, err
	}

	a.deletePending(tempToken)

	sessionToken, err := encryption.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	now := a.now()
	session := models.Session{
		Token:     sessionToken,
		VoterID:   pending.VoterID,
		Name:      pending.Name,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}
	sealed, err := a.seal(session)
	if err != nil {
		return "", nil, err
	}

	a.mu.Lock()
	a.sessions[sessionToken] = sealed
	a.mu.Unlock()

	a.log.Info("session issued", "voter_id_hash", encryption.HashIdentity(session.VoterID))
	return sessionToken, &session, nil
}

// VerifySession returns the session for a token, or nil when the token is
// unknown or expired. Expired entries are evicted on read.
func (a *SessionAuthority) VerifySession(sessionToken string) *models.Session {
	a.mu.Lock()
	sealed, ok := a.sessions[sessionToken]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	var session models.Session
	if err := a.open(sealed, &session); err != nil {
		a.log.Error("failed to decrypt session", "error", err)
		return nil
	}

	if session.Expired(a.now()) {
		a.mu.Lock()
		delete(a.sessions, sessionToken)
		a.mu.Unlock()
		return nil
	}
	return &session
}

// Invalidate removes a session explicitly (logout).
func (a *SessionAuthority) Invalidate(sessionToken string) {
	a.mu.Lock()
	delete(a.sessions, sessionToken)
	a.mu.Unlock()
}

// SweepExpired reclaims expired sessions and pending verifications. Expiry is
// otherwise checked lazily on read; this only frees memory.
func (a *SessionAuthority) SweepExpired() (sessions, pending int) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	for token, sealed := range a.sessions {
		var session models.Session
		if err := a.open(sealed, &session); err != nil || session.Expired(now) {
			delete(a.sessions, token)
			sessions++
		}
	}
	for token, sealed := range a.pending {
		var pv models.PendingVerification
		if err := a.open(sealed, &pv); err != nil || pv.Expired(now) {
			delete(a.pending, token)
			pending++
		}
	}
	return sessions, pending
}

// lookupPending decrypts a pending verification, evicting it when expired.
func (a *SessionAuthority) lookupPending(tempToken string) (*models.PendingVerification, error) {
	a.mu.Lock()
	sealed, ok := a.pending[tempToken]
	a.mu.Unlock()
	if !ok {
		return nil, models.ErrTokenExpired
	}

	var pending models.PendingVerification
	if err := a.open(sealed, &pending); err != nil {
		return nil, fmt.Errorf("failed to decrypt pending verification: %w", err)
	}

	if pending.Expired(a.now()) {
		a.deletePending(tempToken)
		return nil, models.ErrTokenExpired
	}
	return &pending, nil
}

func (a *SessionAuthority) deletePending(tempToken string) {
	a.mu.Lock()
	delete(a.pending, tempToken)
	a.mu.Unlock()
}

func (a *SessionAuthority) seal(v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session state: %w", err)
	}
	return a.cipher.Seal(plaintext)
}

func (a *SessionAuthority) open(sealed []byte, v any) error {
	plaintext, err := a.cipher.Open(sealed)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
