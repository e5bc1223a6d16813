package service

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"evote-backend/encryption"
	"evote-backend/models"
)

const (
	otpValidity    = 5 * time.Minute
	otpMaxAttempts = 5
	// otpSendLimit OTP sends per email within otpSendWindow.
	otpSendLimit  = 3
	otpSendWindow = time.Hour
)

// Notifier delivers an OTP over an out-of-band channel. Real delivery (email)
// is an external collaborator; LogNotifier is the development fallback.
type Notifier interface {
	SendOTP(email, name, code string) error
}

// LogNotifier logs the code instead of delivering it. Used when no mailer is
// configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) SendOTP(email, name, code string) error {
	n.Log.Info("otp delivery not configured, logging code", "email", email, "code", code)
	return nil
}

type otpEntry struct {
	codeHash  string
	expiresAt time.Time
	attempts  int
}

// OTPService issues and verifies one-time codes. Codes are stored only as
// SHA-256 hashes, expire after otpValidity, tolerate otpMaxAttempts failures,
// and sends are rate limited with a rolling window per email.
type OTPService struct {
	mu       sync.Mutex
	codes    map[string]*otpEntry
	sends    map[string][]time.Time
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger
}

func NewOTPService(notifier Notifier, log *slog.Logger) *OTPService {
	return &OTPService{
		codes:    make(map[string]*otpEntry),
		sends:    make(map[string][]time.Time),
		notifier: notifier,
		now:      time.Now,
		log:      log.With("component", "otp"),
	}
}

// Send generates a 6-digit code for the email, stores its hash, and hands it
// to the notifier. A send replaces any previous outstanding code.
func (s *OTPService) Send(email, name string) error {
	s.mu.Lock()

	now := s.now()
	if !s.allowSendLocked(email, now) {
		s.mu.Unlock()
		return models.ErrRateLimited
	}

	code, err := generateCode()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.codes[email] = &otpEntry{
		codeHash:  encryption.HashSHA256Hex([]byte(code)),
		expiresAt: now.Add(otpValidity),
	}
	s.sends[email] = append(s.sends[email], now)
	s.mu.Unlock()

	// Delivery runs outside the lock; a slow mailer must not serialize logins.
	if err := s.notifier.SendOTP(email, name, code); err != nil {
		s.log.Error("otp delivery failed", "email", email, "error", err)
		return fmt.Errorf("failed to deliver OTP: %w", err)
	}
	return nil
}

// Verify checks a submitted code. The stored code is invalidated on success,
// on expiry, and when the attempt budget is exhausted.
func (s *OTPService) Verify(email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[email]
	if !ok {
		return models.ErrOTPInvalid
	}

	if s.now().After(entry.expiresAt) {
		delete(s.codes, email)
		return models.ErrOTPExpired
	}

	if entry.attempts >= otpMaxAttempts {
		delete(s.codes, email)
		return models.ErrOTPAttemptsExceeded
	}

	if encryption.HashSHA256Hex([]byte(code)) != entry.codeHash {
		entry.attempts++
		return fmt.Errorf("%w: %d attempts remaining", models.ErrOTPInvalid, otpMaxAttempts-entry.attempts)
	}

	delete(s.codes, email) // one-time use
	return nil
}

// SweepExpired drops expired codes and stale rate-limit history.
func (s *OTPService) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for email, entry := range s.codes {
		if now.After(entry.expiresAt) {
			delete(s.codes, email)
			removed++
		}
	}
	for email := range s.sends {
		s.pruneSendsLocked(email, now)
		if len(s.sends[email]) == 0 {
			delete(s.sends, email)
		}
	}
	return removed
}

func (s *OTPService) allowSendLocked(email string, now time.Time) bool {
	s.pruneSendsLocked(email, now)
	return len(s.sends[email]) < otpSendLimit
}

func (s *OTPService) pruneSendsLocked(email string, now time.Time) {
	cutoff := now.Add(-otpSendWindow)
	history := s.sends[email]
	i := 0
	for ; i < len(history); i++ {
		if history[i].After(cutoff) {
			break
		}
	}
	s.sends[email] = history[i:]
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
