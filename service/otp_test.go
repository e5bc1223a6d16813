package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"evote-backend/models"
)

// captureNotifier records delivered codes so tests can complete the OTP flow.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (n *captureNotifier) SendOTP(email, name, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = code
	return nil
}

func (n *captureNotifier) lastCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type OTPSuite struct {
	suite.Suite
	notifier *captureNotifier
	otp      *OTPService
	clock    time.Time
}

func (s *OTPSuite) SetupTest() {
	s.notifier = newCaptureNotifier()
	s.otp = NewOTPService(s.notifier, discardLogger())
	s.clock = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	s.otp.now = func() time.Time { return s.clock }
}

func (s *OTPSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func TestOTPSuite(t *testing.T) {
	suite.Run(t, new(OTPSuite))
}

func (s *OTPSuite) TestVerifyIsOneTimeUse() {
	s.Require().NoError(s.otp.Send("jonas@example.com", "Jonas"))
	code := s.notifier.lastCode("jonas@example.com")
	s.Require().Len(code, 6)

	s.NoError(s.otp.Verify("jonas@example.com", code))
	s.ErrorIs(s.otp.Verify("jonas@example.com", code), models.ErrOTPInvalid)
}

func (s *OTPSuite) TestVerifyRejectsWrongCode() {
	s.Require().NoError(s.otp.Send("jonas@example.com", "Jonas"))

	s.ErrorIs(s.otp.Verify("jonas@example.com", "000000"), models.ErrOTPInvalid)

	// A wrong attempt must not consume the code.
	s.NoError(s.otp.Verify("jonas@example.com", s.notifier.lastCode("jonas@example.com")))
}

func (s *OTPSuite) TestVerifyExpiry() {
	s.Require().NoError(s.otp.Send("jonas@example.com", "Jonas"))
	code := s.notifier.lastCode("jonas@example.com")

	s.advance(6 * time.Minute)
	s.ErrorIs(s.otp.Verify("jonas@example.com", code), models.ErrOTPExpired)

	// The expired code was invalidated entirely.
	s.ErrorIs(s.otp.Verify("jonas@example.com", code), models.ErrOTPInvalid)
}

func (s *OTPSuite) TestAttemptBudget() {
	s.Require().NoError(s.otp.Send("jonas@example.com", "Jonas"))
	code := s.notifier.lastCode("jonas@example.com")

	for i := 0; i < 5; i++ {
		s.ErrorIs(s.otp.Verify("jonas@example.com", "000000"), models.ErrOTPInvalid)
	}

	// The sixth call hits the exhausted budget and invalidates the code.
	s.ErrorIs(s.otp.Verify("jonas@example.com", "000000"), models.ErrOTPAttemptsExceeded)

	// Even the correct code fails afterwards.
	s.ErrorIs(s.otp.Verify("jonas@example.com", code), models.ErrOTPInvalid)
}

func (s *OTPSuite) TestSendRateLimit() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.otp.Send("jonas@example.com", "Jonas"))
		s.advance(time.Minute)
	}

	s.ErrorIs(s.otp.Send("jonas@example.com", "Jonas"), models.ErrRateLimited)

	// Another email is unaffected.
	s.NoError(s.otp.Send("ona@example.com", "Ona"))

	// The window rolls: once the first send ages out, a new send is allowed.
	s.advance(58 * time.Minute)
	s.NoError(s.otp.Send("jonas@example.com", "Jonas"))
}

func (s *OTPSuite) TestSweepExpired() {
	s.Require().NoError(s.otp.Send("jonas@example.com", "Jonas"))
	s.Require().NoError(s.otp.Send("ona@example.com", "Ona"))

	s.advance(6 * time.Minute)
	s.Equal(2, s.otp.SweepExpired())
	s.Equal(0, s.otp.SweepExpired())
}
