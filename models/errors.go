package models

import "errors"

// Validation and state errors returned to callers as structured results.
// Services wrap these with context and handlers test with errors.Is; none of
// them is ever treated as process-fatal.
var (
	ErrCredentialMismatch  = errors.New("credentials do not match the voter registry")
	ErrAlreadyVoted        = errors.New("voter has already voted")
	ErrTokenExpired        = errors.New("token is expired or unknown")
	ErrRateLimited         = errors.New("too many OTP requests")
	ErrOTPInvalid          = errors.New("invalid OTP")
	ErrOTPExpired          = errors.New("OTP has expired")
	ErrOTPAttemptsExceeded = errors.New("too many failed OTP attempts")
	ErrInvalidSession      = errors.New("session is invalid or expired")
	ErrDuplicateVote       = errors.New("duplicate vote")
	ErrStaleTimestamp      = errors.New("client timestamp outside the accepted window")
	ErrKYCMismatch         = errors.New("KYC image is not bound to this voter")
	ErrUnknownCandidate    = errors.New("unknown candidate")
	ErrElectionClosed      = errors.New("election window is closed")
	ErrIntegrityViolation  = errors.New("ledger integrity violation")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrStorage             = errors.New("storage failure")
)
