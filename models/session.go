package models

import "time"

// Session is issued after a completed two-phase login. It lives only in
// encrypted form inside the session authority; this struct is the decrypted
// view handed to callers.
type Session struct {
	Token     string    `json:"token"`
	VoterID   string    `json:"voter_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// PendingVerification bridges the credential check and the OTP confirmation.
// It is one-time use and short-lived.
type PendingVerification struct {
	TempToken string    `json:"temp_token"`
	VoterID   string    `json:"voter_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p *PendingVerification) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
