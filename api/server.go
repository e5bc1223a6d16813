// Package api is the HTTP binding of the vote-integrity core.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evote-backend/kyc"
	"evote-backend/models"
	"evote-backend/registry"
	"evote-backend/service"
)

// maxUploadBytes caps KYC image uploads.
const maxUploadBytes = 10 << 20

type Server struct {
	auth        *service.SessionAuthority
	coordinator *service.VoteCoordinator
	kyc         *kyc.CredentialStore
	registry    registry.VoterRegistry
	metrics     *service.Metrics
	router      chi.Router
	log         *slog.Logger
}

func NewServer(
	auth *service.SessionAuthority,
	coordinator *service.VoteCoordinator,
	kycStore *kyc.CredentialStore,
	reg registry.VoterRegistry,
	metrics *service.Metrics,
	gatherer prometheus.Gatherer,
	log *slog.Logger,
) *Server {
	s := &Server{
		auth:        auth,
		coordinator: coordinator,
		kyc:         kycStore,
		registry:    reg,
		metrics:     metrics,
		log:         log.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/verify-otp", s.handleVerifyOTP)
		r.Post("/resend-otp", s.handleResendOTP)
		r.Post("/kyc/upload", s.handleUploadKYC)
		r.Post("/vote", s.handleCastVote)
		r.Get("/proof/{voterIdHash}", s.handleProof)
		r.Get("/verify-chain", s.handleVerifyChain)
		r.Get("/candidates", s.handleCandidates)
		r.Get("/admin/export", s.handleExport)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router = r
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

type loginRequest struct {
	VoterID string `json:"voter_id"`
	DOB     string `json:"dob"`
	Email   string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tempToken, voter, err := s.auth.BeginLogin(req.VoterID, req.DOB, req.Email)
	if err != nil {
		s.metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		s.writeDomainError(w, err)
		return
	}
	s.metrics.LoginAttempts.WithLabelValues("otp_sent").Inc()
	s.metrics.OTPSends.Inc()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"temp_token": tempToken,
		"name":       voter.Name,
	})
}

type verifyOTPRequest struct {
	TempToken string `json:"temp_token"`
	OTP       string `json:"otp"`
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionToken, session, err := s.auth.CompleteLogin(req.TempToken, req.OTP)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_token": sessionToken,
		"name":          session.Name,
		"expires_at":    session.ExpiresAt,
	})
}

type resendOTPRequest struct {
	TempToken string `json:"temp_token"`
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.auth.ResendOTP(req.TempToken); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.metrics.OTPSends.Inc()
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

func (s *Server) handleUploadKYC(w http.ResponseWriter, r *http.Request) {
	session := s.auth.VerifySession(s.sessionToken(r))
	if session == nil {
		s.writeDomainError(w, models.ErrInvalidSession)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("document")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing document")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read document")
		return
	}
	if len(raw) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty document")
		return
	}

	imageHash, _, err := s.kyc.Store(raw, session.VoterID, time.Now())
	if err != nil {
		s.log.Error("kyc store failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"image_hash": imageHash})
}

type castVoteRequest struct {
	SessionToken string `json:"session_token"`
	VoteChoice   string `json:"vote_choice"`
	KYCImageHash string `json:"kyc_image_hash"`
	Timestamp    int64  `json:"timestamp"`
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionToken == "" {
		req.SessionToken = s.sessionToken(r)
	}

	receipt, err := s.coordinator.ProcessVote(
		req.SessionToken, req.VoteChoice, req.KYCImageHash, clientIP(r), req.Timestamp)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	proof := s.coordinator.ProofFor(chi.URLParam(r, "voterIdHash"))
	if proof == nil {
		s.writeError(w, http.StatusNotFound, "no vote recorded for this identity")
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	valid, firstBad, total := s.coordinator.VerifyChain()

	resp := map[string]any{
		"valid":        valid,
		"total_blocks": total,
	}
	if !valid {
		resp["first_bad_index"] = firstBad
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates := s.registry.Candidates()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.coordinator.ExportResults(bearerToken(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// sessionToken reads the session token from the request header or form.
func (s *Server) sessionToken(r *http.Request) string {
	if token := r.Header.Get("X-Session-Token"); token != "" {
		return token
	}
	return r.FormValue("session_token")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Unexpected
// failures are logged in full and surfaced as a generic internal error.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrCredentialMismatch):
		s.writeError(w, http.StatusUnauthorized, "credentials do not match the voter registry")
	case errors.Is(err, models.ErrAlreadyVoted):
		s.writeError(w, http.StatusConflict, "voter has already voted")
	case errors.Is(err, models.ErrTokenExpired):
		s.writeError(w, http.StatusUnauthorized, "token is expired or unknown")
	case errors.Is(err, models.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "too many OTP requests, try again later")
	case errors.Is(err, models.ErrOTPAttemptsExceeded):
		s.writeError(w, http.StatusTooManyRequests, "too many failed OTP attempts, request a new code")
	case errors.Is(err, models.ErrOTPExpired):
		s.writeError(w, http.StatusUnauthorized, "OTP has expired, request a new code")
	case errors.Is(err, models.ErrOTPInvalid):
		s.writeError(w, http.StatusUnauthorized, "invalid OTP")
	case errors.Is(err, models.ErrInvalidSession):
		s.writeError(w, http.StatusUnauthorized, "session is invalid or expired")
	case errors.Is(err, models.ErrDuplicateVote):
		s.writeError(w, http.StatusConflict, "a vote has already been recorded for this voter")
	case errors.Is(err, models.ErrStaleTimestamp):
		s.writeError(w, http.StatusBadRequest, "client timestamp outside the accepted window")
	case errors.Is(err, models.ErrKYCMismatch):
		s.writeError(w, http.StatusForbidden, "KYC image is not bound to this voter")
	case errors.Is(err, models.ErrUnknownCandidate):
		s.writeError(w, http.StatusBadRequest, "unknown candidate")
	case errors.Is(err, models.ErrElectionClosed):
		s.writeError(w, http.StatusForbidden, "the election window is closed")
	case errors.Is(err, models.ErrUnauthorized):
		s.writeError(w, http.StatusForbidden, "unauthorized")
	case errors.Is(err, models.ErrIntegrityViolation):
		s.writeError(w, http.StatusInternalServerError, "ledger failed integrity verification")
	default:
		s.log.Error("unexpected failure", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
