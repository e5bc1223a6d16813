// Package kyc stores encrypted KYC image blobs, content-addressed by the
// SHA-256 hash of the raw image bytes.
package kyc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"evote-backend/encryption"
	"evote-backend/models"
)

const (
	blobSuffix = ".enc"
	metaSuffix = ".enc.meta"
	// hashPrefixLen is how much of the content hash goes into filenames.
	hashPrefixLen = 16
)

// CredentialStore writes each upload as an encrypted blob plus an encrypted
// JSON sidecar binding the content hash to a voter identity hash. Filenames
// are derived from the hash and timestamp only, never from voter PII.
type CredentialStore struct {
	dir    string
	cipher *encryption.Cipher
	mu     sync.Mutex
	log    *slog.Logger
}

func NewCredentialStore(dir string, cipher *encryption.Cipher, log *slog.Logger) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create kyc directory: %w", err)
	}
	return &CredentialStore{dir: dir, cipher: cipher, log: log.With("component", "kyc")}, nil
}

// Store encrypts and persists the image, returning its content hash and the
// blob path. Storing the same bytes twice yields the same hash.
func (s *CredentialStore) Store(raw []byte, voterID string, timestamp time.Time) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	imageHash := encryption.HashSHA256Hex(raw)

	sealed, err := s.cipher.Seal(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt kyc image: %w", err)
	}

	filename := fmt.Sprintf("%s_%d%s", imageHash[:hashPrefixLen], timestamp.Unix(), blobSuffix)
	blobPath := filepath.Join(s.dir, filename)
	if err := os.WriteFile(blobPath, sealed, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write kyc blob: %w", err)
	}

	record := models.KYCRecord{
		ImageHash:   imageHash,
		VoterIDHash: encryption.HashIdentity(voterID),
		Timestamp:   timestamp.Unix(),
		BlobPath:    blobPath,
	}
	meta, err := json.Marshal(record)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal kyc metadata: %w", err)
	}
	sealedMeta, err := s.cipher.Seal(meta)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt kyc metadata: %w", err)
	}
	if err := os.WriteFile(blobPath+".meta", sealedMeta, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write kyc metadata: %w", err)
	}

	s.log.Info("stored kyc image", "image_hash", imageHash)
	return imageHash, blobPath, nil
}

// Retrieve decrypts the blob for an image hash. Only the authorized audit
// path may use it.
func (s *CredentialStore) Retrieve(imageHash string, authorized bool) ([]byte, error) {
	if !authorized {
		return nil, models.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blobPath, err := s.findBlob(imageHash)
	if err != nil {
		return nil, err
	}
	if blobPath == "" {
		return nil, nil
	}

	sealed, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read kyc blob: %w", err)
	}
	return s.cipher.Open(sealed)
}

// BoundTo reports whether the image hash was uploaded by the voter with the
// given identity hash. It prevents voting with someone else's KYC upload.
func (s *CredentialStore) BoundTo(imageHash, voterIDHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobPath, err := s.findBlob(imageHash)
	if err != nil {
		return false, err
	}
	if blobPath == "" {
		return false, nil
	}

	sealedMeta, err := os.ReadFile(blobPath + ".meta")
	if err != nil {
		return false, fmt.Errorf("failed to read kyc metadata: %w", err)
	}
	meta, err := s.cipher.Open(sealedMeta)
	if err != nil {
		return false, fmt.Errorf("failed to decrypt kyc metadata: %w", err)
	}
	var record models.KYCRecord
	if err := json.Unmarshal(meta, &record); err != nil {
		return false, fmt.Errorf("failed to unmarshal kyc metadata: %w", err)
	}

	return record.ImageHash == imageHash && record.VoterIDHash == voterIDHash, nil
}

// findBlob locates a blob by hash prefix. Empty path means not found.
func (s *CredentialStore) findBlob(imageHash string) (string, error) {
	if len(imageHash) < hashPrefixLen {
		return "", nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to list kyc directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, imageHash[:hashPrefixLen]) &&
			strings.HasSuffix(name, blobSuffix) && !strings.HasSuffix(name, metaSuffix) {
			return filepath.Join(s.dir, name), nil
		}
	}
	return "", nil
}
