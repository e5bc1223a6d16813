package kyc

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"evote-backend/encryption"
	"evote-backend/models"
)

type CredentialStoreSuite struct {
	suite.Suite
	store *CredentialStore
}

func (s *CredentialStoreSuite) SetupTest() {
	cipher, err := encryption.NewCipher(make([]byte, 32))
	s.Require().NoError(err)
	s.store, err = NewCredentialStore(s.T().TempDir(), cipher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
}

func TestCredentialStoreSuite(t *testing.T) {
	suite.Run(t, new(CredentialStoreSuite))
}

func (s *CredentialStoreSuite) TestStoreIsContentAddressed() {
	raw := []byte("fake image bytes")

	hash1, path1, err := s.store.Store(raw, "V001", time.Unix(1700000000, 0))
	s.Require().NoError(err)
	s.Equal(encryption.HashSHA256Hex(raw), hash1)
	s.NotEmpty(path1)

	// Same bytes always hash identically regardless of uploader or time.
	hash2, _, err := s.store.Store(raw, "V002", time.Unix(1700009999, 0))
	s.Require().NoError(err)
	s.Equal(hash1, hash2)
}

func (s *CredentialStoreSuite) TestRetrieve() {
	raw := []byte("fake image bytes")
	imageHash, _, err := s.store.Store(raw, "V001", time.Now())
	s.Require().NoError(err)

	s.Run("authorized retrieval decrypts the original bytes", func() {
		got, err := s.store.Retrieve(imageHash, true)
		s.Require().NoError(err)
		s.Equal(raw, got)
	})

	s.Run("unauthorized retrieval is rejected", func() {
		_, err := s.store.Retrieve(imageHash, false)
		s.ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("unknown hash returns nil", func() {
		got, err := s.store.Retrieve(encryption.HashSHA256Hex([]byte("missing")), true)
		s.Require().NoError(err)
		s.Nil(got)
	})
}

func (s *CredentialStoreSuite) TestBoundTo() {
	imageHash, _, err := s.store.Store([]byte("fake image bytes"), "V001", time.Now())
	s.Require().NoError(err)

	s.Run("upload is bound to the uploader", func() {
		bound, err := s.store.BoundTo(imageHash, encryption.HashIdentity("V001"))
		s.Require().NoError(err)
		s.True(bound)
	})

	s.Run("another voter cannot claim the upload", func() {
		bound, err := s.store.BoundTo(imageHash, encryption.HashIdentity("V002"))
		s.Require().NoError(err)
		s.False(bound)
	})

	s.Run("unknown hash is not bound to anyone", func() {
		bound, err := s.store.BoundTo(encryption.HashSHA256Hex([]byte("missing")), encryption.HashIdentity("V001"))
		s.Require().NoError(err)
		s.False(bound)
	})
}
