package encryption

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// TokenBytes is the entropy of session and temp tokens (256 bits).
const TokenBytes = 32

// CryptoService bundles the process-wide key material: one cipher for session
// state, one for PII (KYC blobs and vote payloads), and the ECDSA authority
// key used to sign receipts.
type CryptoService struct {
	Session      *Cipher
	PII          *Cipher
	authorityKey *ecdsa.PrivateKey
}

func NewCryptoService(keys *KeyMaterial) (*CryptoService, error) {
	session, err := NewCipher(keys.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("session cipher: %w", err)
	}
	pii, err := NewCipher(keys.PIIKey)
	if err != nil {
		return nil, fmt.Errorf("pii cipher: %w", err)
	}
	return &CryptoService{
		Session:      session,
		PII:          pii,
		authorityKey: keys.Authority,
	}, nil
}

// HashSHA256Hex returns the hex-encoded SHA-256 digest of data.
func HashSHA256Hex(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashIdentity derives the one-way voter identity hash stored everywhere in
// place of the plaintext voter ID.
func HashIdentity(voterID string) string {
	return HashSHA256Hex([]byte(voterID))
}

// GenerateToken returns a random URL-safe token with TokenBytes of entropy.
func GenerateToken() (string, error) {
	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Keccak256 computes a Keccak-256 hash over the concatenation of the inputs.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// SignDigest signs a 32-byte digest with the authority key.
func (cs *CryptoService) SignDigest(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, cs.authorityKey)
}

// VerifyDigest checks that signature over digest recovers the authority key.
func (cs *CryptoService) VerifyDigest(digest, signature []byte) bool {
	sigPublicKey, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return false
	}
	return sigPublicKey.X.Cmp(cs.authorityKey.PublicKey.X) == 0 &&
		sigPublicKey.Y.Cmp(cs.authorityKey.PublicKey.Y) == 0
}

// AuthorityAddress returns the public address of the receipt-signing key.
func (cs *CryptoService) AuthorityAddress() string {
	return crypto.PubkeyToAddress(cs.authorityKey.PublicKey).Hex()
}
