package encryption

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyMaterial holds the process-wide keys, loaded once at startup.
type KeyMaterial struct {
	SessionKey []byte
	PIIKey     []byte
	Authority  *ecdsa.PrivateKey
}

type keyFile struct {
	SessionKey string `json:"session_key"`
	PIIKey     string `json:"pii_key"`
}

// AuthorityCredentials is the on-disk form of the receipt-signing key pair.
type AuthorityCredentials struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// LoadOrGenerateKeys restores the key material from the storage directory,
// generating and persisting fresh keys on first boot.
func LoadOrGenerateKeys(storagePath string) (*KeyMaterial, error) {
	if err := os.MkdirAll(storagePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	sessionKey, piiKey, err := loadOrGenerateSymmetricKeys(filepath.Join(storagePath, "security_keys.json"))
	if err != nil {
		return nil, err
	}

	authority, err := loadOrGenerateAuthorityKey(filepath.Join(storagePath, "authority_credentials.json"))
	if err != nil {
		return nil, err
	}

	return &KeyMaterial{SessionKey: sessionKey, PIIKey: piiKey, Authority: authority}, nil
}

func loadOrGenerateSymmetricKeys(path string) (sessionKey, piiKey []byte, err error) {
	if data, err := os.ReadFile(path); err == nil {
		var kf keyFile
		if err := json.Unmarshal(data, &kf); err != nil {
			return nil, nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		sessionKey, err = hex.DecodeString(kf.SessionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode session key: %w", err)
		}
		piiKey, err = hex.DecodeString(kf.PIIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode pii key: %w", err)
		}
		return sessionKey, piiKey, nil
	}

	sessionKey = make([]byte, 32)
	piiKey = make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	if _, err := rand.Read(piiKey); err != nil {
		return nil, nil, fmt.Errorf("failed to generate pii key: %w", err)
	}

	data, err := json.MarshalIndent(keyFile{
		SessionKey: hex.EncodeToString(sessionKey),
		PIIKey:     hex.EncodeToString(piiKey),
	}, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, nil, fmt.Errorf("failed to save key file: %w", err)
	}
	return sessionKey, piiKey, nil
}

func loadOrGenerateAuthorityKey(path string) (*ecdsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		var creds AuthorityCredentials
		if err := json.Unmarshal(data, &creds); err != nil {
			return nil, fmt.Errorf("failed to parse authority credentials: %w", err)
		}
		privateKeyHex := strings.TrimPrefix(creds.PrivateKey, "0x")
		privateKey, err := crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("failed to restore authority private key: %w", err)
		}
		return privateKey, nil
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate authority key: %w", err)
	}

	creds := AuthorityCredentials{
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&privateKey.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(privateKey)),
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authority credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save authority credentials: %w", err)
	}
	return privateKey, nil
}
