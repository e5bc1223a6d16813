package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"
)

// hashHexLen is the length of a hex-encoded SHA-256 digest.
const hashHexLen = 64

// Block is one hash-linked entry in the tamper-evidence ledger. Payload holds
// the encrypted vote record and is empty for the genesis block.
type Block struct {
	Index     uint64 `json:"index"`
	Timestamp int64  `json:"timestamp"`
	PrevHash  string `json:"prev_hash"`
	Payload   []byte `json:"payload"`
	Hash      string `json:"hash"`
}

func NewBlock(index uint64, payload []byte, prevHash string) *Block {
	block := &Block{
		Index:     index,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
		PrevHash:  prevHash,
	}
	block.Hash = block.ComputeHash()
	return block
}

// NewGenesisBlock builds the fixed first block of a fresh chain.
func NewGenesisBlock() *Block {
	return NewBlock(0, nil, strings.Repeat("0", hashHexLen))
}

// ComputeHash hashes the block's fields in a fixed binary layout. The stored
// Hash field is never part of its own input.
func (b *Block) ComputeHash() string {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	buffer.WriteString(b.PrevHash)
	buffer.Write(b.Payload)

	hash := sha256.Sum256(buffer.Bytes())
	return hex.EncodeToString(hash[:])
}

// Validate reports whether the stored hash matches the block's fields.
func (b *Block) Validate() bool {
	return b.ComputeHash() == b.Hash
}
