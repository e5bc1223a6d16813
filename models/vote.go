package models

// VoteRecord is the plaintext payload of a ledger block. It is serialized to
// canonical JSON and encrypted before it ever reaches storage; the voter is
// identified only by a one-way hash.
type VoteRecord struct {
	ID           string `json:"id"`
	VoterIDHash  string `json:"voter_id_hash"`
	VoterName    string `json:"voter_name"`
	VoteChoice   string `json:"vote_choice"`
	Timestamp    int64  `json:"timestamp"`
	KYCImageHash string `json:"kyc_image_hash"`
	ClientIP     string `json:"client_ip"`
}

// Receipt is returned to a voter after a committed vote. Signature is the
// authority's ECDSA signature over the block and vote hashes, so the receipt
// can later be proven to originate from this system.
type Receipt struct {
	BlockIndex uint64 `json:"block_index"`
	BlockHash  string `json:"block_hash"`
	VoteHash   string `json:"vote_hash"`
	Timestamp  int64  `json:"timestamp"`
	Signature  []byte `json:"signature"`
}

// Proof is the public lookup result for a voter identity hash.
type Proof struct {
	BlockIndex uint64 `json:"block_index"`
	BlockHash  string `json:"block_hash"`
	VoteHash   string `json:"vote_hash"`
}

// ReplayRecord marks a voter identity as having committed a vote. Insertion
// of this record is the single serialization point preventing double voting.
type ReplayRecord struct {
	VoterIDHash string `json:"voter_id_hash"`
	Nonce       string `json:"nonce"`
	Timestamp   int64  `json:"timestamp"`
}
