package models

// KYCRecord is the sidecar metadata written next to an encrypted KYC image
// blob. It binds the content hash of the image to a voter identity hash
// without storing any plaintext PII.
type KYCRecord struct {
	ImageHash   string `json:"image_hash"`
	VoterIDHash string `json:"voter_id_hash"`
	Timestamp   int64  `json:"timestamp"`
	BlobPath    string `json:"blob_path"`
}
