package model

// Digest is the content-integrity fingerprint of a stored file.
// It is a tagged option: either a verified hash is present, or the record
// is explicitly unverified because digest computation failed at ingest time.
// An unverified record is still valid — availability wins over verification.
type Digest struct {
	Hex      string `json:"hex,omitempty"`
	Verified bool   `json:"verified"`
}

// VerifiedDigest wraps a computed lowercase hex hash.
func VerifiedDigest(hex string) Digest {
	return Digest{Hex: hex, Verified: true}
}

// UnverifiedDigest marks a record whose digest could not be computed.
func UnverifiedDigest() Digest {
	return Digest{}
}
