package models

// EnvelopeVersion is the current envelope format version
const EnvelopeVersion = 1

// EncryptedEnvelope wraps a sealed code for transport to the policy API
type EncryptedEnvelope struct {
	Version    int    `json:"version"`
	Algorithm  string `json:"algorithm"`
	Ciphertext string `json:"ciphertext"` // base64
	ProducedAt string `json:"producedAt"` // RFC 3339
}
