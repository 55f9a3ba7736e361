// Package envelope seals matched codes to the requesting agent's public key.
//
// Only the encrypt half of each scheme lives here. The relay never holds a
// private key, so it cannot recover a code once it has been sealed.
package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/mixelka/otprelay/pkg/models"
)

// Algorithm identifiers written into the envelope
const (
	AlgorithmRSAOAEP256 = "RSA-OAEP-256"
	AlgorithmAgeX25519  = "age-X25519"
)

// agePrefix marks an age X25519 recipient instead of an SPKI key
const agePrefix = "age1"

// ErrEncryption is returned when a code cannot be sealed for a key
var ErrEncryption = errors.New("encryption failed")

// Sealer produces fresh envelopes. The zero value is not usable; use New.
type Sealer struct {
	now func() time.Time
}

// New creates a Sealer using the wall clock for envelope timestamps
func New() *Sealer {
	return &Sealer{now: time.Now}
}

// Seal encrypts code to publicKey and wraps the ciphertext in an envelope.
//
// publicKey is either a base64 SPKI RSA key (DER, optionally PEM armored) or
// an age X25519 recipient ("age1...").
func (s *Sealer) Seal(code, publicKey string) (*models.EncryptedEnvelope, error) {
	publicKey = strings.TrimSpace(publicKey)

	var (
		algorithm  string
		ciphertext []byte
		err        error
	)
	if strings.HasPrefix(publicKey, agePrefix) {
		algorithm = AlgorithmAgeX25519
		ciphertext, err = sealAge([]byte(code), publicKey)
	} else {
		algorithm = AlgorithmRSAOAEP256
		ciphertext, err = sealRSA([]byte(code), publicKey)
	}
	if err != nil {
		return nil, err
	}

	return &models.EncryptedEnvelope{
		Version:    models.EnvelopeVersion,
		Algorithm:  algorithm,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		ProducedAt: s.now().UTC().Format(time.RFC3339),
	}, nil
}

func sealRSA(plaintext []byte, publicKey string) ([]byte, error) {
	key, err := ParseRSAPublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return ciphertext, nil
}

func sealAge(plaintext []byte, publicKey string) ([]byte, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid age recipient: %v", ErrEncryption, err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return buf.Bytes(), nil
}

// ParseRSAPublicKey decodes a base64 SPKI key, tolerating PEM armor
func ParseRSAPublicKey(publicKey string) (*rsa.PublicKey, error) {
	var der []byte
	if block, _ := pem.Decode([]byte(publicKey)); block != nil {
		der = block.Bytes
	} else {
		decoded, err := base64.StdEncoding.DecodeString(publicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: public key is not base64: %v", ErrEncryption, err)
		}
		der = decoded
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not SPKI: %v", ErrEncryption, err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrEncryption, parsed)
	}
	return key, nil
}

// ValidatePublicKey reports whether publicKey can be used by Seal
func ValidatePublicKey(publicKey string) error {
	publicKey = strings.TrimSpace(publicKey)
	if strings.HasPrefix(publicKey, agePrefix) {
		if _, err := age.ParseX25519Recipient(publicKey); err != nil {
			return fmt.Errorf("%w: invalid age recipient: %v", ErrEncryption, err)
		}
		return nil
	}
	_, err := ParseRSAPublicKey(publicKey)
	return err
}
