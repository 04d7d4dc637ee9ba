package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealSaltLen  = 16
	sealNonceLen = 24
	sealKeyLen   = 32
)

// ErrSealedCorrupt is returned when a sealed value cannot be opened.
var ErrSealedCorrupt = errors.New("sealed value is corrupt or was sealed with another passphrase")

// Sealer encrypts small values at rest with a key derived from a passphrase.
// The encoded form is base64(salt | nonce | secretbox).
type Sealer struct {
	passphrase []byte
	params     ArgonParams

	mu   sync.Mutex
	keys map[string]*[sealKeyLen]byte
}

// NewSealer returns a Sealer for passphrase. A nil Sealer leaves values as-is.
func NewSealer(passphrase string, params ArgonParams) (*Sealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	params = params.normalized()
	params.KeyLen = sealKeyLen
	return &Sealer{
		passphrase: []byte(passphrase),
		params:     params,
		keys:       make(map[string]*[sealKeyLen]byte),
	}, nil
}

// Seal encrypts plaintext. Passthrough when s is nil.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	if s == nil {
		return string(plaintext), nil
	}
	var salt [sealSaltLen]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	var nonce [sealNonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealSaltLen+sealNonceLen+len(plaintext)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, s.key(salt[:]))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open decrypts a value produced by Seal. Passthrough when s is nil.
func (s *Sealer) Open(encoded string) ([]byte, error) {
	if s == nil {
		return []byte(encoded), nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < sealSaltLen+sealNonceLen+secretbox.Overhead {
		return nil, ErrSealedCorrupt
	}
	salt := raw[:sealSaltLen]
	var nonce [sealNonceLen]byte
	copy(nonce[:], raw[sealSaltLen:sealSaltLen+sealNonceLen])

	plain, ok := secretbox.Open(nil, raw[sealSaltLen+sealNonceLen:], &nonce, s.key(salt))
	if !ok {
		return nil, ErrSealedCorrupt
	}
	return plain, nil
}

// key derives (and memoizes) the secretbox key for salt.
func (s *Sealer) key(salt []byte) *[sealKeyLen]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	derived := argon2.IDKey(s.passphrase, salt, s.params.Time, s.params.Memory, s.params.Parallelism, sealKeyLen)
	var k [sealKeyLen]byte
	copy(k[:], derived)
	s.keys[string(salt)] = &k
	return &k
}
