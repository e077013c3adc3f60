package protect

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// masterKeyLen is the size of the per-user key file contents.
	masterKeyLen = 32

	// sealVersion is the first byte of every KeySealer ciphertext.
	sealVersion byte = 1

	hkdfInfo = "audiblezenbot secret protection v1"
)

// KeySealer seals with XChaCha20-Poly1305 under a key derived from a master
// key. The scope string is authenticated as associated data, so ciphertext
// only opens under the same scope it was sealed with.
type KeySealer struct {
	aead  cipher.AEAD
	scope []byte
}

// NewKeySealer derives the sealing key from master and binds it to scope.
func NewKeySealer(master []byte, scope string) (*KeySealer, error) {
	if len(master) != masterKeyLen {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeyLen, len(master))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	return &KeySealer{aead: aead, scope: []byte(scope)}, nil
}

// Seal returns version || nonce || ciphertext.
func (s *KeySealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, s.scope), nil
}

// Open reverses Seal. It fails when the ciphertext was sealed under another
// key or scope.
func (s *KeySealer) Open(ciphertext []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < 1+nonceSize+s.aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	if ciphertext[0] != sealVersion {
		return nil, fmt.Errorf("unsupported ciphertext version %d", ciphertext[0])
	}

	nonce := ciphertext[1 : 1+nonceSize]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext[1+nonceSize:], s.scope)
	if err != nil {
		return nil, fmt.Errorf("ciphertext was not protected by this user on this machine: %w", err)
	}
	return plaintext, nil
}
