// Package protect turns secrets into user-scoped ciphertext strings and back.
//
// A protected value is the literal prefix "ENC:" followed by standard base64 of
// the ciphertext. The prefix is part of the on-disk contract: any reader can
// detect a protected value with strings.HasPrefix and hand it back to
// Unprotect. Values without the prefix are treated as legacy plaintext.
//
// Ciphertext is bound to the current operating-system user on the current
// machine. On Windows the DPAPI user store is used; elsewhere a per-user key
// file under the user config directory is combined with the user and machine
// identity.
package protect

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Prefix marks a protected value.
const Prefix = "ENC:"

var (
	// ErrProtection matches every *ProtectionError.
	ErrProtection = errors.New("secret protection failed")

	// ErrMalformedCiphertext matches every *DecodeError.
	ErrMalformedCiphertext = errors.New("malformed protected value")
)

// Protector converts plaintext to protected strings and back.
type Protector interface {
	Protect(plaintext []byte) (string, error)
	Unprotect(value string) ([]byte, error)
}

// Sealer is the raw, user-scoped encryption primitive behind a Codec.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// ProtectionError reports a failure of the underlying protection primitive,
// for example ciphertext written by another user or on another machine.
type ProtectionError struct {
	Op  string
	Err error
}

func (e *ProtectionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProtectionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrProtection) true for any ProtectionError.
func (e *ProtectionError) Is(target error) bool {
	return target == ErrProtection
}

// DecodeError reports that the text after the prefix is not valid base64.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protected value is not valid base64 after %q: %v", Prefix, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedCiphertext) true for any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedCiphertext
}

// IsProtected reports whether value carries the protection prefix.
func IsProtected(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Codec implements Protector on top of a Sealer.
type Codec struct {
	sealer Sealer
}

// NewCodec wraps sealer with the ENC:/base64 encoding.
func NewCodec(sealer Sealer) *Codec {
	return &Codec{sealer: sealer}
}

// Options configures New.
type Options struct {
	// KeyDir overrides the directory holding the per-user key file on
	// platforms without a native user-scoped store. Ignored on Windows.
	KeyDir string
}

// New returns the protector for the current user on this machine.
func New(opts Options) (*Codec, error) {
	sealer, err := newUserSealer(opts)
	if err != nil {
		return nil, err
	}
	return NewCodec(sealer), nil
}

// Protect seals plaintext and returns "ENC:" + base64(ciphertext).
func (c *Codec) Protect(plaintext []byte) (string, error) {
	ciphertext, err := c.sealer.Seal(plaintext)
	if err != nil {
		return "", asProtectionError("protect", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unprotect reverses Protect. Input without the prefix is returned unchanged.
func (c *Codec) Unprotect(value string) ([]byte, error) {
	if !IsProtected(value) {
		return []byte(value), nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	plaintext, err := c.sealer.Open(ciphertext)
	if err != nil {
		return nil, asProtectionError("unprotect", err)
	}
	return plaintext, nil
}

// ProtectString is Protect for string input.
func ProtectString(p Protector, plaintext string) (string, error) {
	return p.Protect([]byte(plaintext))
}

// UnprotectString is Unprotect for string output.
func UnprotectString(p Protector, value string) (string, error) {
	b, err := p.Unprotect(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func asProtectionError(op string, err error) error {
	var pe *ProtectionError
	if errors.As(err, &pe) {
		return err
	}
	return &ProtectionError{Op: op, Err: err}
}
