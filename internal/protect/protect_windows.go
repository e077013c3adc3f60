//go:build windows

package protect

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// dpapiSealer uses the DPAPI user store, so ciphertext only opens for the
// same Windows account on the same machine.
type dpapiSealer struct{}

func newUserSealer(Options) (Sealer, error) {
	return dpapiSealer{}, nil
}

func (dpapiSealer) Seal(plaintext []byte) ([]byte, error) {
	in := newBlob(plaintext)
	var out windows.DataBlob

	err := windows.CryptProtectData(in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, &ProtectionError{Op: "CryptProtectData", Err: err}
	}
	return takeBlob(&out), nil
}

func (dpapiSealer) Open(ciphertext []byte) ([]byte, error) {
	in := newBlob(ciphertext)
	var out windows.DataBlob

	err := windows.CryptUnprotectData(in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, &ProtectionError{Op: "CryptUnprotectData", Err: err}
	}
	return takeBlob(&out), nil
}

func newBlob(b []byte) *windows.DataBlob {
	if len(b) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(b)), Data: &b[0]}
}

// takeBlob copies the DPAPI output and frees the system allocation.
func takeBlob(b *windows.DataBlob) []byte {
	if b.Data == nil {
		return []byte{}
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(b.Data)))

	out := make([]byte, b.Size)
	copy(out, unsafe.Slice(b.Data, b.Size))
	return out
}
