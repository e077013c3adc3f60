//go:build !windows

package protect

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"audiblezenbot/pkg/logging"
)

const (
	keyDirName  = "audiblezenbot"
	keyFileName = "protect.key"

	keyDirPerm  = fs.FileMode(0o700)
	keyFilePerm = fs.FileMode(0o600)
)

// machineIDPaths are tried in order to identify the machine.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

func newUserSealer(opts Options) (Sealer, error) {
	dir := opts.KeyDir
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, &ProtectionError{Op: "locate key", Err: err}
		}
		dir = filepath.Join(base, keyDirName)
	}

	master, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, &ProtectionError{Op: "load key", Err: err}
	}

	scope, err := userScope()
	if err != nil {
		return nil, &ProtectionError{Op: "determine user scope", Err: err}
	}

	return NewKeySealer(master, scope)
}

// loadOrCreateKey reads the master key, creating it on first use. Creation
// uses O_EXCL so two processes racing on first use agree on one key.
func loadOrCreateKey(path string) ([]byte, error) {
	key, err := readKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), keyDirPerm); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}

	key = make([]byte, masterKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, keyFilePerm)
	if errors.Is(err, fs.ErrExist) {
		return readKey(path)
	}
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}

	if _, err := f.Write(key); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing key file: %w", err)
	}

	logging.Info("Protect", "Created secret protection key at %s", path)
	return key, nil
}

func readKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		logging.Warn("Protect", "Key file %s has insecure permissions %04o; recommended 0600", path, info.Mode().Perm())
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != masterKeyLen {
		return nil, fmt.Errorf("key file %s is corrupted (%d bytes)", path, len(key))
	}
	return key, nil
}

// userScope identifies the current user on the current machine.
func userScope() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return "uid=" + u.Uid + ";machine=" + machineID(), nil
}

func machineID() string {
	for _, p := range machineIDPaths {
		if b, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(b)); id != "" {
				return id
			}
		}
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
