package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a simple local-first store for identity seeds.
//
// Seeds are hex-encoded files under <dir>/<name>/identity.key with 0600
// permissions. This is a convenience for CLI use; anything with stricter
// custody requirements should implement Signer directly.
type KeyStore struct {
	Directory string
}

// DefaultDirectory returns the conventional keystore location.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".void", "keys"), nil
}

// OpenKeyStore opens (or designates) a keystore directory. An empty
// directory argument selects the default location.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

// CheckName validates a keystore identity name.
func CheckName(name string) error {
	if name == "" {
		return errors.New("wallet: identity name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("wallet: invalid character %q in identity name", char)
	}
	return nil
}

func (ks *KeyStore) seedPath(name string) string {
	return filepath.Join(ks.Directory, name, "identity.key")
}

// Create generates a new identity under name. It refuses to overwrite an
// existing seed file.
func (ks *KeyStore) Create(name string) (*KeyPair, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	kp, err := NewKeyPair()
	if err != nil {
		return nil, err
	}
	if err := ks.saveSeed(ks.seedPath(name), kp.Seed()); err != nil {
		return nil, err
	}
	return kp, nil
}

// Import stores a caller-supplied seed under name. It refuses to
// overwrite an existing seed file.
func (ks *KeyStore) Import(name string, seed []byte) (*KeyPair, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	kp, err := FromSeed(seed)
	if err != nil {
		return nil, err
	}
	if err := ks.saveSeed(ks.seedPath(name), kp.Seed()); err != nil {
		return nil, err
	}
	return kp, nil
}

// Load reads the identity stored under name.
func (ks *KeyStore) Load(name string) (*KeyPair, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ks.seedPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := ParseSeedHex(string(data))
	if err != nil {
		return nil, fmt.Errorf("wallet: identity %q: %w", name, err)
	}
	return FromSeed(seed)
}

// List returns the names of stored identities in sorted order.
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(ks.seedPath(e.Name())); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ParseSeedHex decodes a hex seed string, tolerating whitespace and an
// optional 0x prefix.
func ParseSeedHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveSeed(path string, seed []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}
