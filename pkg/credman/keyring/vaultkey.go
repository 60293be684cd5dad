package keyring

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// KeySize is the length in bytes of the vault master key.
const KeySize = 32

const (
	vaultKeyName = "vault.key"
	vaultKeyPerm = 0600
)

var (
	// ErrKeyMissing is returned by Load when no key has been generated yet.
	ErrKeyMissing = errors.New("vault key does not exist")
	// ErrKeyCorrupt is returned when the key file does not hold a
	// hex-encoded key of KeySize bytes.
	ErrKeyCorrupt = errors.New("vault key is corrupt")
)

// os seams, replaced by tests
var (
	randRead   = rand.Read
	mkdirAll   = os.MkdirAll
	createTemp = os.CreateTemp
	readFile   = os.ReadFile
	rename     = os.Rename
	remove     = os.Remove
)

// VaultKey is the master key file of the credential vault. Secrets only
// land in the vault when the system keyring refuses them, so the key lives
// next to the vault in the configuration directory, readable by its owner
// alone.
type VaultKey struct {
	dir string
}

func NewVaultKey(configDir string) *VaultKey {
	return &VaultKey{dir: configDir}
}

// Path returns the location of the key file.
func (k *VaultKey) Path() string {
	return filepath.Join(k.dir, vaultKeyName)
}

// Load reads the key. It fails with ErrKeyMissing before the first
// Generate and with ErrKeyCorrupt when the file was tampered with.
func (k *VaultKey) Load() ([]byte, error) {
	data, err := readFile(k.Path())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrKeyMissing
	case err != nil:
		return nil, fmt.Errorf("read vault key: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: %s", ErrKeyCorrupt, k.Path())
	}
	return key, nil
}

// Generate creates a fresh random key and replaces the key file with it.
// Secrets sealed with a previous key can no longer be opened.
func (k *VaultKey) Generate() ([]byte, error) {
	if err := mkdirAll(k.dir, 0700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	key := make([]byte, KeySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate vault key: %w", err)
	}

	tmp, err := createTemp(k.dir, "."+vaultKeyName+".*")
	if err != nil {
		return nil, fmt.Errorf("write vault key: %w", err)
	}
	// the key never sits in a file others can read, not even briefly
	err = tmp.Chmod(vaultKeyPerm)
	if err == nil {
		_, err = tmp.WriteString(hex.EncodeToString(key))
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = rename(tmp.Name(), k.Path())
	}
	if err != nil {
		remove(tmp.Name())
		return nil, fmt.Errorf("write vault key: %w", err)
	}
	return key, nil
}

// LoadOrGenerate returns the key, generating it on first use. A corrupt
// key is reported, never silently replaced.
func (k *VaultKey) LoadOrGenerate() ([]byte, error) {
	key, err := k.Load()
	if errors.Is(err, ErrKeyMissing) {
		return k.Generate()
	}
	return key, err
}

// Remove deletes the key file. Removing a missing key is not an error.
func (k *VaultKey) Remove() error {
	if err := remove(k.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove vault key: %w", err)
	}
	return nil
}
