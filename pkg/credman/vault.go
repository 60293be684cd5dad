package credman

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/credman/encryption"
	"github.com/warpdl/warpfetch/pkg/credman/keyring"
	"github.com/warpdl/warpfetch/pkg/credman/types"
)

const vaultFileName = "vault.db"

// Vault is an encrypted credential file used when the system keyring is not
// available. Each secret is sealed to its account with the keyring.VaultKey
// kept in the same directory.
type Vault struct {
	fs   afero.Fs
	path string
	keys *keyring.VaultKey
	now  func() time.Time
}

// NewVault returns a vault stored in dir on fs. The vault key is always
// kept on the OS filesystem.
func NewVault(fs afero.Fs, dir string) *Vault {
	return &Vault{
		fs:   fs,
		path: filepath.Join(dir, vaultFileName),
		keys: keyring.NewVaultKey(dir),
		now:  time.Now,
	}
}

func (v *Vault) load() (map[string]types.Credential, error) {
	creds := make(map[string]types.Credential)
	data, err := afero.ReadFile(v.fs, v.path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return creds, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode vault: %w", err)
	}
	return creds, nil
}

func (v *Vault) save(creds map[string]types.Credential) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encode vault: %w", err)
	}
	if err := v.fs.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return err
	}
	tmp := v.path + ".tmp"
	if err := afero.WriteFile(v.fs, tmp, buf.Bytes(), 0600); err != nil {
		return err
	}
	if err := v.fs.Rename(tmp, v.path); err != nil {
		v.fs.Remove(tmp)
		return err
	}
	return nil
}

// Set seals secret for account and stores it, replacing any previous one.
func (v *Vault) Set(account, secret string) error {
	key, err := v.keys.LoadOrGenerate()
	if err != nil {
		return fmt.Errorf("vault key: %w", err)
	}
	creds, err := v.load()
	if err != nil {
		return err
	}
	sealed, err := encryption.Seal(secret, account, key)
	if err != nil {
		return err
	}
	creds[account] = types.Credential{Account: account, Sealed: sealed, Updated: v.now()}
	return v.save(creds)
}

// Get returns the secret of account, or keyring.ErrNotFound.
func (v *Vault) Get(account string) (string, error) {
	creds, err := v.load()
	if err != nil {
		return "", err
	}
	cred, ok := creds[account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	key, err := v.keys.Load()
	if err != nil {
		return "", fmt.Errorf("vault key: %w", err)
	}
	return encryption.Open(cred.Sealed, account, key)
}

// Delete removes the secret of account, or returns keyring.ErrNotFound.
func (v *Vault) Delete(account string) error {
	creds, err := v.load()
	if err != nil {
		return err
	}
	if _, ok := creds[account]; !ok {
		return keyring.ErrNotFound
	}
	delete(creds, account)
	return v.save(creds)
}

// Accounts lists the accounts stored in the vault.
func (v *Vault) Accounts() ([]string, error) {
	creds, err := v.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(creds))
	for account := range creds {
		out = append(out, account)
	}
	return out, nil
}
