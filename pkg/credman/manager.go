// Package credman resolves request passwords without putting them on the
// command line. Secrets live in the OS keyring under the "warpfetch"
// service; when the keyring cannot be reached they are kept in an encrypted
// vault file instead.
package credman

import (
	"errors"

	"github.com/spf13/afero"
	"github.com/warpdl/warpfetch/pkg/credman/keyring"
	"github.com/warpdl/warpfetch/pkg/credman/types"
)

// ErrNotFound is returned when neither store holds a secret for an account.
var ErrNotFound = keyring.ErrNotFound

// SecretStore is a per-account secret store.
type SecretStore interface {
	Set(account, secret string) error
	Get(account string) (string, error)
	Delete(account string) error
}

// Manager stores secrets in the keyring first and falls back to the vault.
type Manager struct {
	primary  SecretStore
	fallback SecretStore
}

// NewManager returns a Manager using the system keyring and a vault in
// configDir.
func NewManager(configDir string) *Manager {
	return NewManagerWith(keyring.NewKeyring(), NewVault(afero.NewOsFs(), configDir))
}

func NewManagerWith(primary, fallback SecretStore) *Manager {
	return &Manager{primary: primary, fallback: fallback}
}

// Set stores the password of user on host.
func (m *Manager) Set(user, host, password string) error {
	account := types.Account(user, host)
	if err := m.primary.Set(account, password); err != nil {
		return m.fallback.Set(account, password)
	}
	return nil
}

// Password returns the password of user on host.
func (m *Manager) Password(user, host string) (string, error) {
	account := types.Account(user, host)
	secret, err := m.primary.Get(account)
	if err == nil {
		return secret, nil
	}
	secret, ferr := m.fallback.Get(account)
	if ferr == nil {
		return secret, nil
	}
	if errors.Is(ferr, ErrNotFound) {
		return "", err
	}
	return "", ferr
}

// Delete removes the password of user on host from both stores. It returns
// ErrNotFound only when neither store held it.
func (m *Manager) Delete(user, host string) error {
	account := types.Account(user, host)
	perr := m.primary.Delete(account)
	ferr := m.fallback.Delete(account)
	switch {
	case perr == nil || ferr == nil:
		return nil
	case errors.Is(perr, ErrNotFound):
		return ferr
	default:
		return perr
	}
}
