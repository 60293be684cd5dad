// Package keyring stores secrets in the operating system keyring, with a
// file-based key store for the encrypted fallback vault.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service secrets are filed under.
const DefaultService = "warpfetch"

// ErrNotFound is returned when no secret is stored for an account.
var ErrNotFound = errors.New("keyring: secret not found")

// Keyring files secrets per account under one service.
type Keyring struct {
	Service string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

func NewKeyring() *Keyring {
	return &Keyring{Service: DefaultService}
}

func (k *Keyring) Set(account, secret string) error {
	return keyringSet(k.Service, account, secret)
}

// Get returns the secret of account, or ErrNotFound.
func (k *Keyring) Get(account string) (string, error) {
	secret, err := keyringGet(k.Service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return secret, err
}

// Delete removes the secret of account, or returns ErrNotFound.
func (k *Keyring) Delete(account string) error {
	err := keyringDelete(k.Service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
