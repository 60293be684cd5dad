// Package encryption seals secrets of the fallback credential vault with
// AES-256-GCM.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

const sealPrefix = "wfv1"

// ErrMalformed is returned for data that was not produced by Seal.
var ErrMalformed = errors.New("encryption: malformed ciphertext")

var randReader io.Reader = rand.Reader

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts value with key. account is bound as additional data so a
// sealed secret cannot be moved to another account.
func Seal(value, account string, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sealPrefix)+len(nonce)+len(value)+gcm.Overhead())
	out = append(out, sealPrefix...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, []byte(value), []byte(account)), nil
}

// Open decrypts data produced by Seal for the same account and key.
func Open(data []byte, account string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(data) < len(sealPrefix)+gcm.NonceSize() || string(data[:len(sealPrefix)]) != sealPrefix {
		return "", ErrMalformed
	}
	data = data[len(sealPrefix):]
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(account))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
