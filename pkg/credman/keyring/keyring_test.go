package keyring

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringSetGetDelete(t *testing.T) {
	keyring.MockInit()

	kr := NewKeyring()
	if kr.Service != DefaultService {
		t.Fatalf("service = %q, want %q", kr.Service, DefaultService)
	}
	if err := kr.Set("alice@example.com", "hunter2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := kr.Get("alice@example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("Get = %q, want hunter2", got)
	}
	if err := kr.Delete("alice@example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kr.Get("alice@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v, want ErrNotFound", err)
	}
	if err := kr.Delete("alice@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: %v, want ErrNotFound", err)
	}
}

func TestKeyringAccountsAreSeparate(t *testing.T) {
	keyring.MockInit()

	kr := NewKeyring()
	_ = kr.Set("alice@a.example", "one")
	_ = kr.Set("alice@b.example", "two")
	got, err := kr.Get("alice@a.example")
	if err != nil || got != "one" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no dbus"))

	kr := NewKeyring()
	if err := kr.Set("a@h", "s"); err == nil {
		t.Fatal("expected Set error")
	}
	_, err := kr.Get("a@h")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: %v, want a provider error", err)
	}
}

func TestKeyringSeams(t *testing.T) {
	origSet, origGet, origDelete := keyringSet, keyringGet, keyringDelete
	defer func() {
		keyringSet, keyringGet, keyringDelete = origSet, origGet, origDelete
	}()

	var setService, setUser, setValue string
	keyringSet = func(service, user, value string) error {
		setService, setUser, setValue = service, user, value
		return nil
	}
	keyringGet = func(service, user string) (string, error) {
		return "", keyring.ErrNotFound
	}
	keyringDelete = func(service, user string) error {
		return errors.New("locked")
	}

	kr := &Keyring{Service: "custom"}
	if err := kr.Set("u@h", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if setService != "custom" || setUser != "u@h" || setValue != "v" {
		t.Fatalf("unexpected set call: %q %q %q", setService, setUser, setValue)
	}
	if _, err := kr.Get("u@h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: %v, want ErrNotFound", err)
	}
	if err := kr.Delete("u@h"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: %v, want locked", err)
	}
}
