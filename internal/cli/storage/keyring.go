package storage

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "careerpath-cli"

// KeyringStore persists values in the OS keychain/credential manager
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed store. An empty service uses the CLI default.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = keyringService
	}
	return &KeyringStore{service: service}
}

// keyringKey returns the item name used in the credential manager
func keyringKey(key string) string {
	return fmt.Sprintf("session-%s", key)
}

func (k *KeyringStore) Get(key string) (string, bool, error) {
	value, err := keyring.Get(k.service, keyringKey(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (k *KeyringStore) Set(key, value string) error {
	if err := keyring.Set(k.service, keyringKey(key), value); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (k *KeyringStore) Remove(key string) error {
	if err := keyring.Delete(k.service, keyringKey(key)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return &Error{Op: "remove", Key: key, Err: err}
	}
	return nil
}
