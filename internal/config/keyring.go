package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// The session lives under one fixed keyring entry per user.
const (
	keyringService = "vrt-cli"
	keyringUser    = "session"
)

// ErrKeyringUnavailable indicates the OS keyring is not accessible.
var ErrKeyringUnavailable = errors.New("keyring unavailable")

func keyringErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrKeyringUnavailable, op, err)
}

// keyringGet returns the stored session, or "" when none is stored.
func keyringGet() (string, error) {
	session, err := keyring.Get(keyringService, keyringUser)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", nil
	case err != nil:
		return "", keyringErr("get", err)
	}
	return session, nil
}

func keyringSet(session string) error {
	if err := keyring.Set(keyringService, keyringUser, session); err != nil {
		return keyringErr("set", err)
	}
	return nil
}

// keyringDelete succeeds when there is nothing to delete.
func keyringDelete() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return keyringErr("delete", err)
	}
	return nil
}
