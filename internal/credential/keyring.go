// Package credential keeps mailbox passwords in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "inboxsweep"

// ErrNotFound is returned when neither the environment nor the keyring
// holds the requested credential.
var ErrNotFound = errors.New("credential not found")

// opener is swapped in tests for an in-memory keyring.
var opener = openKeyring

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/inboxsweep/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("inboxsweep-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := opener()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := opener()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "inboxsweep " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := opener()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// IMAPKey is the keyring key holding the IMAP password for user.
func IMAPKey(user string) string {
	return "imap:" + strings.ToLower(strings.TrimSpace(user))
}

// IMAPPassword looks up the IMAP password for user. The
// INBOXSWEEP_IMAP_PASSWORD environment variable wins over the keyring.
func IMAPPassword(user string) (string, error) {
	if pw := os.Getenv("INBOXSWEEP_IMAP_PASSWORD"); pw != "" {
		return pw, nil
	}
	pw, err := Get(IMAPKey(user))
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", fmt.Errorf("getting credential %q: %w", IMAPKey(user), ErrNotFound)
	}
	return pw, nil
}
