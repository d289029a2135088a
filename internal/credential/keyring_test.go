package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryRing(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	prev := opener
	opener = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { opener = prev })
}

func TestSetGetDelete(t *testing.T) {
	memoryRing(t)

	require.NoError(t, Set("imap:me@example.com", "hunter2"))
	got, err := Get("imap:me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	require.NoError(t, Delete("imap:me@example.com"))
	_, err = Get("imap:me@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIMAPPasswordPrefersEnv(t *testing.T) {
	memoryRing(t)
	require.NoError(t, Set(IMAPKey("Me@Example.com"), "from-ring"))

	t.Setenv("INBOXSWEEP_IMAP_PASSWORD", "")
	pw, err := IMAPPassword("me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "from-ring", pw)

	t.Setenv("INBOXSWEEP_IMAP_PASSWORD", "from-env")
	pw, err = IMAPPassword("me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestIMAPPasswordMissing(t *testing.T) {
	memoryRing(t)
	t.Setenv("INBOXSWEEP_IMAP_PASSWORD", "")

	_, err := IMAPPassword("nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
