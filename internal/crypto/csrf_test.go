package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFProtection(t *testing.T) {
	key := []byte("csrf-signing-key-that-is-32-byte")
	csrf := NewCSRFProtection(key, time.Hour)

	token, err := csrf.Generate("login")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		assert.True(t, csrf.Validate("login", token))
	})

	t.Run("wrong purpose", func(t *testing.T) {
		assert.False(t, csrf.Validate("logout", token))
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.SplitN(token, ":", 3)
		assert.False(t, csrf.Validate("login", parts[0]+":"+parts[1]+":AAAA"))
	})

	t.Run("malformed", func(t *testing.T) {
		assert.False(t, csrf.Validate("login", ""))
		assert.False(t, csrf.Validate("login", "a:b"))
		assert.False(t, csrf.Validate("login", "a:notanumber:c"))
	})

	t.Run("different key", func(t *testing.T) {
		other := NewCSRFProtection([]byte("another-signing-key-of-32-bytes!"), time.Hour)
		assert.False(t, other.Validate("login", token))
	})

	t.Run("expired", func(t *testing.T) {
		later := NewCSRFProtection(key, time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		assert.False(t, later.Validate("login", token))
	})
}
