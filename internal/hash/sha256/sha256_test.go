package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestFingerprintSeparatesFields(t *testing.T) {
	t.Parallel()

	h := New()
	assert.Equal(t, h.Fingerprint("economy", "1/2"), h.Fingerprint("economy", "1/2"))
	assert.NotEqual(t, h.Fingerprint("ab", "c"), h.Fingerprint("a", "bc"))
	assert.Len(t, h.Fingerprint("x"), 64)
}
