package idempotency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("book", "doc-1", "2026-09-07", "10:00", "10:30")
	b := Fingerprint("book", "doc-1", "2026-09-07", "10:00", "10:30")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestFingerprintDistinguishesPayloads(t *testing.T) {
	base := Fingerprint("book", "doc-1", "2026-09-07", "10:00", "10:30")

	require.NotEqual(t, base, Fingerprint("reschedule", "doc-1", "2026-09-07", "10:00", "10:30"))
	require.NotEqual(t, base, Fingerprint("book", "doc-2", "2026-09-07", "10:00", "10:30"))
	require.NotEqual(t, base, Fingerprint("book", "doc-1", "2026-09-07", "10:30", "11:00"))

	// Field boundaries matter: joined values must not collide.
	require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}
