package resilience

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffZeroFailuresStaysNearBase(t *testing.T) {
	b := NewBackoff(30*time.Second, 300*time.Second, 2, 5)

	for i := 0; i < 100; i++ {
		next := b.Next(0)
		assert.GreaterOrEqual(t, next, 24*time.Second)
		assert.LessOrEqual(t, next, 36*time.Second)
	}
}

func TestBackoffGrowsWithinJitterBounds(t *testing.T) {
	// base=30, multiplier=2, max=300: one failure lands in [48s, 72s]
	b := NewBackoff(30*time.Second, 300*time.Second, 2, 5)

	for i := 0; i < 100; i++ {
		next := b.Next(1)
		assert.GreaterOrEqual(t, next, 48*time.Second)
		assert.LessOrEqual(t, next, 72*time.Second)
	}
}

func TestBackoffCapsAtMaxInterval(t *testing.T) {
	// After 4 failures raw = 30*16 = 480s; every jittered value exceeds
	// the 300s cap, so the result is exactly the cap.
	b := NewBackoff(30*time.Second, 300*time.Second, 2, 5)

	for i := 0; i < 100; i++ {
		require.Equal(t, 300*time.Second, b.Next(4))
	}
}

func TestBackoffMaxFailuresCapsExponent(t *testing.T) {
	// With the exponent capped at 5 the computed interval for 10 observed
	// failures matches the one for 5.
	a := NewBackoffWithSource(1*time.Second, time.Hour, 2, 5, rand.NewSource(42))
	b := NewBackoffWithSource(1*time.Second, time.Hour, 2, 5, rand.NewSource(42))

	require.Equal(t, a.Next(5), b.Next(10))
}

func TestBackoffDeterministicWithSeededSource(t *testing.T) {
	a := NewBackoffWithSource(30*time.Second, 300*time.Second, 2, 5, rand.NewSource(7))
	b := NewBackoffWithSource(30*time.Second, 300*time.Second, 2, 5, rand.NewSource(7))

	for failures := 0; failures < 8; failures++ {
		require.Equal(t, a.Next(failures), b.Next(failures), "failures=%d", failures)
	}
}

func TestBackoffAlwaysPositive(t *testing.T) {
	b := NewBackoff(0, 0, 2, 5)

	for i := 0; i < 20; i++ {
		assert.GreaterOrEqual(t, b.Next(i), time.Millisecond)
	}
}
