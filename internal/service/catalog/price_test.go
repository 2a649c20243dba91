package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceForDeterministic(t *testing.T) {
	a := PriceFor(109, 12, "wywiad.pdf")
	b := PriceFor(109, 12, "wywiad.pdf")

	require.Equal(t, a, b)
}

func TestPriceForBuckets(t *testing.T) {
	buckets := map[float64]struct{}{19: {}, 29: {}, 39: {}, 49: {}, 59: {}, 69: {}}

	for base := 10; base <= 200; base += 17 {
		for count := 1; count <= 15; count += 2 {
			for i := 0; i < 10; i++ {
				p := PriceFor(float64(base), count, fmt.Sprintf("doc-%02d.pdf", i))
				require.Contains(t, buckets, p, "base=%d count=%d i=%d", base, count, i)
			}
		}
	}
}

func TestPriceForSingleCheapDocument(t *testing.T) {
	// One document, base 19: shrink 0.48 puts it on the lowest bucket and
	// "zgoda.pdf" draws a zero offset.
	require.Equal(t, float64(19), PriceFor(19, 1, "zgoda.pdf"))
}

func TestPriceForOffsets(t *testing.T) {
	// Base 109 with 12 members shrinks to 32.70 which snaps to 29. The keys
	// below draw the zero, +10 and -10 offsets respectively.
	require.Equal(t, float64(29), PriceFor(109, 12, "zgoda.pdf"))
	require.Equal(t, float64(39), PriceFor(109, 12, "wywiad.pdf"))
	require.Equal(t, float64(19), PriceFor(109, 12, "karta-zabiegowa.pdf"))
}

func TestPriceForClampsLow(t *testing.T) {
	// 19 * 0.30 snaps to 19 and a -10 offset would land at 9; the clamp
	// brings it back onto the lowest bucket.
	require.Equal(t, float64(19), PriceFor(19, 12, "karta-zabiegowa.pdf"))
}

func TestPriceForDefaultsBase(t *testing.T) {
	// Non-positive base falls back to the default: 79 * 0.48 snaps to 39.
	require.Equal(t, float64(39), PriceFor(0, 1, "zgoda.pdf"))
	require.Equal(t, PriceFor(0, 1, "zgoda.pdf"), PriceFor(-5, 1, "zgoda.pdf"))
}

func TestSnapToBucketTieGoesLower(t *testing.T) {
	// 24 is equidistant from 19 and 29.
	require.Equal(t, float64(19), snapToBucket(24))
	require.Equal(t, float64(29), snapToBucket(24.01))
}
