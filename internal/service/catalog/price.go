package catalog

import (
	"math"
	"strconv"

	"github.com/Stanislav-it/docubeauty/internal/util"
)

const (
	defaultBasePrice = 79

	priceMin = 19
	priceMax = 69

	offsetSeedLen = 8
)

var (
	priceBuckets = []float64{19, 29, 39, 49, 59, 69}
	priceOffsets = []float64{0, 0, 0, 10, -10}
)

// PriceFor derives a per-file price from a category base price. Pure function
// of its inputs: the same member key always yields the same price. More
// members means a cheaper per-file price; results always land on one of the
// fixed buckets.
func PriceFor(basePrice float64, memberCount int, memberKey string) float64 {
	if basePrice <= 0 {
		basePrice = defaultBasePrice
	}
	if memberCount < 1 {
		memberCount = 1
	}

	base := snapToBucket(basePrice * shrinkFactor(memberCount))

	// Deterministic per-file variation so not every file in a category costs
	// the same.
	raw := base + priceOffsets[offsetSeed(memberKey)%uint64(len(priceOffsets))]
	raw = math.Max(priceMin, math.Min(priceMax, raw))

	return snapToBucket(raw)
}

func shrinkFactor(memberCount int) float64 {
	switch {
	case memberCount >= 10:
		return 0.30
	case memberCount >= 7:
		return 0.34
	case memberCount >= 5:
		return 0.38
	case memberCount >= 3:
		return 0.42
	default:
		return 0.48
	}
}

// snapToBucket picks the closest bucket; on an exact tie the lower bucket
// wins (buckets are scanned ascending and only a strictly smaller distance
// replaces the choice).
func snapToBucket(v float64) float64 {
	best := priceBuckets[0]
	bestDist := math.Abs(priceBuckets[0] - v)
	for _, b := range priceBuckets[1:] {
		if d := math.Abs(b - v); d < bestDist {
			best = b
			bestDist = d
		}
	}

	return best
}

func offsetSeed(memberKey string) uint64 {
	seed, err := strconv.ParseUint(util.ShortHash(memberKey, offsetSeedLen), 16, 64)
	if err != nil {
		return 0
	}

	return seed
}
