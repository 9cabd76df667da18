package vocabulary

import (
	"math/rand/v2"
	"time"
)

// DateSeed returns the calendar date of t as the integer YYYYMMDD.
func DateSeed(t time.Time) uint64 {
	y, m, d := t.Date()
	return uint64(y*10000 + int(m)*100 + d)
}

// SelectDaily samples count items from catalog without replacement. The
// result depends only on (catalog, date, count): each call uses its own
// generator seeded with the date. count is clamped to [0, len(catalog)].
func SelectDaily[T any](catalog []T, date time.Time, count int) []T {
	if count > len(catalog) {
		count = len(catalog)
	}
	if count <= 0 {
		return []T{}
	}

	seed := DateSeed(date)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	// partial Fisher-Yates over indices leaves the catalog untouched
	idx := make([]int, len(catalog))
	for i := range idx {
		idx[i] = i
	}
	out := make([]T, count)
	for i := 0; i < count; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = catalog[idx[i]]
	}
	return out
}
