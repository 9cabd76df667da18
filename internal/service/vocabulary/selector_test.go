package vocabulary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/fluent-tutor/backend/internal/model/vocabulary"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(DateLayout, s)
	require.NoError(t, err)
	return d
}

func terms(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Term
	}
	return out
}

func TestDateSeed(t *testing.T) {
	require.Equal(t, uint64(20240601), DateSeed(day(t, "2024-06-01")))
	require.Equal(t, uint64(19991231), DateSeed(time.Date(1999, 12, 31, 23, 59, 0, 0, time.UTC)))
}

func TestSelectDailyIsDeterministic(t *testing.T) {
	catalog := model.Default().Words

	first := SelectDaily(catalog, day(t, "2024-06-01"), 5)
	second := SelectDaily(catalog, day(t, "2024-06-01").Add(20*time.Hour), 5)
	require.Len(t, first, 5)
	require.Equal(t, terms(first), terms(second))

	// some later day draws a different set
	differs := false
	for i := 1; i <= 30 && !differs; i++ {
		other := SelectDaily(catalog, day(t, "2024-06-01").AddDate(0, 0, i), 5)
		differs = !equalStrings(terms(first), terms(other))
	}
	require.True(t, differs)
}

func TestSelectDailyClampsCount(t *testing.T) {
	catalog := model.Default().Words

	all := SelectDaily(catalog, day(t, "2024-06-01"), len(catalog)+7)
	require.Len(t, all, len(catalog))
	require.ElementsMatch(t, terms(catalog), terms(all))

	require.Empty(t, SelectDaily(catalog, day(t, "2024-06-01"), 0))
	require.Empty(t, SelectDaily(catalog, day(t, "2024-06-01"), -3))
	require.Empty(t, SelectDaily([]model.Item{}, day(t, "2024-06-01"), 4))
}

func TestSelectDailyHasNoDuplicatesAndKeepsCatalog(t *testing.T) {
	catalog := model.Default().Words
	before := terms(catalog)

	for i := 0; i < 60; i++ {
		picked := terms(SelectDaily(catalog, day(t, "2025-01-01").AddDate(0, 0, i), 10))
		seen := map[string]bool{}
		for _, term := range picked {
			require.False(t, seen[term], "duplicate %s", term)
			seen[term] = true
		}
	}
	require.Equal(t, before, terms(catalog))
}

func TestServiceDailyAndVisual(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*60*60)

	// 20:00 UTC on May 31 is already June 1 in Shanghai
	now := time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC)
	svc := NewService(model.Default(), Config{Location: shanghai, Now: func() time.Time { return now }})

	today, err := svc.ParseDate("")
	require.NoError(t, err)
	words := svc.Daily(today, 0)
	require.Equal(t, "2024-06-01", words.Date)
	require.Len(t, words.Items, 10)

	explicit, err := svc.ParseDate("2024-06-01")
	require.NoError(t, err)
	require.Equal(t, terms(words.Items), terms(svc.Daily(explicit, 0).Items))

	cards := svc.Visual(today, 3)
	require.Len(t, cards.Cards, 3)
	require.Len(t, svc.Visual(today, 0).Cards, 8)

	_, err = svc.ParseDate("06/01/2024")
	require.ErrorIs(t, err, ErrInvalidDate)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
