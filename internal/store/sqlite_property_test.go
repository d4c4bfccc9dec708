package store

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any set of samples, InRange yields at most one row per
// calendar day, ascending, each carrying that day's true maximum.
func TestProperty_InRangeDailyMaximum(t *testing.T) {
	st := newTestStore(t, nil)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := 0

	properties.Property("daily maxima match a brute-force grouping", prop.ForAll(
		func(hours []int, quantities []int) bool {
			ctx := context.Background()
			run++
			item := testItem
			item.ID = fmt.Sprintf("prop_%d", run)

			n := len(hours)
			if len(quantities) < n {
				n = len(quantities)
			}

			want := map[time.Time]int{}
			for i := 0; i < n; i++ {
				at := base.Add(time.Duration(hours[i]) * time.Hour)
				if _, err := st.Record(ctx, item, quantities[i], at); err != nil {
					t.Logf("Record failed: %v", err)
					return false
				}
				day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
				if q, ok := want[day]; !ok || quantities[i] > q {
					want[day] = quantities[i]
				}
			}

			cur, err := st.InRange(ctx, item.ID, base, base.AddDate(0, 0, 30))
			if err != nil {
				t.Logf("InRange failed: %v", err)
				return false
			}
			got, err := cur.All()
			if err != nil {
				t.Logf("Cursor failed: %v", err)
				return false
			}

			if len(got) != len(want) {
				t.Logf("Expected %d days, got %d", len(want), len(got))
				return false
			}
			if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Day.Before(got[j].Day) }) {
				t.Logf("Days not ascending: %+v", got)
				return false
			}
			for _, row := range got {
				if want[row.Day] != row.Quantity {
					t.Logf("Day %s: expected %d, got %d", row.Day, want[row.Day], row.Quantity)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 24*20)),
		gen.SliceOf(gen.IntRange(0, 500)),
	))

	properties.Property("record is immediately visible to latest", prop.ForAll(
		func(quantity int, offsetMinutes int) bool {
			ctx := context.Background()
			run++
			item := testItem
			item.ID = fmt.Sprintf("latest_%d", run)
			at := base.Add(time.Duration(offsetMinutes) * time.Minute)

			if _, err := st.Record(ctx, item, quantity, at); err != nil {
				return false
			}
			latest, err := st.Latest(ctx, item.ID)
			if err != nil || latest == nil {
				return false
			}
			return latest.Quantity == quantity && latest.ObservedAt.Equal(at)
		},
		gen.IntRange(0, 10000),
		gen.IntRange(0, 60*24*365),
	))

	properties.TestingRun(t)
}
