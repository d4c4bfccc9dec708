package detector

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: over any sequence of quantities the first is never a restock and
// every later one is a restock exactly when it exceeds its predecessor, with
// delta equal to the difference.
func TestProperty_SequenceClassification(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("classification follows strict increases", prop.ForAll(
		func(quantities []int) bool {
			var previous *int
			for i, q := range quantities {
				got := Classify(previous, q)

				if i == 0 {
					if got.Kind != NoChange {
						t.Logf("First sample %d classified as %s", q, got.Kind)
						return false
					}
				} else {
					prev := quantities[i-1]
					if (q > prev) != got.IsRestock() {
						t.Logf("Sample %d after %d classified as %s", q, prev, got.Kind)
						return false
					}
					if got.IsRestock() && got.Delta != q-prev {
						t.Logf("Delta %d, want %d", got.Delta, q-prev)
						return false
					}
				}

				q := q
				previous = &q
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("restock delta is always positive", prop.ForAll(
		func(previous, current int) bool {
			got := Classify(&previous, current)
			return !got.IsRestock() || got.Delta > 0
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
