// Package detector classifies consecutive stock samples.
package detector

// Kind is the outcome of comparing two consecutive samples.
type Kind string

const (
	NoChange Kind = "NO_CHANGE"
	Restock  Kind = "RESTOCK"
)

// Result is a classification with its delta. Delta is only meaningful for
// Restock, where it is always positive.
type Result struct {
	Kind  Kind
	Delta int
}

// IsRestock reports whether the result should trigger an alert.
func (r Result) IsRestock() bool {
	return r.Kind == Restock
}

// Classify compares the current quantity with the previous sample.
//
// A nil previous means the item has no history: the first observation is a
// baseline and never a restock. Only increases count; equal or lower
// quantities are NoChange.
func Classify(previous *int, current int) Result {
	if previous == nil {
		return Result{Kind: NoChange}
	}
	if current > *previous {
		return Result{Kind: Restock, Delta: current - *previous}
	}
	return Result{Kind: NoChange}
}
