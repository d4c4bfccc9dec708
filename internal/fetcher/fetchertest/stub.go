// Package fetchertest provides stub fetchers for tests and local runs.
package fetchertest

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	apperrors "restock-monitor/internal/errors"
)

// Result is one scripted answer.
type Result struct {
	Quantity int
	Err      error
}

// Scripted replays queued results per product id. When a product's queue
// is empty, Fetch fails.
type Scripted struct {
	mu      sync.Mutex
	results map[string][]Result
	calls   map[string]int
}

// NewScripted creates an empty Scripted fetcher.
func NewScripted() *Scripted {
	return &Scripted{
		results: make(map[string][]Result),
		calls:   make(map[string]int),
	}
}

// Push queues quantities for a product.
func (s *Scripted) Push(productID string, quantities ...int) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quantities {
		s.results[productID] = append(s.results[productID], Result{Quantity: q})
	}
	return s
}

// Fail queues a failure for a product.
func (s *Scripted) Fail(productID string, reason string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[productID] = append(s.results[productID], Result{Err: errors.New(reason)})
	return s
}

// Fetch pops the next queued result.
func (s *Scripted) Fetch(ctx context.Context, productID, storeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[productID]++
	queue := s.results[productID]
	if len(queue) == 0 {
		return 0, apperrors.NewFetchError(productID, storeID, "no scripted result", nil)
	}
	next := queue[0]
	s.results[productID] = queue[1:]

	if next.Err != nil {
		return 0, apperrors.NewFetchError(productID, storeID, "scripted", next.Err)
	}
	return next.Quantity, nil
}

// Calls returns how many times a product was fetched.
func (s *Scripted) Calls(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[productID]
}

// Random returns a uniformly random quantity in [0, Max].
type Random struct {
	Max int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a Random fetcher with a fixed seed.
func NewRandom(max int, seed int64) *Random {
	return &Random{Max: max, rng: rand.New(rand.NewSource(seed))}
}

// Fetch returns a random quantity.
func (r *Random) Fetch(ctx context.Context, productID, storeID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperrors.NewFetchError(productID, storeID, "cancelled", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(r.Max + 1), nil
}

// Func adapts a function to the fetcher interface.
type Func func(ctx context.Context, productID, storeID string) (int, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, productID, storeID string) (int, error) {
	return f(ctx, productID, storeID)
}
