// Package monitor runs the sampling cycle: fetch every tracked item, record
// the sample, detect restocks and send alerts.
package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"restock-monitor/internal/detector"
	"restock-monitor/internal/fetcher"
	"restock-monitor/internal/logging"
	"restock-monitor/internal/models"
	"restock-monitor/internal/notify"
	"restock-monitor/internal/store"
)

// Outcome is what happened to one item during a cycle.
type Outcome string

const (
	OutcomeRecorded      Outcome = "recorded"
	OutcomeRestock       Outcome = "restock"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeStorageFailed Outcome = "storage_failed"
	OutcomeCancelled     Outcome = "cancelled"
)

// ItemReport describes one item's processing.
type ItemReport struct {
	ItemID   string               `json:"item_id"`
	Outcome  Outcome              `json:"outcome"`
	Quantity int                  `json:"quantity"`
	Previous *int                 `json:"previous,omitempty"`
	Event    *models.RestockEvent `json:"event,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Report summarizes one cycle. Partial completion is still a completed cycle.
type Report struct {
	CycleID    string       `json:"cycle_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Items      []ItemReport `json:"items"`
}

// Count returns how many items ended with the given outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == o {
			n++
		}
	}
	return n
}

// Recorded returns how many samples were persisted.
func (r Report) Recorded() int {
	return r.Count(OutcomeRecorded) + r.Count(OutcomeRestock)
}

// Cycle is the unit of periodic execution. It holds no state between runs;
// the store is the only memory. Callers must not run two cycles at once;
// the scheduler serializes them.
type Cycle struct {
	items       []models.TrackedItem
	fetcher     fetcher.Fetcher
	store       store.DataStore
	notifier    notify.Notifier
	logger      zerolog.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

// Option configures a Cycle.
type Option func(*Cycle)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cycle) { c.now = now }
}

// WithConcurrency bounds parallel fetches. Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(c *Cycle) { c.concurrency = n }
}

// WithIDGenerator overrides cycle and event id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Cycle) { c.newID = newID }
}

// NewCycle creates a new Cycle over items in declaration order.
func NewCycle(items []models.TrackedItem, f fetcher.Fetcher, st store.DataStore, n notify.Notifier, logger zerolog.Logger, opts ...Option) *Cycle {
	c := &Cycle{
		items:       items,
		fetcher:     f,
		store:       st,
		notifier:    n,
		logger:      logger.With().Str("component", "monitor").Logger(),
		concurrency: 1,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Items returns the tracked items.
func (c *Cycle) Items() []models.TrackedItem {
	return c.items
}

type fetchResult struct {
	quantity   int
	observedAt time.Time
	err        error
}

// Run executes one cycle. Fetches run concurrently; results are then
// processed one item at a time in declaration order. No per-item error
// escapes: each lands in the report.
func (c *Cycle) Run(ctx context.Context) Report {
	report := Report{
		CycleID:   c.newID(),
		StartedAt: c.now().UTC(),
		Items:     make([]ItemReport, 0, len(c.items)),
	}
	logger := logging.WithCycle(c.logger, report.CycleID)
	logger.Info().Int("items", len(c.items)).Msg("Monitoring cycle started")

	results := c.fetchAll(ctx)

	for i, item := range c.items {
		itemLogger := logging.WithItem(logger, item.ID)
		if ctx.Err() != nil {
			report.Items = append(report.Items, ItemReport{ItemID: item.ID, Outcome: OutcomeCancelled, Error: ctx.Err().Error()})
			continue
		}
		report.Items = append(report.Items, c.process(ctx, itemLogger, item, results[i]))
	}

	report.FinishedAt = c.now().UTC()
	logger.Info().
		Int("recorded", report.Recorded()).
		Int("restocks", report.Count(OutcomeRestock)).
		Int("fetch_failed", report.Count(OutcomeFetchFailed)).
		Int("storage_failed", report.Count(OutcomeStorageFailed)).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Monitoring cycle finished")

	return report
}

func (c *Cycle) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(c.items))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, item := range c.items {
		i, item := i, item
		g.Go(func() error {
			q, err := c.fetcher.Fetch(ctx, item.RemoteProductID, item.RemoteStoreID)
			results[i] = fetchResult{quantity: q, observedAt: c.now().UTC(), err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

func (c *Cycle) process(ctx context.Context, logger zerolog.Logger, item models.TrackedItem, res fetchResult) ItemReport {
	rep := ItemReport{ItemID: item.ID}

	if res.err != nil {
		logger.Warn().Err(res.err).Msg("Fetch failed, skipping item until next cycle")
		rep.Outcome, rep.Error = OutcomeFetchFailed, res.err.Error()
		return rep
	}
	rep.Quantity = res.quantity

	// A failed read of the previous sample must not cost us the new one.
	previous, latestErr := c.store.Latest(ctx, item.ID)
	if latestErr != nil {
		logger.Error().Err(latestErr).Msg("Reading previous sample failed")
	}

	sample, err := c.store.Record(ctx, item, res.quantity, res.observedAt)
	if err != nil {
		logger.Error().Err(err).Int("quantity", res.quantity).Msg("Recording sample failed")
		rep.Outcome, rep.Error = OutcomeStorageFailed, err.Error()
		return rep
	}
	logging.LogSample(logger, item.ID, sample.Quantity, sample.ObservedAt)

	if latestErr != nil {
		rep.Outcome, rep.Error = OutcomeRecorded, latestErr.Error()
		return rep
	}

	var prevQty *int
	if previous != nil {
		q := previous.Quantity
		prevQty = &q
		rep.Previous = &q
	}

	result := detector.Classify(prevQty, sample.Quantity)
	if !result.IsRestock() {
		rep.Outcome = OutcomeRecorded
		return rep
	}

	logging.LogRestock(logger, item.ID, *prevQty, sample.Quantity)
	event := c.notifyRestock(ctx, logger, item, *prevQty, sample, result.Delta)
	rep.Outcome, rep.Event = OutcomeRestock, &event
	return rep
}

// notifyRestock logs the event as pending, attempts delivery once and
// settles the status. Nothing here can undo the recorded sample.
func (c *Cycle) notifyRestock(ctx context.Context, logger zerolog.Logger, item models.TrackedItem, previous int, sample models.StockSample, delta int) models.RestockEvent {
	event := models.RestockEvent{
		ID:               c.newID(),
		ItemID:           item.ID,
		PreviousQuantity: previous,
		NewQuantity:      sample.Quantity,
		Delta:            delta,
		DeliveryStatus:   models.DeliveryPending,
		DetectedAt:       sample.ObservedAt,
		CreatedAt:        c.now().UTC(),
	}
	logger = logger.With().Str("event_id", event.ID).Logger()

	logged := true
	if err := c.store.SaveRestock(ctx, &event); err != nil {
		logger.Error().Err(err).Msg("Saving restock event failed")
		logged = false
	}

	receipt, sendErr := c.notifier.Send(ctx, notify.FormatRestock(item, event))
	if sendErr != nil {
		logger.Warn().Err(sendErr).Msg("Restock alert delivery failed")
		event.DeliveryStatus = models.DeliveryFailed
	} else {
		logger.Info().Str("channel", receipt.Channel).Str("reference", receipt.Reference).Msg("Restock alert sent")
		event.DeliveryStatus = models.DeliverySent
		event.DeliveryReference = receipt.Reference
	}

	if logged {
		if err := c.store.SetDeliveryStatus(ctx, event.ID, event.DeliveryStatus, event.DeliveryReference); err != nil {
			logger.Error().Err(err).Msg("Updating delivery status failed")
		}
	}

	return event
}
