// Package query answers operator questions: the live quantity of an item
// and its daily restock timeline.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/fetcher"
	"restock-monitor/internal/models"
	"restock-monitor/internal/store"
	"restock-monitor/pkg/utils"
)

// Service is read-only with respect to the sample store. Current never
// records what it fetches, so the next scheduled cycle still compares
// against the last scheduled sample.
type Service struct {
	items   []models.TrackedItem
	fetcher fetcher.Fetcher
	samples store.SampleStore
	logger  zerolog.Logger
	now     func() time.Time
	timeout time.Duration

	group singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFetchTimeout bounds the shared upstream request of Current.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a new Service.
func NewService(items []models.TrackedItem, f fetcher.Fetcher, samples store.SampleStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		items:   items,
		fetcher: f,
		samples: samples,
		logger:  logger.With().Str("component", "query").Logger(),
		now:     time.Now,
		timeout: fetcher.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Items returns the tracked items in declaration order.
func (s *Service) Items() []models.TrackedItem {
	return s.items
}

// Item resolves an item id. An empty id selects the first tracked item.
func (s *Service) Item(itemID string) (models.TrackedItem, error) {
	if itemID == "" && len(s.items) > 0 {
		return s.items[0], nil
	}
	for _, item := range s.items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return models.TrackedItem{}, apperrors.Wrapf(apperrors.ErrItemNotFound, "item %q", itemID)
}

// Current fetches the live quantity. Concurrent calls for the same item
// share one upstream request, which outlives any single caller: a caller
// that gives up returns its own context error and leaves the rest waiting.
func (s *Service) Current(ctx context.Context, itemID string) (int, error) {
	item, err := s.Item(itemID)
	if err != nil {
		return 0, err
	}

	ch := s.group.DoChan(item.ID, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetcher.Fetch(fetchCtx, item.RemoteProductID, item.RemoteStoreID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return 0, apperrors.NewFetchError(item.RemoteProductID, item.RemoteStoreID, "cancelled", ctx.Err())
	}
	if res.Err != nil {
		s.logger.Warn().Err(res.Err).Str("item_id", item.ID).Msg("On-demand fetch failed")
		return 0, res.Err
	}

	qty := res.Val.(int)
	s.logger.Debug().Str("item_id", item.ID).Int("quantity", qty).Bool("shared", res.Shared).Msg("On-demand fetch")
	return qty, nil
}

// Timeline returns one row per day with samples in the period, ascending.
// A day is flagged as a restock when its maximum exceeds the previous
// row's maximum. This compares daily aggregates and is independent of the
// per-sample detector used by the monitoring cycle.
func (s *Service) Timeline(ctx context.Context, itemID string, period models.Period) ([]models.TimelineRow, error) {
	if !period.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrUnknownPeriod, "period %q", period)
	}
	item, err := s.Item(itemID)
	if err != nil {
		return nil, err
	}

	until := s.now()
	since := until.AddDate(0, 0, -period.Days())

	cur, err := s.samples.InRange(ctx, item.ID, since, until)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var rows []models.TimelineRow
	for cur.Next() {
		day := cur.Row()
		row := models.TimelineRow{Day: day.Day, Quantity: day.Quantity}
		if n := len(rows); n > 0 && day.Quantity > rows[n-1].Quantity {
			row.Restock = true
		}
		rows = append(rows, row)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	return rows, nil
}

// NoDataMessage is shown for a period without samples.
const NoDataMessage = "📊 No data for the selected period"

// FormatTimeline renders a timeline as chat text.
func FormatTimeline(item models.TrackedItem, period models.Period, rows []models.TimelineRow) string {
	if len(rows) == 0 {
		return NoDataMessage
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 %s statistics: %s\n\n", period.Title(), item.Label()))
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%s - %s pcs.", utils.FormatDay(row.Day), utils.FormatQuantity(row.Quantity)))
		if row.Restock {
			sb.WriteString(" 🚀 RESTOCK!")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatCurrent renders a live quantity as chat text.
func FormatCurrent(item models.TrackedItem, quantity int) string {
	return fmt.Sprintf("📊 %s: %s pcs. in stock", item.Label(), utils.FormatQuantity(quantity))
}
