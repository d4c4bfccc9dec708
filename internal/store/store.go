// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"restock-monitor/internal/models"
)

// SampleStore is the append-only table of quantity observations.
type SampleStore interface {
	// Record appends a sample and returns it once it is durable.
	Record(ctx context.Context, item models.TrackedItem, quantity int, observedAt time.Time) (models.StockSample, error)
	// Latest returns the most recent sample for the item, or nil if the
	// item has never been sampled.
	Latest(ctx context.Context, itemID string) (*models.StockSample, error)
	// InRange streams one DailyMax per calendar day with samples in
	// [since, until], ascending by day. The cursor is single pass.
	InRange(ctx context.Context, itemID string, since, until time.Time) (*DayMaxCursor, error)
}

// RestockLog is the audit log of restock notifications.
type RestockLog interface {
	SaveRestock(ctx context.Context, event *models.RestockEvent) error
	SetDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, reference string) error
	ListRestocks(ctx context.Context, filter RestockFilter) ([]models.RestockEvent, error)
}

// DataStore combines both tables.
type DataStore interface {
	SampleStore
	RestockLog

	Close() error
}

// RestockFilter represents filters for querying the restock log.
type RestockFilter struct {
	ItemID string
	Since  time.Time
	Status models.DeliveryStatus
	Limit  int
}
