// Package models provides domain models for the restock monitor.
package models

import (
	"time"
)

// TrackedItem is a catalog entry whose inventory quantity is monitored.
// Items are loaded once from configuration and never change afterwards.
type TrackedItem struct {
	ID              string `mapstructure:"id" json:"id"`
	DisplayName     string `mapstructure:"display_name" json:"display_name"`
	RemoteProductID string `mapstructure:"product_id" json:"product_id"`
	RemoteStoreID   string `mapstructure:"store_id" json:"store_id"`
	StoreLabel      string `mapstructure:"store_label" json:"store_label"`
}

// Label returns the display name, falling back to the item id.
func (t TrackedItem) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID
}

// StockSample is one timestamped quantity observation.
type StockSample struct {
	ID         int64     `db:"id" json:"id"`
	ItemID     string    `db:"item_id" json:"item_id"`
	StoreLabel string    `db:"store_label" json:"store_label"`
	Quantity   int       `db:"quantity" json:"quantity"`
	ObservedAt time.Time `db:"observed_at" json:"observed_at"`
}

// DailyMax is the largest quantity observed for an item on one calendar day.
type DailyMax struct {
	Day      time.Time `json:"day"`
	Quantity int       `json:"quantity"`
}

// TimelineRow is one day of a restock timeline.
type TimelineRow struct {
	Day      time.Time `json:"day"`
	Quantity int       `json:"quantity"`
	Restock  bool      `json:"restock"`
}

// Period is a statistics window offered to the operator.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists the supported periods in menu order.
var Periods = []Period{PeriodWeek, PeriodMonth}

// Days returns the length of the period in days, or 0 for unknown periods.
func (p Period) Days() int {
	switch p {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	default:
		return 0
	}
}

// Valid reports whether p is a supported period.
func (p Period) Valid() bool {
	return p.Days() > 0
}

// Title returns a human readable period name.
func (p Period) Title() string {
	switch p {
	case PeriodWeek:
		return "Week"
	case PeriodMonth:
		return "Month"
	default:
		return string(p)
	}
}
