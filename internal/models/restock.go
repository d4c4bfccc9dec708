package models

import "time"

// DeliveryStatus tracks a restock notification through delivery.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// RestockEvent is the audit record of a detected restock.
// Only DeliveryStatus and DeliveryReference change after creation, and only
// once: pending -> sent or pending -> failed.
type RestockEvent struct {
	ID                string         `db:"id" json:"id"`
	ItemID            string         `db:"item_id" json:"item_id"`
	PreviousQuantity  int            `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity       int            `db:"new_quantity" json:"new_quantity"`
	Delta             int            `db:"delta" json:"delta"`
	Acknowledged      bool           `db:"acknowledged" json:"acknowledged"` // reserved for an operator dismissal workflow
	DeliveryStatus    DeliveryStatus `db:"delivery_status" json:"delivery_status"`
	DeliveryReference string         `db:"delivery_reference" json:"delivery_reference,omitempty"`
	DetectedAt        time.Time      `db:"detected_at" json:"detected_at"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}
