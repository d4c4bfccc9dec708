package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
// Timestamps are stored as UTC unix nanoseconds so ordering is exact.
type SQLiteStore struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewSQLiteStore creates a new SQLite-based data store. Calendar days for
// InRange are computed in loc (UTC when nil).
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if loc == nil {
		loc = time.UTC
	}

	store := &SQLiteStore{
		db:  db,
		loc: loc,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per successful fetch
	CREATE TABLE IF NOT EXISTS stock_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		store_label TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		observed_at INTEGER NOT NULL
	);

	-- One row per detected restock
	CREATE TABLE IF NOT EXISTS restock_notifications (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		previous_quantity INTEGER NOT NULL,
		new_quantity INTEGER NOT NULL,
		delta INTEGER NOT NULL CHECK (delta > 0),
		acknowledged INTEGER NOT NULL DEFAULT 0,
		delivery_status TEXT NOT NULL DEFAULT 'pending',
		delivery_reference TEXT NOT NULL DEFAULT '',
		detected_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_item_observed ON stock_samples(item_id, observed_at);
	CREATE INDEX IF NOT EXISTS idx_restocks_item ON restock_notifications(item_id, detected_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Samples
// ============================================================================

type sampleRow struct {
	ID         int64  `db:"id"`
	ItemID     string `db:"item_id"`
	StoreLabel string `db:"store_label"`
	Quantity   int    `db:"quantity"`
	ObservedAt int64  `db:"observed_at"`
}

func (r sampleRow) model() models.StockSample {
	return models.StockSample{
		ID:         r.ID,
		ItemID:     r.ItemID,
		StoreLabel: r.StoreLabel,
		Quantity:   r.Quantity,
		ObservedAt: time.Unix(0, r.ObservedAt).UTC(),
	}
}

// Record appends a new sample.
func (s *SQLiteStore) Record(ctx context.Context, item models.TrackedItem, quantity int, observedAt time.Time) (models.StockSample, error) {
	if quantity < 0 {
		return models.StockSample{}, apperrors.Wrapf(apperrors.ErrInvalidQuantity, "record %s: %d", item.ID, quantity)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_samples (item_id, store_label, quantity, observed_at)
		VALUES (?, ?, ?, ?)
	`, item.ID, item.StoreLabel, quantity, observedAt.UnixNano())
	if err != nil {
		return models.StockSample{}, apperrors.NewStorageError("record", item.ID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.StockSample{}, apperrors.NewStorageError("record", item.ID, err)
	}

	return models.StockSample{
		ID:         id,
		ItemID:     item.ID,
		StoreLabel: item.StoreLabel,
		Quantity:   quantity,
		ObservedAt: time.Unix(0, observedAt.UnixNano()).UTC(),
	}, nil
}

// Latest returns the sample with the greatest observed_at for the item.
// Ties are broken by insertion order.
func (s *SQLiteStore) Latest(ctx context.Context, itemID string) (*models.StockSample, error) {
	var row sampleRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, item_id, store_label, quantity, observed_at
		FROM stock_samples
		WHERE item_id = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 1
	`, itemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("latest", itemID, err)
	}

	sample := row.model()
	return &sample, nil
}

// InRange opens a cursor over daily maxima for the item.
func (s *SQLiteStore) InRange(ctx context.Context, itemID string, since, until time.Time) (*DayMaxCursor, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT observed_at, quantity
		FROM stock_samples
		WHERE item_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC, id ASC
	`, itemID, since.UnixNano(), until.UnixNano())
	if err != nil {
		return nil, apperrors.NewStorageError("in_range", itemID, err)
	}

	return newDayMaxCursor(rows, s.loc, itemID), nil
}

// ============================================================================
// Restock log
// ============================================================================

type restockRow struct {
	ID                string `db:"id"`
	ItemID            string `db:"item_id"`
	PreviousQuantity  int    `db:"previous_quantity"`
	NewQuantity       int    `db:"new_quantity"`
	Delta             int    `db:"delta"`
	Acknowledged      bool   `db:"acknowledged"`
	DeliveryStatus    string `db:"delivery_status"`
	DeliveryReference string `db:"delivery_reference"`
	DetectedAt        int64  `db:"detected_at"`
	CreatedAt         int64  `db:"created_at"`
}

func (r restockRow) model() models.RestockEvent {
	return models.RestockEvent{
		ID:                r.ID,
		ItemID:            r.ItemID,
		PreviousQuantity:  r.PreviousQuantity,
		NewQuantity:       r.NewQuantity,
		Delta:             r.Delta,
		Acknowledged:      r.Acknowledged,
		DeliveryStatus:    models.DeliveryStatus(r.DeliveryStatus),
		DeliveryReference: r.DeliveryReference,
		DetectedAt:        time.Unix(0, r.DetectedAt).UTC(),
		CreatedAt:         time.Unix(0, r.CreatedAt).UTC(),
	}
}

// SaveRestock inserts a restock event. Status defaults to pending.
func (s *SQLiteStore) SaveRestock(ctx context.Context, event *models.RestockEvent) error {
	if event.DeliveryStatus == "" {
		event.DeliveryStatus = models.DeliveryPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restock_notifications (id, item_id, previous_quantity, new_quantity, delta, acknowledged, delivery_status, delivery_reference, detected_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.ItemID, event.PreviousQuantity, event.NewQuantity, event.Delta, event.Acknowledged,
		string(event.DeliveryStatus), event.DeliveryReference, event.DetectedAt.UnixNano(), event.CreatedAt.UnixNano())
	if err != nil {
		return apperrors.NewStorageError("save_restock", event.ItemID, err)
	}
	return nil
}

// SetDeliveryStatus settles a pending restock event.
func (s *SQLiteStore) SetDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, reference string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE restock_notifications
		SET delivery_status = ?, delivery_reference = ?
		WHERE id = ? AND delivery_status = ?
	`, string(status), reference, id, string(models.DeliveryPending))
	if err != nil {
		return apperrors.NewStorageError("set_delivery_status", "", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.Wrapf(apperrors.ErrNotPending, "restock %s", id)
	}
	return nil
}

// ListRestocks retrieves restock events, newest first.
func (s *SQLiteStore) ListRestocks(ctx context.Context, filter RestockFilter) ([]models.RestockEvent, error) {
	query := "SELECT id, item_id, previous_quantity, new_quantity, delta, acknowledged, delivery_status, delivery_reference, detected_at, created_at FROM restock_notifications WHERE 1=1"
	args := []interface{}{}

	if filter.ItemID != "" {
		query += " AND item_id = ?"
		args = append(args, filter.ItemID)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at >= ?"
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Status != "" {
		query += " AND delivery_status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY detected_at DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []restockRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewStorageError("list_restocks", filter.ItemID, err)
	}

	events := make([]models.RestockEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.model())
	}
	return events, nil
}
