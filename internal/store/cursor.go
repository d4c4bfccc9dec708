package store

import (
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/models"
	"restock-monitor/pkg/utils"
)

// DayMaxCursor folds time-ordered samples into one DailyMax per calendar
// day as the caller advances it. It reads the underlying rows exactly once.
//
//	cur, err := st.InRange(ctx, id, since, until)
//	defer cur.Close()
//	for cur.Next() {
//		row := cur.Row()
//	}
//	err = cur.Err()
type DayMaxCursor struct {
	rows   *sqlx.Rows
	loc    *time.Location
	itemID string

	row models.DailyMax
	err error

	pending     models.DailyMax
	havePending bool
	done        bool
}

func newDayMaxCursor(rows *sqlx.Rows, loc *time.Location, itemID string) *DayMaxCursor {
	return &DayMaxCursor{rows: rows, loc: loc, itemID: itemID}
}

// Next advances to the next day. It returns false when the rows are
// exhausted or an error occurred.
func (c *DayMaxCursor) Next() bool {
	if c.done {
		return false
	}

	var cur models.DailyMax
	started := false
	if c.havePending {
		cur, started = c.pending, true
		c.havePending = false
	}

	for c.rows.Next() {
		var observedAt int64
		var quantity int
		if err := c.rows.Scan(&observedAt, &quantity); err != nil {
			c.err = apperrors.NewStorageError("in_range", c.itemID, err)
			c.Close()
			return false
		}

		day := c.dayOf(observedAt)
		switch {
		case !started:
			cur, started = models.DailyMax{Day: day, Quantity: quantity}, true
		case !day.Equal(cur.Day):
			c.pending = models.DailyMax{Day: day, Quantity: quantity}
			c.havePending = true
			c.row = cur
			return true
		case quantity > cur.Quantity:
			cur.Quantity = quantity
		}
	}

	if err := c.rows.Err(); err != nil {
		c.err = apperrors.NewStorageError("in_range", c.itemID, err)
	}
	c.Close()

	if started && c.err == nil {
		c.row = cur
		return true
	}
	return false
}

// Row returns the current day.
func (c *DayMaxCursor) Row() models.DailyMax {
	return c.row
}

// Err returns the error, if any, that stopped iteration.
func (c *DayMaxCursor) Err() error {
	return c.err
}

// Close releases the underlying rows. It is safe to call more than once.
func (c *DayMaxCursor) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	return c.rows.Close()
}

// All drains the cursor.
func (c *DayMaxCursor) All() ([]models.DailyMax, error) {
	defer c.Close()

	var days []models.DailyMax
	for c.Next() {
		days = append(days, c.Row())
	}
	return days, c.Err()
}

func (c *DayMaxCursor) dayOf(unixNano int64) time.Time {
	return utils.StartOfDay(time.Unix(0, unixNano), c.loc)
}
