package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/models"
	"restock-monitor/internal/query"
	"restock-monitor/internal/store"
	"restock-monitor/pkg/utils"
)

func addQueryCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStockCmd(app))
	rootCmd.AddCommand(newStatsCmd(app))
	rootCmd.AddCommand(newRestocksCmd(app))
}

func newStockCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stock [item]",
		Short: "Show the live quantity of an item",
		Long:  "Fetch the current quantity from the catalog without recording it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			rt, err := newRuntime(app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			item, err := rt.query.Item(argOrEmpty(args))
			if err != nil {
				return err
			}

			qty, err := rt.query.Current(cmd.Context(), item.ID)
			if err != nil {
				output.Error("✗ Failed to get the current stock for %s", item.Label())
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"item_id":  item.ID,
					"quantity": qty,
					"fetched":  time.Now().UTC(),
				})
			}
			output.Println(query.FormatCurrent(item, qty))
			return nil
		},
	}
}

func newStatsCmd(app *App) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "stats [item]",
		Short: "Show the daily restock timeline of an item",
		Long: `Show the maximum quantity of each day in the period, flagging days where
the quantity rose above the previous day.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			p := models.Period(period)
			if !p.Valid() {
				return apperrors.Wrapf(apperrors.ErrUnknownPeriod, "period %q (expected week or month)", period)
			}

			rt, err := newRuntime(app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			item, err := rt.query.Item(argOrEmpty(args))
			if err != nil {
				return err
			}

			rows, err := rt.query.Timeline(cmd.Context(), item.ID, p)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Warning("%s", query.NoDataMessage)
				return nil
			}

			output.Bold("%s statistics: %s", p.Title(), item.Label())
			table := NewTable(output, "DAY", "MAX QUANTITY", "")
			for _, row := range rows {
				flag := ""
				if row.Restock {
					flag = output.Green("🚀 RESTOCK")
				}
				table.AddRow(utils.FormatDay(row.Day), utils.FormatQuantity(row.Quantity), flag)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", string(models.PeriodWeek), "statistics period (week or month)")
	return cmd
}

func newRestocksCmd(app *App) *cobra.Command {
	var (
		status string
		days   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "restocks [item]",
		Short: "List detected restocks and their alert delivery",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			st, err := store.NewSQLiteStore(app.Config.Storage.Path, app.Config.StorageLocation())
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.RestockFilter{
				Status: models.DeliveryStatus(status),
				Limit:  limit,
			}
			if len(args) == 1 {
				item, ok := app.Config.Item(args[0])
				if !ok {
					return apperrors.Wrapf(apperrors.ErrItemNotFound, "item %q", args[0])
				}
				filter.ItemID = item.ID
			}
			if days > 0 {
				filter.Since = time.Now().AddDate(0, 0, -days)
			}

			events, err := st.ListRestocks(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Dim("No restocks recorded")
				return nil
			}

			now := time.Now()
			table := NewTable(output, "DETECTED", "ITEM", "CHANGE", "DELIVERY", "REFERENCE")
			for _, e := range events {
				table.AddRow(
					utils.FormatAge(e.DetectedAt, now),
					e.ItemID,
					fmt.Sprintf("%s → %s (%s)", utils.FormatQuantity(e.PreviousQuantity), utils.FormatQuantity(e.NewQuantity), utils.FormatDelta(e.Delta)),
					output.DeliveryStatus(e.DeliveryStatus),
					e.DeliveryReference,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by delivery status (pending, sent, failed)")
	cmd.Flags().IntVar(&days, "days", 0, "only restocks detected in the last N days")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of restocks to list")
	return cmd
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
