// Package bot is the operator command surface: a Telegram bot with inline
// buttons for live stock and restock statistics.
package bot

import (
	"context"
	"fmt"
	"strings"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/models"
	"restock-monitor/internal/query"
	"restock-monitor/internal/telegram"
)

// Command names. Callback data may carry an item id after a colon, e.g.
// "stats_week:hw_265193".
const (
	CmdStart          = "start"
	CmdCurrentStock   = "current_stock"
	CmdStatisticsMenu = "statistics_menu"
	CmdStatsWeek      = "stats_week"
	CmdStatsMonth     = "stats_month"
	CmdBackToMain     = "back_to_main"
)

// Fixed operator-facing texts.
const (
	MainMenuText       = "🔧 Restock Monitor control panel\nChoose an action:"
	StatsMenuText      = "📈 Choose a period:"
	DeniedText         = "❌ You do not have access to this bot"
	FetchFailedText    = "❌ Failed to get the current stock"
	StatsFailedText    = "❌ Failed to build statistics"
	CurrentProgress    = "🔄 Fetching current stock..."
	StatisticsProgress = "📊 Building statistics..."
)

// Outcomes recorded in the audit log.
const (
	OutcomeOK      = "ok"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
	OutcomeUnknown = "unknown_command"
)

// Request is one operator action.
type Request struct {
	Command  string
	ItemID   string
	CallerID int64
}

// ParseCommand splits callback data into a command and an optional item id.
func ParseCommand(data string) (command, itemID string) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "/")
	// "/start@SomeBot" addresses a bot in group chats.
	if i := strings.IndexByte(data, '@'); i >= 0 {
		data = data[:i]
	}
	command, itemID, _ = strings.Cut(data, ":")
	return command, itemID
}

// Response is what the operator sees.
type Response struct {
	Text     string
	Keyboard *telegram.InlineKeyboardMarkup
	Outcome  string
}

// HandlerFunc answers one request. Handlers share no mutable state.
type HandlerFunc func(ctx context.Context, req Request) Response

// Route is a dispatch table entry. Progress, when set, is shown while the
// handler runs.
type Route struct {
	Progress string
	Handle   HandlerFunc
}

// Querier is the read side the handlers use.
type Querier interface {
	Items() []models.TrackedItem
	Item(itemID string) (models.TrackedItem, error)
	Current(ctx context.Context, itemID string) (int, error)
	Timeline(ctx context.Context, itemID string, period models.Period) ([]models.TimelineRow, error)
}

// Routes builds the dispatch table over q.
func Routes(q Querier) map[string]Route {
	h := &handlers{q: q}
	return map[string]Route{
		CmdStart:          {Handle: h.mainMenu},
		CmdBackToMain:     {Handle: h.mainMenu},
		CmdCurrentStock:   {Progress: CurrentProgress, Handle: h.currentStock},
		CmdStatisticsMenu: {Handle: h.statisticsMenu},
		CmdStatsWeek:      {Progress: StatisticsProgress, Handle: h.statistics(models.PeriodWeek)},
		CmdStatsMonth:     {Progress: StatisticsProgress, Handle: h.statistics(models.PeriodMonth)},
	}
}

type handlers struct {
	q Querier
}

func (h *handlers) mainMenu(ctx context.Context, req Request) Response {
	return Response{Text: MainMenuText, Keyboard: mainKeyboard(h.q.Items()), Outcome: OutcomeOK}
}

func (h *handlers) currentStock(ctx context.Context, req Request) Response {
	item, err := h.q.Item(req.ItemID)
	if err != nil {
		return Response{Text: FetchFailedText, Keyboard: mainKeyboard(h.q.Items()), Outcome: OutcomeFailed}
	}

	qty, err := h.q.Current(ctx, item.ID)
	if err != nil {
		return Response{Text: FetchFailedText, Keyboard: mainKeyboard(h.q.Items()), Outcome: OutcomeFailed}
	}
	return Response{Text: query.FormatCurrent(item, qty), Keyboard: mainKeyboard(h.q.Items()), Outcome: OutcomeOK}
}

func (h *handlers) statisticsMenu(ctx context.Context, req Request) Response {
	return Response{Text: StatsMenuText, Keyboard: statsKeyboard(req.ItemID), Outcome: OutcomeOK}
}

func (h *handlers) statistics(period models.Period) HandlerFunc {
	return func(ctx context.Context, req Request) Response {
		item, err := h.q.Item(req.ItemID)
		if err != nil {
			return Response{Text: StatsFailedText, Keyboard: statsKeyboard(req.ItemID), Outcome: OutcomeFailed}
		}

		rows, err := h.q.Timeline(ctx, item.ID, period)
		if err != nil {
			outcome := OutcomeFailed
			if apperrors.Is(err, apperrors.ErrUnknownPeriod) {
				outcome = OutcomeUnknown
			}
			return Response{Text: StatsFailedText, Keyboard: statsKeyboard(req.ItemID), Outcome: outcome}
		}
		return Response{Text: query.FormatTimeline(item, period, rows), Keyboard: statsKeyboard(req.ItemID), Outcome: OutcomeOK}
	}
}

func withItem(command, itemID string) string {
	if itemID == "" {
		return command
	}
	return command + ":" + itemID
}

// mainKeyboard offers one stock button per item when several are tracked.
func mainKeyboard(items []models.TrackedItem) *telegram.InlineKeyboardMarkup {
	var buttons []telegram.InlineKeyboardButton
	if len(items) <= 1 {
		buttons = append(buttons,
			telegram.InlineKeyboardButton{Text: "📊 Current stock", CallbackData: CmdCurrentStock},
			telegram.InlineKeyboardButton{Text: "📈 Statistics", CallbackData: CmdStatisticsMenu},
		)
		return telegram.Keyboard(buttons...)
	}

	for _, item := range items {
		buttons = append(buttons, telegram.InlineKeyboardButton{
			Text:         fmt.Sprintf("📊 %s", item.Label()),
			CallbackData: withItem(CmdCurrentStock, item.ID),
		})
	}
	for _, item := range items {
		buttons = append(buttons, telegram.InlineKeyboardButton{
			Text:         fmt.Sprintf("📈 %s statistics", item.Label()),
			CallbackData: withItem(CmdStatisticsMenu, item.ID),
		})
	}
	return telegram.Keyboard(buttons...)
}

func statsKeyboard(itemID string) *telegram.InlineKeyboardMarkup {
	return telegram.Keyboard(
		telegram.InlineKeyboardButton{Text: "📅 Week", CallbackData: withItem(CmdStatsWeek, itemID)},
		telegram.InlineKeyboardButton{Text: "📅 Month", CallbackData: withItem(CmdStatsMonth, itemID)},
		telegram.InlineKeyboardButton{Text: "⬅️ Back", CallbackData: CmdBackToMain},
	)
}
