package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"restock-monitor/internal/audit"
	"restock-monitor/internal/telegram"
	"restock-monitor/pkg/utils"
)

// DefaultPollTimeout is the getUpdates long-poll timeout.
const DefaultPollTimeout = 30 * time.Second

// Messenger is the Bot API surface the bot needs.
type Messenger interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Bot serves operator commands for a single administrator.
type Bot struct {
	messenger   Messenger
	routes      map[string]Route
	adminID     int64
	audit       *audit.Logger
	logger      zerolog.Logger
	pollTimeout time.Duration
	backoff     utils.BackoffConfig

	wg sync.WaitGroup
}

// Option configures a Bot.
type Option func(*Bot)

// WithAudit records every command in l.
func WithAudit(l *audit.Logger) Option {
	return func(b *Bot) { b.audit = l }
}

// WithPollTimeout sets the long-poll timeout.
func WithPollTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.pollTimeout = d
		}
	}
}

// WithBackoff sets the retry schedule for failed polls.
func WithBackoff(cfg utils.BackoffConfig) Option {
	return func(b *Bot) { b.backoff = cfg }
}

// New creates a bot answering only adminID.
func New(m Messenger, q Querier, adminID int64, logger zerolog.Logger, opts ...Option) *Bot {
	b := &Bot{
		messenger:   m,
		routes:      Routes(q),
		adminID:     adminID,
		audit:       audit.Discard(),
		logger:      logger.With().Str("component", "bot").Logger(),
		pollTimeout: DefaultPollTimeout,
		backoff:     utils.DefaultBackoffConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Authorized reports whether callerID may use the bot.
func (b *Bot) Authorized(callerID int64) bool {
	return callerID == b.adminID
}

// Handle dispatches req. Unauthorized callers get the denial text and
// nothing else runs.
func (b *Bot) Handle(ctx context.Context, req Request) Response {
	if !b.Authorized(req.CallerID) {
		return Response{Text: DeniedText, Outcome: OutcomeDenied}
	}
	route, ok := b.routes[req.Command]
	if !ok {
		resp := b.routes[CmdStart].Handle(ctx, req)
		resp.Outcome = OutcomeUnknown
		return resp
	}
	return route.Handle(ctx, req)
}

// Run long-polls for updates until ctx is cancelled. Poll failures back off
// exponentially. Each update is handled on its own goroutine.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Int64("admin_id", b.adminID).Dur("poll_timeout", b.pollTimeout).Msg("Bot started")
	defer b.wg.Wait()

	var offset int64
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := b.messenger.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := b.backoff.Delay(failures)
			failures++
			b.logger.Warn().Err(err).Int("failures", failures).Dur("retry_in", delay).Msg("Polling failed")
			if err := utils.Sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		failures = 0

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.wg.Add(1)
			go func(u telegram.Update) {
				defer b.wg.Done()
				b.HandleUpdate(ctx, u)
			}(u)
		}
	}
}

// HandleUpdate answers one update: a /start message or a button press.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	command, itemID := ParseCommand(msg.Text)
	if !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") || command != CmdStart {
		return
	}

	callerID := msg.Chat.ID
	if msg.From != nil {
		callerID = msg.From.ID
	}
	req := Request{Command: command, ItemID: itemID, CallerID: callerID}
	resp := b.Handle(ctx, req)
	b.record(ctx, req, resp)

	if _, err := b.messenger.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID(msg.Chat.ID),
		Text:        resp.Text,
		ReplyMarkup: resp.Keyboard,
	}); err != nil {
		b.logger.Error().Err(err).Str("command", command).Msg("Failed to send reply")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	if err := b.messenger.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback")
	}
	if cq.Message == nil {
		return
	}

	command, itemID := ParseCommand(cq.Data)
	req := Request{Command: command, ItemID: itemID, CallerID: cq.From.ID}
	target := cq.Message

	if route, ok := b.routes[command]; ok && route.Progress != "" && b.Authorized(req.CallerID) {
		b.edit(ctx, target, Response{Text: route.Progress})
	}

	resp := b.Handle(ctx, req)
	b.record(ctx, req, resp)
	b.edit(ctx, target, resp)
}

func (b *Bot) edit(ctx context.Context, msg *telegram.Message, resp Response) {
	err := b.messenger.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:      chatID(msg.Chat.ID),
		MessageID:   msg.MessageID,
		Text:        resp.Text,
		ReplyMarkup: resp.Keyboard,
	})
	if err == nil || notModified(err) {
		return
	}
	b.logger.Error().Err(err).Int64("message_id", msg.MessageID).Msg("Failed to edit message")
}

func (b *Bot) record(ctx context.Context, req Request, resp Response) {
	log := b.logger.Info()
	if resp.Outcome == OutcomeDenied {
		log = b.logger.Warn()
	}
	log.Str("command", req.Command).Int64("caller_id", req.CallerID).Str("outcome", resp.Outcome).Msg("Command handled")

	authorized := resp.Outcome != OutcomeDenied
	if err := b.audit.LogCommand(ctx, "telegram", req.Command, req.CallerID, authorized, resp.Outcome); err != nil {
		b.logger.Error().Err(err).Msg("Failed to write audit event")
	}
}

// notModified matches the error Telegram returns when an edit changes nothing.
func notModified(err error) bool {
	var apiErr *telegram.APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

func chatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
