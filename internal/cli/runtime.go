package cli

import (
	"errors"

	"github.com/rs/zerolog"

	"restock-monitor/internal/audit"
	"restock-monitor/internal/config"
	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/fetcher"
	"restock-monitor/internal/monitor"
	"restock-monitor/internal/notify"
	"restock-monitor/internal/query"
	"restock-monitor/internal/resilience"
	"restock-monitor/internal/scheduler"
	"restock-monitor/internal/store"
	"restock-monitor/internal/telegram"
)

// runtime holds the components wired once at process start.
type runtime struct {
	store    *store.SQLiteStore
	breakers *resilience.Group
	telegram *telegram.Client
	notifier *notify.MultiNotifier
	cycle    *monitor.Cycle
	query    *query.Service
	audit    *audit.Logger
}

func newRuntime(cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.Path, cfg.StorageLocation())
	if err != nil {
		return nil, apperrors.Wrap(err, "opening sample store")
	}

	rt := &runtime{store: st, audit: audit.Discard()}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.FailureThreshold = cfg.Fetcher.FailureThreshold
	if cfg.Fetcher.OpenTimeout > 0 {
		breakerCfg.Timeout = cfg.Fetcher.OpenTimeout
	}

	// Operator queries get their own breakers so they never trip the
	// scheduled cycle's.
	rt.breakers = resilience.NewGroup("catalog", breakerCfg)
	cycleFetcher := newFetcher(cfg, rt.breakers, logger)
	queryFetcher := newFetcher(cfg, resilience.NewGroup("query", breakerCfg), logger)

	if token := cfg.Credentials.Telegram.BotToken; token != "" {
		rt.telegram = telegram.NewClient(token)
	}
	rt.notifier = notify.NewMultiNotifier(&cfg.Notifications, rt.telegram, logger)

	rt.cycle = monitor.NewCycle(cfg.Items, cycleFetcher, st, rt.notifier, logger,
		monitor.WithConcurrency(cfg.Fetcher.Concurrency))
	rt.query = query.NewService(cfg.Items, queryFetcher, st, logger,
		query.WithFetchTimeout(cfg.Fetcher.Timeout))

	return rt, nil
}

func newFetcher(cfg *config.Config, breakers *resilience.Group, logger zerolog.Logger) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.Config{
		BaseURL:   cfg.Fetcher.BaseURL,
		Timeout:   cfg.Fetcher.Timeout,
		UserAgent: cfg.Fetcher.UserAgent,
		Breakers:  breakers,
	}, logger)
}

// openAudit replaces the discarding audit logger with a file-backed one.
func (rt *runtime) openAudit(path string) error {
	l, err := audit.NewLogger(audit.DefaultConfig(path))
	if err != nil {
		return err
	}
	rt.audit = l
	return nil
}

func (rt *runtime) newScheduler(cfg *config.Config, logger zerolog.Logger) (*scheduler.Scheduler, error) {
	times, err := scheduler.ParseTimes(cfg.Schedule.Times)
	if err != nil {
		return nil, err
	}
	return scheduler.New(rt.cycle, times, cfg.ScheduleLocation(), logger)
}

func (rt *runtime) Close() error {
	return errors.Join(
		rt.notifier.Close(),
		rt.audit.Close(),
		rt.store.Close(),
	)
}
