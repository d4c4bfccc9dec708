// Package server exposes the process health surface and a manual cycle
// trigger over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	"restock-monitor/internal/audit"
	"restock-monitor/internal/logging"
	"restock-monitor/internal/monitor"
	"restock-monitor/internal/resilience"
)

// Banner is the body of GET /.
const Banner = "Restock monitor is running"

// Triggerer runs cycles through the scheduler's serialization.
type Triggerer interface {
	Trigger(ctx context.Context) monitor.Report
	LastReport() (monitor.Report, bool)
	Running() bool
	Next(t time.Time) time.Time
}

// Pinger checks the storage medium.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStatser reports the fetch circuit breakers.
type BreakerStatser interface {
	Stats() []resilience.CircuitBreakerStats
}

// Server wraps a fiber app.
type Server struct {
	app       *fiber.App
	scheduler Triggerer
	pinger    Pinger
	breakers  BreakerStatser
	audit     *audit.Logger
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithPinger makes /health report storage availability.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithBreakers makes /status list the fetch circuit breakers.
func WithBreakers(b BreakerStatser) Option {
	return func(s *Server) { s.breakers = b }
}

// WithAudit records manual checks in l.
func WithAudit(l *audit.Logger) Option {
	return func(s *Server) { s.audit = l }
}

// New creates the server and registers its routes.
func New(sched Triggerer, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		scheduler: sched,
		audit:     audit.Discard(),
		logger:    logger.With().Str("component", "server").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "restock-monitor",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.logRequest)

	s.app.Get("/", s.banner)
	s.app.Get("/health", s.health)
	s.app.Get("/status", s.status)
	s.app.Get("/check-now", s.checkNow)
	s.app.Post("/check-now", s.checkNow)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) banner(c *fiber.Ctx) error {
	return c.SendString(Banner)
}

func (s *Server) health(c *fiber.Ctx) error {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.UserContext()); err != nil {
			s.logger.Error().Err(err).Msg("Storage health check failed")
			return c.Status(fiber.StatusServiceUnavailable).SendString("UNAVAILABLE")
		}
	}
	return c.SendString("OK")
}

// itemSummary is the public view of an ItemReport. Error text stays in
// the logs.
type itemSummary struct {
	ItemID   string          `json:"item_id"`
	Outcome  monitor.Outcome `json:"outcome"`
	Quantity *int            `json:"quantity,omitempty"`
	Previous *int            `json:"previous,omitempty"`
}

type reportSummary struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Recorded   int           `json:"recorded"`
	Restocks   int           `json:"restocks"`
	Failed     int           `json:"failed"`
	Items      []itemSummary `json:"items"`
}

func summarize(report monitor.Report) reportSummary {
	sum := reportSummary{
		CycleID:    report.CycleID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Recorded:   report.Recorded(),
		Restocks:   report.Count(monitor.OutcomeRestock),
		Failed:     report.Count(monitor.OutcomeFetchFailed) + report.Count(monitor.OutcomeStorageFailed),
		Items:      make([]itemSummary, 0, len(report.Items)),
	}
	for _, it := range report.Items {
		item := itemSummary{ItemID: it.ItemID, Outcome: it.Outcome, Previous: it.Previous}
		if it.Outcome == monitor.OutcomeRecorded || it.Outcome == monitor.OutcomeRestock {
			qty := it.Quantity
			item.Quantity = &qty
		}
		sum.Items = append(sum.Items, item)
	}
	return sum
}

type breakerStatus struct {
	Name        string                  `json:"name"`
	State       resilience.CircuitState `json:"state"`
	FailureRate float64                 `json:"failure_rate"`
	Rejected    int64                   `json:"rejected"`
}

type statusResponse struct {
	Running    bool            `json:"running"`
	NextRun    time.Time       `json:"next_run"`
	LastReport *reportSummary  `json:"last_report,omitempty"`
	Breakers   []breakerStatus `json:"breakers,omitempty"`
}

func (s *Server) status(c *fiber.Ctx) error {
	resp := statusResponse{
		Running: s.scheduler.Running(),
		NextRun: s.scheduler.Next(s.now()),
	}
	if report, ok := s.scheduler.LastReport(); ok {
		sum := summarize(report)
		resp.LastReport = &sum
	}
	if s.breakers != nil {
		for _, st := range s.breakers.Stats() {
			resp.Breakers = append(resp.Breakers, breakerStatus{
				Name:        st.Name,
				State:       st.State,
				FailureRate: st.FailureRate(),
				Rejected:    st.TotalRejected,
			})
		}
	}
	return c.JSON(resp)
}

func (s *Server) checkNow(c *fiber.Ctx) error {
	ctx := c.UserContext()
	logger := logging.FromContext(ctx)

	report := s.scheduler.Trigger(ctx)
	sum := summarize(report)

	if err := s.audit.LogManualCheck(ctx, "http", report.CycleID, sum.Recorded, sum.Restocks); err != nil {
		logger.Error().Err(err).Msg("Failed to write audit event")
	}

	for _, it := range report.Items {
		if it.Error != "" {
			logger.Warn().Str("item_id", it.ItemID).Str("outcome", string(it.Outcome)).Str("error", it.Error).Msg("Manual check item failed")
		}
	}
	logger.Info().
		Str("cycle_id", report.CycleID).
		Int("recorded", sum.Recorded).
		Int("restocks", sum.Restocks).
		Int("failed", sum.Failed).
		Msg("Manual check completed")
	return c.JSON(sum)
}

// logRequest attaches a request-scoped logger to the user context.
func (s *Server) logRequest(c *fiber.Ctx) error {
	start := time.Now()
	logger := logging.WithOperation(s.logger, c.Method()+" "+c.Path()).
		With().Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).Logger()
	c.SetUserContext(logging.WithLogger(c.UserContext(), logger))

	err := c.Next()
	logger.Debug().
		Int("status", c.Response().StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("HTTP request")
	return err
}

// handleError keeps internal detail out of responses.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		message = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		message = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}
