// Package reminder implements the scheduled outbound messaging loop:
// cron-scheduled reminder templates and a daily overdue-invoice sweep.
// Reminders are plain notifications; they never execute operations and
// never go through the confirmation gateway.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rasidhq/rasid/internal/billing"
	"github.com/rasidhq/rasid/internal/config"
	"github.com/rasidhq/rasid/internal/observability"
	"github.com/rasidhq/rasid/internal/ops"
)

// Scheduler fires reminder templates and the overdue sweep on their cron
// schedules. It runs as a background goroutine next to the gateways.
type Scheduler struct {
	templates billing.ReminderTemplateStore
	billing   *billing.Service
	messenger ops.Messenger
	metrics   *observability.MetricsCollector
	logger    *slog.Logger
	cfg       *config.RemindersConfig

	// operatorChat receives the overdue summary and any reminder whose
	// reseller has no linked chat. 0 disables those deliveries.
	operatorChat int64

	parser cron.Parser
	now    func() time.Time

	lastOverdue time.Time
}

// New creates a reminder scheduler.
func New(
	templates billing.ReminderTemplateStore,
	svc *billing.Service,
	messenger ops.Messenger,
	metrics *observability.MetricsCollector,
	logger *slog.Logger,
	cfg *config.RemindersConfig,
) *Scheduler {
	return &Scheduler{
		templates: templates,
		billing:   svc,
		messenger: messenger,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithOperatorChat routes the overdue summary and unlinked-reseller
// reminders to the given chat.
func (s *Scheduler) WithOperatorChat(chatID int64) *Scheduler {
	s.operatorChat = chatID
	return s
}

// WithClock overrides the scheduler time source. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start begins the reminder loop. Returns a cancel function.
func (s *Scheduler) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		s.logger.InfoContext(ctx, "reminder scheduler started",
			slog.String("tick", s.cfg.Tick().String()),
			slog.String("overdue_cron", s.cfg.OverdueCron()),
		)

		ticker := time.NewTicker(s.cfg.Tick())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("reminder scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()

	return cancel
}

// Tick runs a single poll cycle: fire due templates, then the overdue
// sweep if its schedule has come around. Exported for tests.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	templates, err := s.templates.ListEnabled(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing reminder templates failed",
			slog.String("error", err.Error()),
		)
	} else {
		for i := range templates {
			tpl := &templates[i]
			if !s.templateDue(tpl, now) {
				continue
			}
			s.fireTemplate(ctx, tpl, now)
		}
	}

	if s.overdueDue(now) {
		s.fireOverdueSweep(ctx)
		s.lastOverdue = now
	}
}

// templateDue reports whether the template's cron schedule has a firing
// time between its last run and now.
func (s *Scheduler) templateDue(tpl *billing.ReminderTemplate, now time.Time) bool {
	sched, err := s.parser.Parse(tpl.CronSpec)
	if err != nil {
		s.logger.Error("invalid reminder cron expression",
			slog.String("template", tpl.Name),
			slog.String("expr", tpl.CronSpec),
			slog.String("error", err.Error()),
		)
		return false
	}

	ref := tpl.CreatedAt
	if tpl.LastRunAt != nil {
		ref = *tpl.LastRunAt
	}
	next := sched.Next(ref)
	return !next.After(now)
}

func (s *Scheduler) overdueDue(now time.Time) bool {
	sched, err := s.parser.Parse(s.cfg.OverdueCron())
	if err != nil {
		s.logger.Error("invalid overdue cron expression",
			slog.String("expr", s.cfg.OverdueCron()),
			slog.String("error", err.Error()),
		)
		return false
	}
	ref := s.lastOverdue
	if ref.IsZero() {
		// First tick after startup: anchor to now so a freshly started
		// process does not replay the last scheduled slot.
		s.lastOverdue = now
		return false
	}
	return !sched.Next(ref).After(now)
}

// fireTemplate renders the template once per overdue invoice and sends
// it to the invoice's reseller.
func (s *Scheduler) fireTemplate(ctx context.Context, tpl *billing.ReminderTemplate, now time.Time) {
	s.logger.InfoContext(ctx, "firing reminder template",
		slog.String("template", tpl.Name),
	)

	overdue, err := s.billing.ListOverdue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing overdue invoices failed",
			slog.String("template", tpl.Name),
			slog.String("error", err.Error()),
		)
		s.record("template", "error")
		return
	}

	for i := range overdue {
		inv := &overdue[i]
		r, err := s.billing.GetReseller(ctx, inv.ResellerID)
		if err != nil {
			s.logger.ErrorContext(ctx, "resolving invoice reseller failed",
				slog.Int64("invoice", inv.Number),
				slog.String("error", err.Error()),
			)
			s.record("template", "error")
			continue
		}

		chatID := r.TelegramChatID
		if chatID == 0 {
			chatID = s.operatorChat
		}
		if chatID == 0 {
			s.record("template", "skipped")
			continue
		}

		body := renderBody(tpl.Body, r, inv)
		if err := s.messenger.Send(ctx, chatID, body); err != nil {
			s.logger.ErrorContext(ctx, "sending reminder failed",
				slog.String("template", tpl.Name),
				slog.String("reseller", r.Name),
				slog.String("error", err.Error()),
			)
			s.record("template", "error")
			continue
		}
		s.record("template", "ok")
	}

	if err := s.templates.RecordRun(ctx, tpl.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "recording template run failed",
			slog.String("template", tpl.Name),
			slog.String("error", err.Error()),
		)
	}
}

// fireOverdueSweep sends the operator a summary of all overdue invoices.
func (s *Scheduler) fireOverdueSweep(ctx context.Context) {
	if s.operatorChat == 0 {
		return
	}

	overdue, err := s.billing.ListOverdue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "overdue sweep failed",
			slog.String("error", err.Error()),
		)
		s.record("overdue", "error")
		return
	}
	if len(overdue) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "فاکتورهای سررسید گذشته (overdue invoices): %d\n", len(overdue))
	for i := range overdue {
		inv := &overdue[i]
		name := ""
		if r, err := s.billing.GetReseller(ctx, inv.ResellerID); err == nil {
			name = r.Name
		}
		fmt.Fprintf(&b, "- #%d %s %s (due %s)\n",
			inv.Number, name, inv.Amount.String(), inv.DueAt.Format("2006-01-02"))
	}

	if err := s.messenger.Send(ctx, s.operatorChat, b.String()); err != nil {
		s.logger.ErrorContext(ctx, "sending overdue summary failed",
			slog.String("error", err.Error()),
		)
		s.record("overdue", "error")
		return
	}
	s.record("overdue", "ok")
}

func (s *Scheduler) record(kind, status string) {
	if s.metrics != nil {
		s.metrics.RemindersSentTotal.WithLabelValues(kind, status).Inc()
	}
}

// renderBody substitutes the {reseller}, {amount}, and {invoice}
// placeholders of a template body.
func renderBody(body string, r *billing.Reseller, inv *billing.Invoice) string {
	return strings.NewReplacer(
		"{reseller}", r.Name,
		"{amount}", inv.Amount.String(),
		"{invoice}", fmt.Sprintf("%d", inv.Number),
	).Replace(body)
}

// ValidateCronSpec checks a template's cron expression before it is
// stored. Exported for use by the HTTP API.
func ValidateCronSpec(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
