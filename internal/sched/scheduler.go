// Package sched runs the two wall-clock timers: the unconditional refresh
// poll and the reminder check. Both are stateless triggers; a webhook-driven
// refresh never resets or cancels a pending tick.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"lifesign/internal/domain"
	"lifesign/internal/metrics"
	"lifesign/internal/update"
)

// Scheduler owns the cron runner and the reminder policy.
type Scheduler struct {
	cron     *cron.Cron
	orch     *update.Orchestrator
	state    *update.State
	provider domain.MessageProvider
	logger   *slog.Logger

	pollInterval      time.Duration
	reminderEnabled   bool
	reminderRecipient string
	outboundNumber    string
	reminderThreshold time.Duration
	reminderInterval  int // hours between checks
	dailyStartHour    int
	notifier          update.Notifier // optional

	now func() time.Time // stubbed in tests
}

type Config struct {
	Orchestrator *update.Orchestrator
	State        *update.State
	Provider     domain.MessageProvider
	Logger       *slog.Logger

	PollInterval time.Duration

	ReminderEnabled   bool
	ReminderRecipient string
	OutboundNumber    string
	ReminderThreshold time.Duration
	ReminderInterval  int // hours between reminder checks (default 1)
	DailyStartHour    int // first check of the day, local time
	Notifier          update.Notifier
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Hour
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = 1
	}
	return &Scheduler{
		cron:              cron.New(),
		orch:              cfg.Orchestrator,
		state:             cfg.State,
		provider:          cfg.Provider,
		logger:            cfg.Logger,
		pollInterval:      cfg.PollInterval,
		reminderEnabled:   cfg.ReminderEnabled,
		reminderRecipient: cfg.ReminderRecipient,
		outboundNumber:    cfg.OutboundNumber,
		reminderThreshold: cfg.ReminderThreshold,
		reminderInterval:  cfg.ReminderInterval,
		dailyStartHour:    cfg.DailyStartHour,
		notifier:          cfg.Notifier,
		now:               time.Now,
	}
}

// reminderCronSpec builds a spec that fires every interval hours starting at
// startHour each day, e.g. start 9 / every 2h -> "0 9-23/2 * * *".
func reminderCronSpec(startHour, intervalHours int) string {
	if startHour < 0 || startHour > 23 {
		startHour = 0
	}
	if intervalHours <= 1 {
		return fmt.Sprintf("0 %d-23 * * *", startHour)
	}
	return fmt.Sprintf("0 %d-23/%d * * *", startHour, intervalHours)
}

// Start registers both timers and blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	pollSpec := fmt.Sprintf("@every %s", s.pollInterval)
	if _, err := s.cron.AddFunc(pollSpec, func() { s.poll(ctx) }); err != nil {
		return fmt.Errorf("register poll timer: %w", err)
	}
	s.logger.Info("poll timer registered", "interval", s.pollInterval)

	if s.reminderEnabled {
		spec := reminderCronSpec(s.dailyStartHour, s.reminderInterval)
		if _, err := s.cron.AddFunc(spec, func() { s.checkReminder(ctx) }); err != nil {
			return fmt.Errorf("register reminder timer: %w", err)
		}
		s.logger.Info("reminder timer registered",
			"spec", spec, "threshold", s.reminderThreshold, "recipient", s.reminderRecipient)
	}

	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) poll(ctx context.Context) {
	res, err := s.orch.Refresh(ctx, update.TriggerPoll)
	switch {
	case errors.Is(err, domain.ErrNoQualifyingMessage), errors.Is(err, domain.ErrNoMediaAttached):
		s.logger.Debug("scheduled refresh found nothing to update", "reason", err)
	case err != nil:
		s.logger.Error("scheduled refresh failed", "err", err)
	case res.Coalesced:
		s.logger.Debug("scheduled refresh coalesced with in-flight run")
	case res.Performed:
		s.logger.Info("scheduled refresh committed a new photo")
	default:
		s.logger.Debug("scheduled refresh found nothing new")
	}
}

// checkReminder sends one nag message when the committed photo is older than
// the threshold. Read-only against the freshness state; skips entirely when
// nothing has been committed yet.
func (s *Scheduler) checkReminder(ctx context.Context) {
	snap := s.state.Snapshot()
	if snap.LastSentAt.IsZero() {
		s.logger.Debug("reminder skipped: no photo committed yet")
		return
	}

	elapsed := s.now().Sub(snap.LastSentAt)
	if elapsed < s.reminderThreshold {
		return
	}

	body := fmt.Sprintf("No new photo in %d hours. Send a fresh one!", int(elapsed.Hours()))
	if err := s.provider.SendMessage(ctx, s.reminderRecipient, s.outboundNumber, body); err != nil {
		s.logger.Error("reminder send failed", "recipient", s.reminderRecipient, "err", err)
		if s.notifier != nil {
			s.notifier.Notify("Reminder SMS failed: " + err.Error())
		}
		return
	}
	metrics.RemindersSent.Inc()
	s.logger.Info("reminder sent", "recipient", s.reminderRecipient, "elapsed", elapsed)
	if s.notifier != nil {
		s.notifier.Notify(fmt.Sprintf("Reminder sent after %dh without a photo", int(elapsed.Hours())))
	}
}
