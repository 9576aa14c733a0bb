// Package update implements the photo refresh pipeline: select the newest
// qualifying inbound message, skip work already done, download its
// attachment, thumbnail it, and commit the result to the freshness state.
package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifesign/internal/domain"
	"lifesign/internal/media"
	"lifesign/internal/metrics"
)

// Trigger identifies what started a refresh.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerPoll    Trigger = "poll"
	TriggerManual  Trigger = "manual"
)

// Result reports what a refresh did.
type Result struct {
	Performed     bool   // a new attachment was committed
	Coalesced     bool   // another refresh was already in flight
	AttachmentURL string
	ImagePath     string
	ThumbnailPath string
}

// JournalEntry is an audit record of one committed update.
type JournalEntry struct {
	AttachmentURL string
	SentAt        time.Time
	CommittedAt   time.Time
	ImagePath     string
	ThumbnailPath string
	Trigger       string
}

// Journal records committed updates. Failures are logged, never surfaced:
// the journal is an audit trail, not part of the pipeline's correctness.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
}

// Notifier delivers short operator notices out of band.
type Notifier interface {
	Notify(text string)
}

// Orchestrator runs the refresh pipeline. At most one refresh is in flight
// per process; concurrent triggers coalesce instead of duplicating work.
type Orchestrator struct {
	selector      *Selector
	downloader    *media.Downloader
	thumbnailer   *media.Thumbnailer
	state         *State
	imageDir      string
	webhookMaxAge time.Duration
	journal       Journal  // optional
	notifier      Notifier // optional
	logger        *slog.Logger

	inFlight sync.Mutex
}

type OrchestratorConfig struct {
	Selector      *Selector
	Downloader    *media.Downloader
	Thumbnailer   *media.Thumbnailer
	State         *State
	ImageDir      string
	WebhookMaxAge time.Duration // freshness window for webhook-triggered runs; 0 disables
	Journal       Journal
	Notifier      Notifier
	Logger        *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		selector:      cfg.Selector,
		downloader:    cfg.Downloader,
		thumbnailer:   cfg.Thumbnailer,
		state:         cfg.State,
		imageDir:      cfg.ImageDir,
		webhookMaxAge: cfg.WebhookMaxAge,
		journal:       cfg.Journal,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
	}
}

// Refresh runs one pass of the pipeline. Any failure after selection leaves
// the freshness state untouched, so the previously committed image keeps
// serving. Callers decide what to do with the error: the webhook handler
// acknowledges generically, the scheduler logs and waits for the next tick.
func (o *Orchestrator) Refresh(ctx context.Context, trigger Trigger) (Result, error) {
	if !o.inFlight.TryLock() {
		o.logger.Debug("refresh already in flight, coalescing", "trigger", trigger)
		return Result{Coalesced: true}, nil
	}
	defer o.inFlight.Unlock()

	maxAge := time.Duration(0)
	if trigger == TriggerWebhook {
		maxAge = o.webhookMaxAge
	}

	sel, err := o.selector.Select(ctx, maxAge)
	if err != nil {
		// No qualifying message is the common idle outcome, not a failure.
		if errors.Is(err, domain.ErrNoQualifyingMessage) || errors.Is(err, domain.ErrNoMediaAttached) {
			o.logger.Info("no update performed", "trigger", trigger, "reason", err)
			metrics.UpdatesSkipped.Inc()
			return Result{}, err
		}
		metrics.UpdateFailures.Inc()
		return Result{}, err
	}

	snap := o.state.Snapshot()
	if sel.Attachment.URL == snap.LastAttachmentURL {
		o.logger.Info("no update performed: attachment already current",
			"trigger", trigger, "media_sid", sel.Attachment.MediaSID)
		metrics.UpdatesSkipped.Inc()
		return Result{AttachmentURL: sel.Attachment.URL}, nil
	}
	if !snap.LastSentAt.IsZero() && sel.SentAt.Before(snap.LastSentAt) {
		o.logger.Warn("no update performed: selected message older than committed one",
			"trigger", trigger, "selected", sel.SentAt, "committed", snap.LastSentAt)
		metrics.UpdatesSkipped.Inc()
		return Result{}, nil
	}

	if err := os.MkdirAll(o.imageDir, 0o755); err != nil {
		metrics.UpdateFailures.Inc()
		return Result{}, fmt.Errorf("image dir: %w", err)
	}

	// Fresh filenames per update: the previous image may still be mid-serve
	// and is never overwritten in place.
	id := uuid.NewString()
	imagePath := filepath.Join(o.imageDir, id+".jpg")
	thumbPath := filepath.Join(o.imageDir, id+"-small.jpg")

	start := time.Now()
	if err := o.downloader.Fetch(ctx, sel.Attachment.URL, imagePath); err != nil {
		metrics.UpdateFailures.Inc()
		return Result{}, err
	}
	metrics.DownloadSeconds.Observe(time.Since(start).Seconds())

	if err := o.thumbnailer.Create(imagePath, thumbPath); err != nil {
		os.Remove(imagePath)
		metrics.UpdateFailures.Inc()
		return Result{}, err
	}

	o.state.Commit(sel.Attachment.URL, sel.SentAt, imagePath, thumbPath)
	metrics.UpdatesPerformed.Inc()
	metrics.LastUpdateUnix.Set(time.Now().Unix())

	o.logger.Info("update performed", "trigger", trigger,
		"media_sid", sel.Attachment.MediaSID, "sent_at", sel.SentAt, "image", imagePath)

	if o.journal != nil {
		entry := JournalEntry{
			AttachmentURL: sel.Attachment.URL,
			SentAt:        sel.SentAt,
			CommittedAt:   time.Now(),
			ImagePath:     imagePath,
			ThumbnailPath: thumbPath,
			Trigger:       string(trigger),
		}
		if err := o.journal.Record(ctx, entry); err != nil {
			o.logger.Error("journal record failed", "err", err)
		}
	}
	if o.notifier != nil {
		o.notifier.Notify(fmt.Sprintf("New photo committed (sent %s, via %s)",
			sel.SentAt.Format(time.RFC822), trigger))
	}

	// The replaced files are no longer referenced by any snapshot taken
	// after the commit; readers mid-response still hold open descriptors.
	o.removeOld(snap.ImagePath, snap.ThumbnailPath)

	return Result{
		Performed:     true,
		AttachmentURL: sel.Attachment.URL,
		ImagePath:     imagePath,
		ThumbnailPath: thumbPath,
	}, nil
}

func (o *Orchestrator) removeOld(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			o.logger.Warn("could not remove replaced file", "path", p, "err", err)
		}
	}
}
