package update

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"lifesign/internal/domain"
)

// Selection is the outcome of a successful scan: the attachment to fetch and
// when the trusted sender sent it.
type Selection struct {
	MessageSID string
	SentAt     time.Time
	Attachment domain.AttachmentReference
}

// Selector picks the newest inbound message that satisfies the attachment,
// status, and shared-secret policy. First match wins.
type Selector struct {
	provider      domain.MessageProvider
	trustedNumber string
	secretRe      *regexp.Regexp // nil when no secret is configured
	logger        *slog.Logger
}

type SelectorConfig struct {
	Provider      domain.MessageProvider
	TrustedNumber string
	SecretPattern string
	Logger        *slog.Logger
}

func NewSelector(cfg SelectorConfig) (*Selector, error) {
	var re *regexp.Regexp
	if cfg.SecretPattern != "" {
		var err error
		re, err = regexp.Compile(cfg.SecretPattern)
		if err != nil {
			return nil, fmt.Errorf("secret pattern: %w", err)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Selector{
		provider:      cfg.Provider,
		trustedNumber: cfg.TrustedNumber,
		secretRe:      re,
		logger:        cfg.Logger,
	}, nil
}

// Select scans recent inbound messages newest-first and returns the first
// one with exactly one attachment, a received status, and a body matching
// the shared secret. A non-zero maxAge additionally rejects messages sent
// longer than maxAge ago (used for webhook-triggered runs). Returns
// domain.ErrNoQualifyingMessage when nothing passes and
// domain.ErrNoMediaAttached when the match has no retrievable media.
func (s *Selector) Select(ctx context.Context, maxAge time.Duration) (*Selection, error) {
	msgs, err := s.provider.ListRecentInbound(ctx, s.trustedNumber)
	if err != nil {
		return nil, err
	}

	var match *domain.InboundMessage
	for i := range msgs {
		m := &msgs[i]
		if !s.qualifies(m, maxAge) {
			continue
		}
		match = m
		break
	}
	if match == nil {
		return nil, domain.ErrNoQualifyingMessage
	}

	media, err := s.provider.GetMediaList(ctx, match.SID)
	if err != nil {
		return nil, err
	}
	if len(media) == 0 || media[0].MediaSID == "" || media[0].URL == "" {
		return nil, domain.ErrNoMediaAttached
	}

	s.logger.Debug("selected message", "sid", match.SID, "sent_at", match.SentAt)
	return &Selection{
		MessageSID: match.SID,
		SentAt:     match.SentAt,
		Attachment: media[0],
	}, nil
}

func (s *Selector) qualifies(m *domain.InboundMessage, maxAge time.Duration) bool {
	if m.NumMedia != 1 {
		return false
	}
	// An empty status is the provider default for fully delivered inbound
	// messages on some API versions.
	if m.Status != "" && m.Status != domain.StatusReceived {
		return false
	}
	if s.secretRe != nil && !s.secretRe.MatchString(m.Body) {
		return false
	}
	if maxAge > 0 && time.Since(m.SentAt) > maxAge {
		return false
	}
	return true
}
