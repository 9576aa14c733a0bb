package domain

import (
	"context"
	"errors"
	"fmt"
)

// MessageProvider wraps the messaging provider's REST API. All calls are
// network I/O; the pipeline never retries them itself (attachment downloads
// have their own retry policy).
type MessageProvider interface {
	// ListRecentInbound returns recent inbound messages from the given
	// sender, newest first.
	ListRecentInbound(ctx context.Context, from string) ([]InboundMessage, error)

	// GetMediaList returns the media attached to a message.
	GetMediaList(ctx context.Context, messageSID string) ([]AttachmentReference, error)

	// GetMessage fetches a single message by its provider-assigned SID.
	GetMessage(ctx context.Context, messageSID string) (*InboundMessage, error)

	// SendMessage sends an outbound text message.
	SendMessage(ctx context.Context, to, from, body string) error
}

// Selection failures. Not retried; callers report them as "nothing to update".
var (
	ErrNoQualifyingMessage = errors.New("no qualifying inbound message")
	ErrNoMediaAttached     = errors.New("message has no retrievable media")
)

// ProviderError is a transport or auth failure talking to the messaging
// provider.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }
