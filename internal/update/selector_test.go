package update

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"lifesign/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type sentMessage struct {
	To, From, Body string
}

// fakeProvider is an in-memory domain.MessageProvider.
type fakeProvider struct {
	mu       sync.Mutex
	messages []domain.InboundMessage
	media    map[string][]domain.AttachmentReference
	listErr  error
	sent     []sentMessage

	// When set, ListRecentInbound signals entered once and then blocks
	// until released is closed. Used to hold a refresh in flight.
	entered  chan struct{}
	released chan struct{}
	once     sync.Once
}

func (f *fakeProvider) ListRecentInbound(ctx context.Context, from string) ([]domain.InboundMessage, error) {
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
		<-f.released
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.InboundMessage, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeProvider) GetMediaList(ctx context.Context, messageSID string) ([]domain.AttachmentReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media[messageSID], nil
}

func (f *fakeProvider) GetMessage(ctx context.Context, messageSID string) (*domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].SID == messageSID {
			m := f.messages[i]
			return &m, nil
		}
	}
	return nil, &domain.ProviderError{Op: "get message", StatusCode: 404}
}

func (f *fakeProvider) SendMessage(ctx context.Context, to, from, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: to, From: from, Body: body})
	return nil
}

func (f *fakeProvider) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestSelector(t *testing.T, fp *fakeProvider, pattern string) *Selector {
	t.Helper()
	sel, err := NewSelector(SelectorConfig{
		Provider:      fp,
		TrustedNumber: "+15551234567",
		SecretPattern: pattern,
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func TestSelect_FirstQualifyingWins(t *testing.T) {
	now := time.Now()
	fp := &fakeProvider{
		// Newest first: m0 has the wrong secret, m1 has no media, m2 qualifies.
		messages: []domain.InboundMessage{
			{SID: "m0", Body: "hello there", NumMedia: 1, Status: "received", SentAt: now},
			{SID: "m1", Body: "still alive", NumMedia: 0, Status: "received", SentAt: now.Add(-time.Hour)},
			{SID: "m2", Body: "still alive", NumMedia: 1, Status: "received", SentAt: now.Add(-2 * time.Hour)},
			{SID: "m3", Body: "still alive", NumMedia: 1, Status: "received", SentAt: now.Add(-3 * time.Hour)},
		},
		media: map[string][]domain.AttachmentReference{
			"m2": {{MediaSID: "ME2", URL: "https://media.example.com/ME2"}},
			"m3": {{MediaSID: "ME3", URL: "https://media.example.com/ME3"}},
		},
	}

	sel := newTestSelector(t, fp, "^still alive")
	got, err := sel.Select(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageSID != "m2" {
		t.Errorf("expected m2 (first match wins), got %s", got.MessageSID)
	}
	if got.Attachment.MediaSID != "ME2" {
		t.Errorf("expected ME2, got %s", got.Attachment.MediaSID)
	}
	if !got.SentAt.Equal(now.Add(-2 * time.Hour)) {
		t.Errorf("selection should carry the message timestamp")
	}
}

func TestSelect_NoQualifyingMessage(t *testing.T) {
	fp := &fakeProvider{
		messages: []domain.InboundMessage{
			{SID: "m0", Body: "wrong secret", NumMedia: 1, Status: "received"},
			{SID: "m1", Body: "still alive", NumMedia: 2, Status: "received"},
		},
	}

	sel := newTestSelector(t, fp, "^still alive")
	_, err := sel.Select(context.Background(), 0)
	if !errors.Is(err, domain.ErrNoQualifyingMessage) {
		t.Errorf("expected ErrNoQualifyingMessage, got %v", err)
	}
}

func TestSelect_NoMediaAttached(t *testing.T) {
	fp := &fakeProvider{
		messages: []domain.InboundMessage{
			{SID: "m0", Body: "still alive", NumMedia: 1, Status: "received", SentAt: time.Now()},
		},
		media: map[string][]domain.AttachmentReference{}, // declared but not retrievable
	}

	sel := newTestSelector(t, fp, "")
	_, err := sel.Select(context.Background(), 0)
	if !errors.Is(err, domain.ErrNoMediaAttached) {
		t.Errorf("expected ErrNoMediaAttached, got %v", err)
	}
}

func TestSelect_RejectsUndeliveredStatus(t *testing.T) {
	fp := &fakeProvider{
		messages: []domain.InboundMessage{
			{SID: "m0", Body: "still alive", NumMedia: 1, Status: "failed", SentAt: time.Now()},
		},
	}

	sel := newTestSelector(t, fp, "")
	_, err := sel.Select(context.Background(), 0)
	if !errors.Is(err, domain.ErrNoQualifyingMessage) {
		t.Errorf("expected ErrNoQualifyingMessage, got %v", err)
	}
}

func TestSelect_EmptyStatusIsProviderDefault(t *testing.T) {
	fp := &fakeProvider{
		messages: []domain.InboundMessage{
			{SID: "m0", Body: "still alive", NumMedia: 1, SentAt: time.Now()},
		},
		media: map[string][]domain.AttachmentReference{
			"m0": {{MediaSID: "ME0", URL: "https://media.example.com/ME0"}},
		},
	}

	sel := newTestSelector(t, fp, "")
	got, err := sel.Select(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageSID != "m0" {
		t.Errorf("expected m0, got %s", got.MessageSID)
	}
}

func TestSelect_MaxAgeFiltersStaleMessages(t *testing.T) {
	fp := &fakeProvider{
		messages: []domain.InboundMessage{
			{SID: "old", Body: "still alive", NumMedia: 1, Status: "received",
				SentAt: time.Now().Add(-time.Hour)},
		},
		media: map[string][]domain.AttachmentReference{
			"old": {{MediaSID: "ME1", URL: "https://media.example.com/ME1"}},
		},
	}

	sel := newTestSelector(t, fp, "")

	// Webhook-style run with a 10 minute window rejects it.
	if _, err := sel.Select(context.Background(), 10*time.Minute); !errors.Is(err, domain.ErrNoQualifyingMessage) {
		t.Errorf("expected ErrNoQualifyingMessage under maxAge, got %v", err)
	}

	// A poll-style run without the window accepts it.
	if _, err := sel.Select(context.Background(), 0); err != nil {
		t.Errorf("expected success without maxAge, got %v", err)
	}
}

func TestSelect_PropagatesProviderError(t *testing.T) {
	fp := &fakeProvider{listErr: &domain.ProviderError{Op: "list messages", StatusCode: 503}}

	sel := newTestSelector(t, fp, "")
	_, err := sel.Select(context.Background(), 0)
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}
