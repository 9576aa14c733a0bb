// Package provider implements the messaging-provider client for the Twilio
// 2010-04-01 REST API: listing inbound messages, resolving their media, and
// sending outbound SMS. Calls are single-shot; retry policy belongs to the
// attachment downloader, not here.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lifesign/internal/domain"
)

const apiVersion = "2010-04-01"

// twilioTimeLayout is the RFC 2822 style timestamp the API returns,
// e.g. "Fri, 14 Aug 2026 09:13:05 +0000".
const twilioTimeLayout = time.RFC1123Z

// Client talks to the Twilio REST API with HTTP Basic auth.
type Client struct {
	accountSID string
	authToken  string
	apiBase    string
	http       *http.Client
	logger     *slog.Logger
}

type ClientConfig struct {
	AccountSID string
	AuthToken  string
	APIBase    string // default: https://api.twilio.com
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.twilio.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(30 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// Wire representations. The API reports counts as strings and timestamps in
// RFC 2822 format; both are normalized here so the rest of the code never
// sees them.
type messageJSON struct {
	SID      string `json:"sid"`
	From     string `json:"from"`
	Body     string `json:"body"`
	NumMedia string `json:"num_media"`
	Status   string `json:"status"`
	DateSent string `json:"date_sent"`
}

type messageListJSON struct {
	Messages []messageJSON `json:"messages"`
}

type mediaJSON struct {
	SID string `json:"sid"`
	URI string `json:"uri"`
}

type mediaListJSON struct {
	MediaList []mediaJSON `json:"media_list"`
}

func (m messageJSON) toDomain() domain.InboundMessage {
	numMedia, _ := strconv.Atoi(m.NumMedia)
	sentAt, _ := time.Parse(twilioTimeLayout, m.DateSent)
	return domain.InboundMessage{
		SID:      m.SID,
		From:     m.From,
		Body:     m.Body,
		NumMedia: numMedia,
		Status:   m.Status,
		SentAt:   sentAt,
	}
}

// ListRecentInbound returns recent messages from the given sender, newest
// first (the API's default ordering).
func (c *Client) ListRecentInbound(ctx context.Context, from string) ([]domain.InboundMessage, error) {
	q := url.Values{"From": {from}, "PageSize": {"50"}}
	var list messageListJSON
	if err := c.get(ctx, "list messages", c.accountURL("Messages.json")+"?"+q.Encode(), &list); err != nil {
		return nil, err
	}
	msgs := make([]domain.InboundMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		msgs = append(msgs, m.toDomain())
	}
	return msgs, nil
}

// GetMediaList returns the media attached to a message. The returned URL is
// the directly fetchable content URL: the media host plus the entry's path
// with the trailing ".json" stripped.
func (c *Client) GetMediaList(ctx context.Context, messageSID string) ([]domain.AttachmentReference, error) {
	var list mediaListJSON
	path := fmt.Sprintf("Messages/%s/Media.json", messageSID)
	if err := c.get(ctx, "list media", c.accountURL(path), &list); err != nil {
		return nil, err
	}
	refs := make([]domain.AttachmentReference, 0, len(list.MediaList))
	for _, m := range list.MediaList {
		refs = append(refs, domain.AttachmentReference{
			MediaSID: m.SID,
			URL:      c.apiBase + strings.TrimSuffix(m.URI, ".json"),
		})
	}
	return refs, nil
}

// GetMessage fetches one message by SID.
func (c *Client) GetMessage(ctx context.Context, messageSID string) (*domain.InboundMessage, error) {
	var m messageJSON
	if err := c.get(ctx, "get message", c.accountURL(fmt.Sprintf("Messages/%s.json", messageSID)), &m); err != nil {
		return nil, err
	}
	msg := m.toDomain()
	return &msg, nil
}

// SendMessage sends an outbound SMS.
func (c *Client) SendMessage(ctx context.Context, to, from, body string) error {
	form := url.Values{"To": {to}, "From": {from}, "Body": {body}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountURL("Messages.json"),
		strings.NewReader(form.Encode()))
	if err != nil {
		return &domain.ProviderError{Op: "send message", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ProviderError{Op: "send message", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.ProviderError{Op: "send message", StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	c.logger.Info("outbound message sent", "to", to)
	return nil
}

func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/%s/Accounts/%s/%s", c.apiBase, apiVersion, c.accountSID, path)
}

func (c *Client) get(ctx context.Context, op, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &domain.ProviderError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
