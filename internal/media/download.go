// Package media fetches remote attachments to local storage and generates
// display thumbnails. Files are placed with write-to-temp-then-rename so a
// path callers observe is either fully written or absent.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"
)

// DownloadError is returned once the retry budget for a fetch is exhausted
// or the destination cannot be written.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Downloader streams remote content to local files with bounded retry.
type Downloader struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

type DownloaderConfig struct {
	Client     *http.Client
	MaxRetries int           // additional attempts after the first
	RetryDelay time.Duration // base backoff unit (default 1s)
	Logger     *slog.Logger
}

func NewDownloader(cfg DownloaderConfig) *Downloader {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Downloader{
		client:     cfg.Client,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}
}

// Fetch downloads url to dest. Transport errors and 5xx/429 responses are
// retried with exponential backoff and jitter; other HTTP errors fail
// immediately. On success dest is atomically replaced; on failure it is left
// untouched.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * d.retryDelay
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			d.logger.Warn("retrying download", "url", url, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return &DownloadError{URL: url, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		retryable, err := d.fetchOnce(ctx, url, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return &DownloadError{URL: url, Attempts: attempt + 1, Err: err}
		}
		d.logger.Warn("download attempt failed", "url", url, "err", err)
	}

	return &DownloadError{URL: url, Attempts: d.maxRetries + 1, Err: lastErr}
}

// fetchOnce performs a single download attempt. The boolean reports whether
// the failure is worth retrying.
func (d *Downloader) fetchOnce(ctx context.Context, url, dest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return true, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return true, fmt.Errorf("stream body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("place %s: %w", dest, err)
	}
	return false, nil
}
