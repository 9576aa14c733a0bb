package media

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testDownloader(maxRetries int) *Downloader {
	return NewDownloader(DownloaderConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		Logger:     testLogger(),
	})
}

func TestFetch_WritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "latest.jpg")
	if err := testDownloader(0).Fetch(context.Background(), srv.URL, dest); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("unexpected content %q", data)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after a successful fetch")
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(rw, "flaky", http.StatusInternalServerError)
			return
		}
		rw.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "latest.jpg")
	if err := testDownloader(3).Fetch(context.Background(), srv.URL, dest); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetch_FailsFastOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(rw, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "latest.jpg")
	err := testDownloader(3).Fetch(context.Background(), srv.URL, dest)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("404 should not be retried, got %d attempts", got)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination should be absent after a failed fetch")
	}
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(rw, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "latest.jpg")
	err := testDownloader(2).Fetch(context.Background(), srv.URL, dest)

	var derr *DownloadError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if derr.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", derr.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 1 + 2 retries, got %d", got)
	}
}

func TestFetch_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderConfig{
		MaxRetries: 5,
		RetryDelay: time.Hour, // cancellation must win, not the timer
		Logger:     testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	dest := filepath.Join(t.TempDir(), "latest.jpg")
	err := d.Fetch(ctx, srv.URL, dest)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}
