package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"lifesign/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		APIBase:    srv.URL,
		Logger:     testLogger(),
	})
}

func TestListRecentInbound(t *testing.T) {
	client := testClient(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("From"); got != "+15551234567" {
			t.Errorf("expected From filter, got %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC123" || pass != "token" {
			t.Error("expected basic auth with account credentials")
		}
		rw.Write([]byte(`{"messages": [
			{"sid": "SM1", "from": "+15551234567", "body": "still alive", "num_media": "1",
			 "status": "received", "date_sent": "Fri, 14 Aug 2026 09:13:05 +0000"},
			{"sid": "SM2", "from": "+15551234567", "body": "hi", "num_media": "0",
			 "status": "received", "date_sent": "Thu, 13 Aug 2026 18:00:00 +0000"}
		]}`))
	})

	msgs, err := client.ListRecentInbound(context.Background(), "+15551234567")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].SID != "SM1" {
		t.Errorf("expected SM1 first, got %s", msgs[0].SID)
	}
	if msgs[0].NumMedia != 1 {
		t.Errorf("num_media string should parse to 1, got %d", msgs[0].NumMedia)
	}
	if msgs[0].SentAt.IsZero() {
		t.Error("date_sent should parse")
	}
	if got := msgs[0].SentAt.Hour(); got != 9 {
		t.Errorf("expected hour 9, got %d", got)
	}
}

func TestGetMediaList_StripsJSONSuffix(t *testing.T) {
	client := testClient(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"media_list": [
			{"sid": "ME1", "uri": "/2010-04-01/Accounts/AC123/Messages/SM1/Media/ME1.json"}
		]}`))
	})

	media, err := client.GetMediaList(context.Background(), "SM1")
	if err != nil {
		t.Fatal(err)
	}
	if len(media) != 1 {
		t.Fatalf("expected 1 media entry, got %d", len(media))
	}
	want := client.apiBase + "/2010-04-01/Accounts/AC123/Messages/SM1/Media/ME1"
	if media[0].URL != want {
		t.Errorf("expected %s, got %s", want, media[0].URL)
	}
}

func TestGetMessage(t *testing.T) {
	client := testClient(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages/SM1.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		rw.Write([]byte(`{"sid": "SM1", "from": "+15551234567", "num_media": "1",
			"status": "received", "date_sent": "Fri, 14 Aug 2026 09:13:05 +0000"}`))
	})

	msg, err := client.GetMessage(context.Background(), "SM1")
	if err != nil {
		t.Fatal(err)
	}
	if msg.SID != "SM1" {
		t.Errorf("expected SM1, got %s", msg.SID)
	}
}

func TestSendMessage(t *testing.T) {
	var gotForm map[string]string
	client := testClient(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		r.ParseForm()
		gotForm = map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		}
		rw.WriteHeader(http.StatusCreated)
		rw.Write([]byte(`{"sid": "SM9"}`))
	})

	err := client.SendMessage(context.Background(), "+15550001111", "+15550002222", "wake up")
	if err != nil {
		t.Fatal(err)
	}
	if gotForm["To"] != "+15550001111" || gotForm["From"] != "+15550002222" || gotForm["Body"] != "wake up" {
		t.Errorf("unexpected form: %v", gotForm)
	}
}

func TestProviderError_OnHTTPFailure(t *testing.T) {
	client := testClient(t, func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "no such account", http.StatusUnauthorized)
	})

	_, err := client.ListRecentInbound(context.Background(), "+15551234567")
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", perr.StatusCode)
	}
}
