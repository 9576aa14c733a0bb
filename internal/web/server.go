// Package web serves the public page (latest photo, thumbnail, freshness
// caption), the status and metrics endpoints, and the provider webhook.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/http"
	"time"

	"lifesign/internal/history"
	"lifesign/internal/metrics"
	"lifesign/internal/update"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the HTTP front end.
type Server struct {
	host     string
	port     int
	subject  string
	location string

	state   *update.State
	orch    *update.Orchestrator
	journal *history.Store // optional, for /status

	authToken     string // provider auth secret, for webhook signature validation
	publicURL     string // externally visible base URL the provider signs against
	trustedNumber string

	logger *slog.Logger
	server *http.Server
	tmpl   *htmltemplate.Template
}

type ServerConfig struct {
	Host     string
	Port     int
	Subject  string
	Location string

	State   *update.State
	Orch    *update.Orchestrator
	Journal *history.Store

	AuthToken     string
	PublicURL     string
	TrustedNumber string

	Logger *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 10080
	}
	if cfg.Subject == "" {
		cfg.Subject = "the sender"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tmpl := htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))

	return &Server{
		host:          cfg.Host,
		port:          cfg.Port,
		subject:       cfg.Subject,
		location:      cfg.Location,
		state:         cfg.State,
		orch:          cfg.Orch,
		journal:       cfg.Journal,
		authToken:     cfg.AuthToken,
		publicURL:     cfg.PublicURL,
		trustedNumber: cfg.TrustedNumber,
		logger:        cfg.Logger,
		tmpl:          tmpl,
	}
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /images/latest.jpg", s.handleImage)
	mux.HandleFunc("GET /images/latest-small.jpg", s.handleThumbnail)
	mux.HandleFunc("POST /twilio", s.handleWebhook)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", metrics.Collector.Handler())

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("web server starting", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type pageData struct {
	Subject   string
	Location  string
	Word      string
	HasImage  bool
	UpdatedAt string
	AgeHours  int
}

func (s *Server) handleIndex(rw http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	word, _ := s.state.Caption(time.Now())

	data := pageData{
		Subject:  s.subject,
		Location: s.location,
		Word:     word,
		HasImage: snap.ThumbnailPath != "",
	}
	if !snap.LastSentAt.IsZero() {
		data.UpdatedAt = snap.LastSentAt.Format("Mon, 02 Jan 2006 15:04 MST")
		data.AgeHours = int(time.Since(snap.LastSentAt).Hours())
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(rw, "index.html", data); err != nil {
		s.logger.Error("render index failed", "err", err)
	}
}

func (s *Server) handleImage(rw http.ResponseWriter, r *http.Request) {
	s.serveCurrent(rw, r, s.state.Snapshot().ImagePath)
}

func (s *Server) handleThumbnail(rw http.ResponseWriter, r *http.Request) {
	s.serveCurrent(rw, r, s.state.Snapshot().ThumbnailPath)
}

func (s *Server) serveCurrent(rw http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "image/jpeg")
	rw.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(rw, r, path)
}

type statusResponse struct {
	Updated   bool            `json:"updated"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	AgeHours  float64         `json:"age_hours,omitempty"`
	Bucket    string          `json:"bucket"`
	Recent    []statusHistory `json:"recent,omitempty"`
}

type statusHistory struct {
	CommittedAt time.Time `json:"committed_at"`
	Trigger     string    `json:"trigger"`
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	_, bucket := s.state.Caption(time.Now())

	resp := statusResponse{Bucket: bucket.String()}
	if !snap.LastSentAt.IsZero() {
		resp.Updated = true
		sentAt := snap.LastSentAt
		resp.SentAt = &sentAt
		resp.AgeHours = time.Since(sentAt).Hours()
	}
	if s.journal != nil {
		entries, err := s.journal.Recent(r.Context(), 10)
		if err != nil {
			s.logger.Error("journal read failed", "err", err)
		}
		for _, e := range entries {
			resp.Recent = append(resp.Recent, statusHistory{CommittedAt: e.CommittedAt, Trigger: e.Trigger})
		}
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(resp)
}
