package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lifesign/internal/config"
	"lifesign/internal/history"
	"lifesign/internal/media"
	"lifesign/internal/notify"
	"lifesign/internal/provider"
	"lifesign/internal/sched"
	"lifesign/internal/update"
	"lifesign/internal/web"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "lifesign",
		Short:   "lifesign: publish the latest photo from a trusted phone number",
		Long:    "lifesign watches a trusted number's MMS, keeps the newest photo and a freshness caption on a web page, and nags when the photo gets old.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.lifesign/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the watcher, scheduler, and web server",
		RunE:  runServe,
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one manual refresh and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			res, err := app.orch.Refresh(ctx, update.TriggerManual)
			if err != nil {
				return err
			}
			if res.Performed {
				logger.Info("update performed", "image", res.ImagePath)
			} else {
				logger.Info("no update performed")
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent committed updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled in config")
			}
			store, err := history.New(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No updates recorded yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  via %-7s  sent %s\n",
					e.CommittedAt.Format(time.RFC3339), e.Trigger, e.SentAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. web.publicUrl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := yaml.Marshal(val)
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. reminder.thresholdHours 12)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := yaml.Marshal(config.Sanitize(cfg))
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func loadConfig() (*config.Config, error) {
	// A .env next to the working directory is the lightest way to keep
	// provider secrets out of the config file.
	godotenv.Load()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app bundles everything serve and refresh need.
type app struct {
	cfg      *config.Config
	orch     *update.Orchestrator
	state    *update.State
	client   *provider.Client
	journal  *history.Store
	notifier update.Notifier
}

func (a *app) Close() {
	if a.journal != nil {
		a.journal.Close()
	}
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := parseLogLevel(cfg.General.LogLevel)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return nil, err
	}

	httpClient := provider.SharedHTTPClient(time.Duration(cfg.Download.TimeoutSeconds) * time.Second)

	client := provider.NewClient(provider.ClientConfig{
		AccountSID: cfg.Provider.AccountSID,
		AuthToken:  cfg.Provider.AuthToken,
		APIBase:    cfg.Provider.APIBase,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	selector, err := update.NewSelector(update.SelectorConfig{
		Provider:      client,
		TrustedNumber: cfg.Provider.TrustedNumber,
		SecretPattern: cfg.Update.SecretPattern,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	downloader := media.NewDownloader(media.DownloaderConfig{
		Client:     httpClient,
		MaxRetries: cfg.Download.MaxRetries,
		Logger:     logger,
	})
	thumbnailer := media.NewThumbnailer(media.ThumbnailerConfig{
		MaxDimension: cfg.Thumbnail.MaxDimension,
		AllowUpscale: cfg.Thumbnail.AllowUpscale,
		Logger:       logger,
	})

	var journal *history.Store
	if cfg.History.Enabled {
		journal, err = history.New(cfg.History.DBPath, logger)
		if err != nil {
			return nil, err
		}
	}

	var notifier update.Notifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
			Logger: logger,
		})
		if err != nil {
			logger.Error("telegram notifier disabled", "err", err)
		} else {
			notifier = tg
		}
	}

	state := update.NewState()
	var journalIface update.Journal
	if journal != nil {
		journalIface = journal
	}
	orch := update.NewOrchestrator(update.OrchestratorConfig{
		Selector:      selector,
		Downloader:    downloader,
		Thumbnailer:   thumbnailer,
		State:         state,
		ImageDir:      cfg.General.DataDir,
		WebhookMaxAge: time.Duration(cfg.Update.WebhookMaxAgeMinutes) * time.Minute,
		Journal:       journalIface,
		Notifier:      notifier,
		Logger:        logger,
	})

	return &app{cfg: cfg, orch: orch, state: state, client: client, journal: journal, notifier: notifier}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Best-effort refresh at startup so the page has something to show.
	go func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if _, err := a.orch.Refresh(refreshCtx, update.TriggerManual); err != nil {
			logger.Warn("startup refresh failed", "err", err)
		}
	}()

	scheduler := sched.New(sched.Config{
		Orchestrator:      a.orch,
		State:             a.state,
		Provider:          a.client,
		Logger:            logger,
		PollInterval:      time.Duration(cfg.Update.PollIntervalMinutes) * time.Minute,
		ReminderEnabled:   cfg.Reminder.Enabled,
		ReminderRecipient: cfg.Reminder.Recipient,
		OutboundNumber:    cfg.Provider.OutboundNumber,
		ReminderThreshold: time.Duration(cfg.Reminder.ThresholdHours) * time.Hour,
		ReminderInterval:  cfg.Reminder.IntervalHours,
		DailyStartHour:    cfg.Reminder.DailyStartHour,
		Notifier:          a.notifier,
	})
	go scheduler.Start(ctx)

	server := web.NewServer(web.ServerConfig{
		Host:          cfg.Web.Host,
		Port:          cfg.Web.Port,
		Subject:       cfg.Web.Subject,
		Location:      cfg.Web.Location,
		State:         a.state,
		Orch:          a.orch,
		Journal:       a.journal,
		AuthToken:     cfg.Provider.AuthToken,
		PublicURL:     cfg.Web.PublicURL,
		TrustedNumber: cfg.Provider.TrustedNumber,
		Logger:        logger,
	})
	return server.Start(ctx)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
