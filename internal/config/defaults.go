package config

import "path/filepath"

func Defaults() *Config {
	dataDir := filepath.Join(DefaultConfigDir(), "data")
	return &Config{
		General: GeneralConfig{
			DataDir:  dataDir,
			LogLevel: "info",
		},
		Provider: ProviderConfig{
			APIBase: "https://api.twilio.com",
		},
		Update: UpdateConfig{
			PollIntervalMinutes:  120,
			WebhookMaxAgeMinutes: 10,
		},
		Download: DownloadConfig{
			MaxRetries:     3,
			TimeoutSeconds: 60,
		},
		Thumbnail: ThumbnailConfig{
			MaxDimension: 640,
			AllowUpscale: false,
		},
		Reminder: ReminderConfig{
			Enabled:        false,
			ThresholdHours: 24,
			IntervalHours:  1,
			DailyStartHour: 9,
		},
		Web: WebConfig{
			Host:     "0.0.0.0",
			Port:     10080,
			Subject:  "Alec",
			Location: "Taiwan",
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  filepath.Join(dataDir, "history.db"),
		},
	}
}
