package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lifesign/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and report what is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			godotenv.Load()

			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("✗ config: %v (run `lifesign init`)\n", err)
				cfg = config.Defaults()
			} else {
				fmt.Printf("✓ config loaded: %s\n", cfgPath)
			}

			if err := cfg.Validate(); err != nil {
				fmt.Printf("✗ %v\n", err)
				os.Exit(1)
			}
			fmt.Println("✓ required settings present")

			if cfg.Web.PublicURL == "" {
				fmt.Println("! web.publicUrl unset: webhook signature validation will reject all requests")
			}
			if !cfg.Reminder.Enabled {
				fmt.Println("- reminders disabled")
			}
			if cfg.Update.SecretPattern == "" {
				fmt.Println("! update.secretPattern unset: any MMS from the trusted number qualifies")
			}
			return nil
		},
	}
}
