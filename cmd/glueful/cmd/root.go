package cmd

import (
	"fmt"
	"os"

	"github.com/glueful/glueful/internal/config"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "glueful",
	Short: "Glueful framework services",
	Long: `Glueful runs the framework's operational surfaces: database migrations,
queue workers, the cron scheduler, and authorization maintenance.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Flags override the environment.
		if flags := cmd.Root().PersistentFlags(); flags != nil {
			if flags.Changed("db-url") {
				cfg.DatabaseURL, _ = flags.GetString("db-url")
			}
			if flags.Changed("debug") {
				cfg.Debug, _ = flags.GetBool("debug")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
