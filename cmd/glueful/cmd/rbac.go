package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/glueful/glueful/internal/db/bunx"
	"github.com/glueful/glueful/internal/repository"
	"github.com/spf13/cobra"
)

var rbacCmd = &cobra.Command{
	Use:   "rbac",
	Short: "Authorization maintenance commands",
}

var rbacCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired role and permission grants",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		grants := repository.NewBunGrantRepository(db)
		removed, err := grants.CleanupExpired(cmd.Context(), time.Now())
		if err != nil {
			return fmt.Errorf("failed to clean up expired grants: %w", err)
		}

		log.Printf("Removed %d expired grant(s)", removed)
		return nil
	},
}

func init() {
	rbacCmd.AddCommand(rbacCleanupCmd)
	rootCmd.AddCommand(rbacCmd)
}
