// chorus-migrate manages the coordinator's sqlite schema out of band. The
// coordinator applies pending migrations at startup; this tool exists for
// rollbacks, stuck deployments, and inspecting schema state.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/chorusnet/chorus/pkg/storage"
)

var dataDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chorus-migrate",
	Short: "Manage the chorus coordinator database schema",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, closeDB, err := storage.OpenMigrator(dataDir)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("Schema already up to date.")
				return nil
			}
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Println("Migrations applied.")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, closeDB, err := storage.OpenMigrator(dataDir)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("Nothing to roll back.")
				return nil
			}
			return fmt.Errorf("rollback failed: %w", err)
		}
		fmt.Println("Rolled back one migration.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, closeDB, err := storage.OpenMigrator(dataDir)
		if err != nil {
			return err
		}
		defer closeDB()

		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied yet.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "/var/lib/chorus", "Chorus data directory")
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(statusCmd)
}
