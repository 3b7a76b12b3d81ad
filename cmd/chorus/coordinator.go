package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chorusnet/chorus/pkg/api"
	"github.com/chorusnet/chorus/pkg/blob"
	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/distributor"
	"github.com/chorusnet/chorus/pkg/janitor"
	"github.com/chorusnet/chorus/pkg/metrics"
	"github.com/chorusnet/chorus/pkg/storage"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the coordinator process",
	Long: `Run the coordinator: HTTP API, task distributor, consensus engine,
and background janitor over a local sqlite store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen-addr"); addr != "" {
			cfg.ListenAddr = addr
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.DataDir = dir
		}
		if cmd.Flags().Changed("min-consensus-auditors") {
			cfg.MinConsensusAuditors, _ = cmd.Flags().GetInt("min-consensus-auditors")
		}
		if cmd.Flags().Changed("consensus-window") {
			cfg.ConsensusWindow, _ = cmd.Flags().GetDuration("consensus-window")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		metrics.SetVersion(Version)

		store, err := storage.NewSQLiteStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open task store: %w", err)
		}
		defer store.Close()
		metrics.RegisterComponent("store", true, "")

		blobs, err := blob.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}
		defer blobs.Close()

		coord, err := coordinator.New(cfg, store, blobs)
		if err != nil {
			return fmt.Errorf("failed to create coordinator: %w", err)
		}

		dist := distributor.NewDistributor(coord, cfg.DistributionInterval)
		dist.Start()
		defer dist.Stop()

		jan := janitor.NewJanitor(coord, cfg.DistributionInterval, cfg.AssignmentTimeout, cfg.MaxRedistribute)
		jan.Start()
		defer jan.Stop()

		collector := metrics.NewCollector(coord, 0)
		collector.Start()
		defer collector.Stop()

		server := api.NewServer(coord)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(cfg.ListenAddr); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(ctx)
	},
}

func init() {
	coordinatorCmd.Flags().String("listen-addr", "", "HTTP listen address (overrides config)")
	coordinatorCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	coordinatorCmd.Flags().Int("min-consensus-auditors", 0, "Distinct auditors required before publishing consensus (overrides config)")
	coordinatorCmd.Flags().Duration("consensus-window", 0, "Report freshness window for consensus (overrides config)")
}
