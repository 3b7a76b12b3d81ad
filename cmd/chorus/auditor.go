package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chorusnet/chorus/pkg/auditor"
	"github.com/chorusnet/chorus/pkg/client"
	"github.com/chorusnet/chorus/pkg/trust"
)

var auditorCmd = &cobra.Command{
	Use:   "auditor",
	Short: "Run an auditor process",
	Long: `Run an auditor: report worker status for consensus, re-execute
completed tasks, score worker responses, and emit trust weights through the
substrate. An unreachable substrate at startup is fatal (exit code 2).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		auditorID, _ := cmd.Flags().GetString("auditor-id")
		if auditorID == "" {
			return fmt.Errorf("--auditor-id is required")
		}
		hotkey, _ := cmd.Flags().GetString("hotkey")
		echo, _ := cmd.Flags().GetBool("echo")
		sim, _ := cmd.Flags().GetBool("sim-substrate")
		if u, _ := cmd.Flags().GetString("coordinator-url"); u != "" {
			cfg.CoordinatorURL = u
		}
		if cmd.Flags().Changed("audit-interval-blocks") {
			cfg.AuditIntervalBlocks, _ = cmd.Flags().GetUint64("audit-interval-blocks")
		}
		if cmd.Flags().Changed("max-top-workers") {
			cfg.MaxTopWorkers, _ = cmd.Flags().GetInt("max-top-workers")
		}

		var substrate trust.IdentityAndEmit
		if sim {
			substrate = trust.NewSim(hotkey, 12*time.Second)
		} else {
			if cfg.SubstrateURL == "" {
				return fmt.Errorf("substrate_url is required (or pass --sim-substrate)")
			}
			substrate = trust.NewHTTPSubstrate(cfg.SubstrateURL, hotkey)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = substrate.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %v", trust.ErrUnreachable, err)
		}

		execs, err := buildExecutors(cfg.Executors, echo)
		if err != nil {
			return err
		}

		c := client.New(cfg.CoordinatorURL)
		a, err := auditor.New(auditor.Config{
			AuditorID:           auditorID,
			AuditIntervalBlocks: cfg.AuditIntervalBlocks,
			MaxTopWorkers:       cfg.MaxTopWorkers,
			BlockPollInterval:   cfg.PollInterval,
			Statuses:            auditor.NewRegistrySource(c),
		}, c, execs, substrate)
		if err != nil {
			return err
		}

		a.Start()
		defer a.Stop()
		fmt.Printf("Auditor %s running. Press Ctrl+C to stop.\n", auditorID)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")
		return nil
	},
}

func init() {
	auditorCmd.Flags().String("auditor-id", "", "Unique auditor ID")
	auditorCmd.Flags().String("hotkey", "", "Substrate hotkey")
	auditorCmd.Flags().Bool("echo", false, "Use the deterministic echo executor for all kinds")
	auditorCmd.Flags().Bool("sim-substrate", false, "Use the simulated substrate instead of HTTP")
	auditorCmd.Flags().String("coordinator-url", "", "Coordinator base URL (overrides config)")
	auditorCmd.Flags().Uint64("audit-interval-blocks", 0, "Blocks between audit cycles (overrides config)")
	auditorCmd.Flags().Int("max-top-workers", 0, "Workers per task that contribute to scores (overrides config)")
}
