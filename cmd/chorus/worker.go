package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chorusnet/chorus/pkg/client"
	"github.com/chorusnet/chorus/pkg/executor"
	"github.com/chorusnet/chorus/pkg/health"
	"github.com/chorusnet/chorus/pkg/types"
	"github.com/chorusnet/chorus/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker process",
	Long: `Run a worker: poll the coordinator for assignments, execute them
through the configured inference backends, and post responses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		workerID, _ := cmd.Flags().GetString("worker-id")
		if workerID == "" {
			return fmt.Errorf("--worker-id is required")
		}
		hotkey, _ := cmd.Flags().GetString("hotkey")
		stake, _ := cmd.Flags().GetFloat64("stake")
		echo, _ := cmd.Flags().GetBool("echo")
		healthURL, _ := cmd.Flags().GetString("backend-health-url")
		if u, _ := cmd.Flags().GetString("coordinator-url"); u != "" {
			cfg.CoordinatorURL = u
		}
		if cmd.Flags().Changed("poll-interval") {
			cfg.PollInterval, _ = cmd.Flags().GetDuration("poll-interval")
		}
		if cmd.Flags().Changed("max-concurrent-tasks") {
			cfg.MaxConcurrentTasks, _ = cmd.Flags().GetInt("max-concurrent-tasks")
		}

		execs, err := buildExecutors(cfg.Executors, echo)
		if err != nil {
			return err
		}

		wcfg := worker.Config{
			WorkerID:     workerID,
			Hotkey:       hotkey,
			Stake:        stake,
			MaxCapacity:  cfg.MaxConcurrentTasks,
			PollInterval: cfg.PollInterval,
		}
		if healthURL != "" {
			wcfg.BackendProbe = health.NewHTTPChecker(healthURL)
		}

		w, err := worker.New(wcfg, client.New(cfg.CoordinatorURL), execs)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = w.Register(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to register with coordinator: %w", err)
		}

		w.Start()
		defer w.Stop()
		fmt.Printf("Worker %s running. Press Ctrl+C to stop.\n", workerID)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")
		return nil
	},
}

// buildExecutors wires one executor per configured kind, or the echo
// executor for every kind when asked.
func buildExecutors(endpoints map[string]string, echo bool) (*executor.Registry, error) {
	execs := executor.NewRegistry()
	if echo {
		for _, kind := range []types.TaskKind{
			types.TaskKindTranscription, types.TaskKindTTS,
			types.TaskKindSummarization, types.TaskKindTextTranslation,
			types.TaskKindDocTranslation, types.TaskKindVideoTranscription,
		} {
			execs.Set(kind, &executor.Echo{})
		}
		return execs, nil
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no executors configured (set executors in the config file or pass --echo)")
	}
	for kind, endpoint := range endpoints {
		k := types.TaskKind(kind)
		if !types.ValidTaskKind(k) {
			return nil, fmt.Errorf("unknown task type %q in executors config", kind)
		}
		execs.Set(k, executor.NewHTTPExecutor(endpoint))
	}
	return execs, nil
}

func init() {
	workerCmd.Flags().String("worker-id", "", "Unique worker ID")
	workerCmd.Flags().String("hotkey", "", "Substrate hotkey")
	workerCmd.Flags().Float64("stake", 0, "Advertised stake")
	workerCmd.Flags().Bool("echo", false, "Use the deterministic echo executor for all kinds")
	workerCmd.Flags().String("backend-health-url", "", "Health endpoint of the inference backend")
	workerCmd.Flags().String("coordinator-url", "", "Coordinator base URL (overrides config)")
	workerCmd.Flags().Duration("poll-interval", 0, "Assignment poll interval (overrides config)")
	workerCmd.Flags().Int("max-concurrent-tasks", 0, "Maximum in-flight tasks (overrides config)")
}
