package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pixelpost/pixelpost/internal/pipeline/approval"
	"github.com/pixelpost/pixelpost/internal/pipeline/approval/slackbridge"
	"github.com/pixelpost/pixelpost/internal/pipeline/config"
	"github.com/pixelpost/pixelpost/internal/pipeline/drivers"
	"github.com/pixelpost/pixelpost/internal/pipeline/scheduler"
	"github.com/pixelpost/pixelpost/internal/pipeline/store"
	"github.com/pixelpost/pixelpost/internal/pipeline/store/memory"
	"github.com/pixelpost/pixelpost/internal/pipeline/store/postgres"
)

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one publish batch",
		Long: `Run computes today's remaining allowance, generates candidates, and
drives each one through dedup, metadata, approval, and publishing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate publishing without calling the uploader")
	return cmd
}

func runBatch(dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configFile == "" {
		configFile = config.DefaultConfigFile
	}
	if err := config.LoadConfig(configFile); err != nil {
		return err
	}
	cfg := config.Config()
	if dryRun {
		cfg.DryRun = true
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	gw, err := startGateway(ctx, cfg)
	if err != nil {
		st.Close()
		return err
	}

	gen, err := drivers.NewCommandGenerator(cfg.Generator.Command)
	if err != nil {
		st.Close()
		return err
	}
	desc := drivers.NewOpenAIDescriber(cfg.Metadata.APIKey(), cfg.Metadata.Model, drivers.MetadataLimits{
		MaxTitleLen:       cfg.Metadata.MaxTitleLen,
		MinTags:           cfg.Metadata.MinTags,
		MaxTags:           cfg.Metadata.MaxTags,
		MaxDescriptionLen: cfg.Metadata.MaxDescriptionLen,
	})

	var pub drivers.Publisher
	if cfg.DryRun {
		pub = drivers.DryRunPublisher{}
	} else {
		pub, err = drivers.NewCommandPublisher(cfg.Publish.Command)
		if err != nil {
			st.Close()
			return err
		}
	}

	sched := scheduler.New(st, gw, gen, desc, pub, scheduler.Options{
		DailyLimit:       cfg.Batch.DailyLimit,
		MinImages:        cfg.Batch.MinImages,
		MaxImages:        cfg.Batch.MaxImages,
		AttemptsPerImage: cfg.Batch.AttemptsPerImage,
		DelayMin:         cfg.Batch.GetDelayMin(),
		DelayMax:         cfg.Batch.GetDelayMax(),
		ErrorBackoff:     cfg.Batch.GetErrorBackoff(),
		Profile:          cfg.Generator.Profile,
	})

	summary, err := sched.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

// openStore connects to the configured backend. Postgres connections are
// retried briefly so a restarting database does not fail the run.
func openStore(ctx context.Context, cfg *config.ConfigParam) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		var st store.Store
		policy := scheduler.RetryPolicy{MaxAttempts: 5, Backoff: time.Second}
		err := policy.Do(ctx, func() error {
			opened, err := postgres.Open(ctx, cfg.Store.DSN())
			if err != nil {
				return err
			}
			st = opened
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to store: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
}

// startGateway builds the approval gateway and starts its inbound listener.
// Returns nil when approval is disabled, which makes the scheduler fail open.
func startGateway(ctx context.Context, cfg *config.ConfigParam) (*approval.Gateway, error) {
	if !cfg.Approval.Enabled {
		return nil, nil
	}
	if cfg.Approval.BotToken() == "" || cfg.Approval.AppToken() == "" {
		log.Info().Msg("approval enabled but chat credentials are absent, failing open")
		return nil, nil
	}

	bridge := slackbridge.New(cfg.Approval.BotToken(), cfg.Approval.AppToken(), cfg.Approval.Channel)
	gw := approval.New(bridge, cfg.Approval.StartCommand)
	bridge.Bind(gw)
	if !cfg.Approval.RequireStart {
		gw.DisableStartGate()
	}

	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("approval listener stopped")
		}
	}()
	return gw, nil
}

func printSummary(summary scheduler.Summary) {
	if summary.LimitReached {
		okLabel.Println("Daily limit already reached, nothing to do.")
		return
	}

	if summary.Published == summary.Target {
		okLabel.Printf("Published %d of %d\n", summary.Published, summary.Target)
	} else {
		errorLabel.Printf("Published %d of %d (batch ended short)\n", summary.Published, summary.Target)
	}
	fmt.Printf("  attempts:   %d\n", summary.Attempts)
	fmt.Printf("  duplicates: %d\n", summary.Duplicates)
	fmt.Printf("  rejected:   %d\n", summary.Rejected)
	fmt.Printf("  postponed:  %d\n", summary.Postponed)
	fmt.Printf("  errors:     %d\n", summary.Errors)
}
