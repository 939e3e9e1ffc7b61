package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/gmailpipe/internal/config"
	"github.com/joshsymonds/gmailpipe/internal/pipeline"
	"github.com/joshsymonds/gmailpipe/internal/rate"
	"github.com/joshsymonds/gmailpipe/internal/retry"
	"github.com/joshsymonds/gmailpipe/internal/runtime"
)

type options struct {
	configPath string
	producers  int
	consumers  int
	capacity   int
	rps        int
	logLevel   string
	jsonPath   string
}

func main() {
	if err := run(); err != nil {
		runtime.DefaultLogger().Error("gmailpipe failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return newRootCmd(&options{}).ExecuteContext(ctx)
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "gmailpipe",
		Short:         "Bulk Gmail actions through a producer/consumer pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default: ~/.gmailpipe/config.yaml)")
	pf.IntVarP(&opts.producers, "producers", "p", 1, "producer goroutines (1-10)")
	pf.IntVarP(&opts.consumers, "consumers", "c", 1, "consumer goroutines (1-10)")
	pf.IntVar(&opts.capacity, "capacity", 0, "buffer capacity (0 = twice the goroutine count)")
	pf.IntVar(&opts.rps, "rps", 10, "max API requests per second (0 = unlimited)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&opts.jsonPath, "json", "", "also write the run report as JSON to this relative path")

	root.AddCommand(trashCmd(opts), filterCmd(opts), labelsCmd(opts))
	return root
}

// settings loads the config file and applies the flags the user set.
func (o *options) settings(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("producers") {
		cfg.Producers = o.producers
	}
	if flags.Changed("consumers") {
		cfg.Consumers = o.consumers
	}
	if flags.Changed("capacity") {
		cfg.Capacity = o.capacity
	}
	if flags.Changed("rps") {
		cfg.RPS = o.rps
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate flags: %w", err)
	}
	return cfg, nil
}

// sourceFunc resolves what to enumerate once the configuration is known.
type sourceFunc func(ctx context.Context, cfg config.Config) (pipeline.Source, error)

// execute runs one pipeline job and prints its report. A fatal run still
// prints the partial report before returning the error.
func (o *options) execute(cmd *cobra.Command, command pipeline.Command, resolve sourceFunc, output io.Writer) error {
	ctx := cmd.Context()
	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(cfg.LogLevel)

	src, err := resolve(ctx, cfg)
	if err != nil {
		return err
	}

	scope := runtime.ScopeReadonly
	if command == pipeline.CommandTrash {
		scope = runtime.ScopeModify
	}
	client, err := runtime.NewGmailClient(ctx, cfg.AuthDir, scope)
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var limiter rate.Limiter = rate.Unlimited{}
	if cfg.RPS > 0 {
		bucket := rate.NewTokenBucket(cfg.RPS, cfg.RPS)
		defer bucket.Stop()
		limiter = bucket
	}

	orch := pipeline.NewOrchestrator(client, limiter, logger)
	orch.Retry = retry.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay,
		MaxDelay:  cfg.Retry.MaxDelay,
	}
	job := pipeline.Job{
		Command: command,
		Source:  src,
		Pool: pipeline.PoolConfig{
			Producers: cfg.Producers,
			Consumers: cfg.Consumers,
			Capacity:  cfg.Capacity,
			PageSize:  cfg.PageSize,
		},
		Output: output,
	}

	start := time.Now()
	sum, runErr := orch.Run(ctx, job)
	var fatal *pipeline.FatalError
	if runErr != nil && !errors.As(runErr, &fatal) {
		return fmt.Errorf("run %s: %w", command, runErr)
	}

	rep := pipeline.NewReport(job, sum, runErr, time.Since(start))
	if err := pipeline.PrintHuman(rep, cmd.OutOrStdout()); err != nil {
		return err
	}
	if o.jsonPath != "" {
		if err := pipeline.WriteJSON(rep, o.jsonPath); err != nil {
			return fmt.Errorf("write json report: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", command, runErr)
	}
	return nil
}
