package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/orrn/presi/internal/api"
	"github.com/orrn/presi/internal/archive"
	"github.com/orrn/presi/internal/config"
	"github.com/orrn/presi/internal/core"
	"github.com/orrn/presi/internal/db"
	"github.com/orrn/presi/internal/logging"
	"github.com/orrn/presi/internal/metrics"
	"github.com/orrn/presi/internal/pipeline"
	"github.com/orrn/presi/internal/printer"
	"github.com/orrn/presi/internal/shell"
	"github.com/orrn/presi/internal/signals"
	"github.com/orrn/presi/internal/webhook"
)

type rootOptions struct {
	configPath string
	enableAPI  bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "presi [SCRIPT]",
		Short: "A print spooler that converts files through external pipelines",
		Long: `presi reads spooler commands from standard input and runs conversion
pipelines for every dispatched job. When SCRIPT is given its commands run
first; input continues from standard input unless the script quits.
Type "help" at the prompt for the command list.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if opts.enableAPI {
				cfg.API.Enabled = true
			}

			var script io.Reader
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open script: %w", err)
				}
				defer f.Close()
				script = f
			}

			return run(cmd.Context(), cfg, input{
				script:      script,
				stdin:       cmd.InOrStdin(),
				interactive: isTerminal(os.Stdin),
			}, cmd.OutOrStdout())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	cmd.Flags().BoolVar(&opts.enableAPI, "api", false, "serve the admin API even if disabled in config")

	cmd.AddCommand(newTokenCmd(opts), newEventsCmd(opts))
	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

type input struct {
	script      io.Reader
	stdin       io.Reader
	interactive bool
}

func run(parent context.Context, cfg *config.Config, in input, out io.Writer) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connector := printer.NewRouter(cfg.Printers.SpoolDir, cfg.Printers.Devices, cfg.Printers.ConnectionTimeout, logger)
	executor, err := pipeline.NewExecutor(connector, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	observers := core.Observers{logging.NewEventLogger(logger), m}

	var (
		journal  *db.Journal
		archiver *archive.Archiver
	)
	if cfg.Journal.Path != "" {
		conn, err := db.Open(db.Config{Path: cfg.Journal.Path})
		if err != nil {
			return err
		}
		journal = db.NewJournal(conn, logger)
		defer journal.Close()
		observers = append(observers, journal)

		retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
		if cfg.Journal.ArchiveDir != "" {
			archiver, err = archive.New(conn, archive.Config{Dir: cfg.Journal.ArchiveDir}, logger)
			if err != nil {
				return err
			}
			go archiver.Run(ctx, retention)
		} else {
			go journal.RunPruner(ctx, retention)
		}
	}

	var sender *webhook.WebhookSender
	if len(cfg.Webhooks.Endpoints) > 0 {
		sender = webhook.NewWebhookSender(webhook.WebhookConfig{
			Endpoints:  cfg.Webhooks.Endpoints,
			Secret:     cfg.Webhooks.Secret,
			RetryCount: cfg.Webhooks.RetryCount,
			Timeout:    cfg.Webhooks.Timeout,
			QueueSize:  cfg.Webhooks.QueueSize,
		}, logger)
		sender.Start()
		defer sender.Stop()
		observers = append(observers, sender)
	}

	wakeup := signals.NotifyChild()
	defer wakeup.Stop()

	spooler := core.New(core.Options{
		Launcher:        executor,
		Signaler:        pipeline.GroupSignaler{},
		Waiter:          pipeline.ProcWaiter{},
		Observer:        observers,
		Logger:          logger,
		MaxJobs:         cfg.Spool.MaxJobs,
		MaxTypes:        cfg.Spool.MaxTypes,
		RetentionWindow: cfg.Spool.RetentionWindow,
	})

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := core.NewLoop(spooler, wakeup, cfg.Spool.ReapInterval, logger)
	go loop.Run(loopCtx)

	var apiDone chan error
	if cfg.API.Enabled {
		apiCfg := api.Config{
			Addr:           cfg.API.Addr,
			JWTSecret:      cfg.API.JWTSecret,
			RateLimitRPS:   cfg.API.RateLimitRPS,
			RateLimitBurst: cfg.API.RateLimitBurst,
			ReadTimeout:    cfg.API.ReadTimeout,
			WriteTimeout:   cfg.API.WriteTimeout,
		}
		deps := api.Deps{Runner: loop, Settings: cfg, Metrics: m, Logger: logger}
		if journal != nil {
			deps.Events = journal
		}
		if archiver != nil {
			deps.Archives = archiver
		}
		if sender != nil {
			deps.Webhooks = sender
		}
		srv := api.NewServer(apiCfg, api.NewRouter(apiCfg, deps), logger)
		apiDone = make(chan error, 1)
		go func() { apiDone <- srv.Run(ctx) }()
	}

	sh := shell.New(loop, out, logger)
	shellDone := make(chan error, 1)
	go func() {
		if in.script != nil {
			err := sh.Run(ctx, in.script, false)
			if err != nil || sh.Quit() || ctx.Err() != nil {
				shellDone <- err
				return
			}
		}
		shellDone <- sh.Run(ctx, in.stdin, in.interactive)
	}()

	var runErr error
	select {
	case runErr = <-shellDone:
	case <-ctx.Done():
		logger.Info("interrupted, shutting down")
	case err := <-apiDone:
		if err != nil {
			runErr = fmt.Errorf("api server failed: %w", err)
		}
		apiDone = nil
	}

	stop()
	stopLoop()
	<-loop.Done()
	if apiDone != nil {
		if err := <-apiDone; err != nil && runErr == nil {
			runErr = fmt.Errorf("api server failed: %w", err)
		}
	}

	logger.Info("spooler stopped")
	return runErr
}
