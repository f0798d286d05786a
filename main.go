package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"mail_server/config"
	"mail_server/internal/bootstrap"
	"mail_server/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var cfg *config.Config

func main() {
	root := &cobra.Command{
		Use:           "mail_server",
		Short:         "Gmail synchronization and mailbox management service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(logger.Config{
				Level:   logger.LevelInfo,
				Service: "mailsync",
			})

			if err := godotenv.Load(); err != nil {
				logger.Debug("No .env file found, using environment variables")
			}

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	root.AddCommand(serveCmd(), syncAccountCmd(), getMessageCmd(), refreshLabelsCmd())

	if err := root.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

func serveCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the stream worker, or both",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := bootstrap.NewDependencies(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			switch mode {
			case "api":
				return runAPI(ctx, deps)
			case "worker":
				return runWorker(ctx, deps)
			case "all":
				errCh := make(chan error, 1)
				go func() { errCh <- runWorker(ctx, deps) }()
				if err := runAPI(ctx, deps); err != nil {
					return err
				}
				return <-errCh
			default:
				return fmt.Errorf("unknown mode: %s", mode)
			}
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "all", "Run mode: api, worker, all")
	return cmd
}

func runAPI(ctx context.Context, deps *bootstrap.Dependencies) error {
	app := bootstrap.NewAPI(deps)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.WithError(err).Error("API shutdown failed")
		}
	}()

	logger.Info("API listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("api server stopped: %w", err)
	}
	return nil
}

func runWorker(ctx context.Context, deps *bootstrap.Dependencies) error {
	w := bootstrap.NewWorker(deps)
	defer w.Stop()

	logger.Info("Worker starting, id=%s", cfg.WorkerID)
	return w.Run(ctx)
}

func syncAccountCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync-account <email>",
		Short: "Enqueue a sync pass for one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := bootstrap.NewDependencies(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			account, err := deps.AccountRepo.GetByEmail(args[0])
			if err != nil {
				return err
			}
			if account == nil {
				return fmt.Errorf("no account for %s", args[0])
			}

			ctx := cmd.Context()
			if full {
				// Forces the bootstrap path on the next pass.
				if err := deps.AccountRepo.SetCompleteDownload(account.ID, false); err != nil {
					return err
				}
			}
			if err := deps.Producer.EnqueueSyncAccount(ctx, account.ID); err != nil {
				return err
			}

			logger.WithAccount(account.ID).Info("sync enqueued (full=%v)", full)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "re-run the initial full download")
	return cmd
}

func getMessageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-message <email> <message-id>",
		Short: "Fetch one remote message and print it as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := bootstrap.NewDependencies(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			account, err := deps.AccountRepo.GetByEmail(args[0])
			if err != nil {
				return err
			}
			if account == nil {
				return fmt.Errorf("no account for %s", args[0])
			}

			ctx := cmd.Context()
			provider, err := deps.Factory.ForAccount(ctx, account)
			if err != nil {
				return err
			}

			msg, err := provider.GetMessageInfo(ctx, args[1])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(msg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
}

func refreshLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-labels <email>",
		Short: "Re-sync labels for every message of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cleanup, err := bootstrap.NewDependencies(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			account, err := deps.AccountRepo.GetByEmail(args[0])
			if err != nil {
				return err
			}
			if account == nil {
				return fmt.Errorf("no account for %s", args[0])
			}

			if err := deps.Producer.EnqueueSyncLabelsForAllMessages(cmd.Context(), account.ID); err != nil {
				return err
			}

			logger.WithAccount(account.ID).Info("label refresh enqueued")
			return nil
		},
	}
}
