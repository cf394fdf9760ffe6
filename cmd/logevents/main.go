package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/logevents/internal/app"
	"github.com/ajitpratap0/logevents/internal/runner"
	"github.com/ajitpratap0/logevents/internal/server"
	"github.com/ajitpratap0/logevents/pkg/connector/registry"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/ajitpratap0/logevents/pkg/sink"
	"github.com/ajitpratap0/logevents/pkg/state"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts app.Options

	root := &cobra.Command{
		Use:   "logevents",
		Short: "Stateless MediaWiki log-events sync connector",
		Long: `logevents fetches MediaWiki log events page by page and returns sync batches
with an opaque cursor state. Use invoke for a single call, sync to drive calls
until the upstream is drained, or serve to expose the connector over HTTP.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "Upstream API endpoint, overrides BASE_URL")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "logevents v%s\n", app.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range registry.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
			}
		},
	})

	root.AddCommand(newInvokeCommand(&opts))
	root.AddCommand(newSyncCommand(&opts))
	root.AddCommand(newServeCommand(&opts))
	return root
}

func newInvokeCommand(opts *app.Options) *cobra.Command {
	var requestFile, stateJSON string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Call the connector once and print the batch",
		Long: `Call the connector once, regardless of hasMore, and print the sync batch.

The request is read from --request (a file with {"state": ..., "secrets": ...},
or - for stdin). Without it, --state supplies the state and secrets come from
configuration.

Example:
  logevents invoke --base-url https://wiki.example.org/w/api.php --state '{"last_updated":"2024-01-01T00:00:00Z"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Setup(*opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.Background())

			req, err := readRequest(cmd.InOrStdin(), requestFile, stateJSON)
			if err != nil {
				return err
			}
			req.Secrets = a.FillSecrets(req.Secrets)

			ctx, cancel := signalContext(timeout)
			defer cancel()

			batch, err := runner.New(a.Function, nil, nil, nil, a.Logger).Test(ctx, req)
			if err != nil {
				a.Logger.Error("invocation failed", zap.Error(err))
				return err
			}
			return printJSON(cmd.OutOrStdout(), batch)
		},
	}
	cmd.Flags().StringVarP(&requestFile, "request", "r", "", "Request JSON file, - for stdin")
	cmd.Flags().StringVar(&stateJSON, "state", "{}", "State JSON used when --request is not given")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0 = none)")
	return cmd
}

func newSyncCommand(opts *app.Options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Call the connector until it reports no more data",
		Long: `Load the saved state, call the connector until hasMore is false, write
records to the configured sink and save state after every call. A failed call
stops the sync; the next run resumes from the last saved state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Setup(*opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.Background())

			ctx, cancel := signalContext(timeout)
			defer cancel()

			store, err := state.New(ctx, a.Config.StateStore, a.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			out, err := sink.New(ctx, a.Config.Sink, a.Logger)
			if err != nil {
				return err
			}

			r := runner.New(a.Function, store, out, &runner.Config{
				MaxInvocations: a.Config.Runner.MaxInvocations,
			}, a.Logger)

			summary, syncErr := r.Sync(ctx, a.Secrets())
			// Records already received are saved even when the sync failed.
			if err := out.Close(context.Background()); err != nil {
				a.Logger.Error("failed to close sink", zap.Error(err))
				if syncErr == nil {
					syncErr = err
				}
			}
			if summary != nil {
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			}
			return syncErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0 = none)")
	return cmd
}

func newServeCommand(opts *app.Options) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the connector as an HTTP function",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Setup(*opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.Background())

			if address == "" {
				address = a.Config.Server.Address
			}

			ctx, cancel := signalContext(0)
			defer cancel()

			srv := server.New(a.Function, &server.Config{
				Address:         address,
				ShutdownTimeout: a.Config.Server.ShutdownTimeout,
				EnableMetrics:   a.Config.Observability.EnableMetrics,
				DefaultSecrets:  a.Secrets(),
			}, a.Logger)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Listen address, overrides server.address")
	return cmd
}

// signalContext is cancelled on SIGINT/SIGTERM or after timeout, if set
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func readRequest(stdin io.Reader, requestFile, stateJSON string) (*models.Request, error) {
	req := &models.Request{}

	if requestFile != "" {
		var r io.Reader = stdin
		if requestFile != "-" {
			f, err := os.Open(requestFile) //nolint:gosec // G304: path comes from the operator
			if err != nil {
				return nil, fmt.Errorf("failed to open request file: %w", err)
			}
			defer f.Close()
			r = f
		}
		if err := jsonpool.Decode(r, req); err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
	} else if stateJSON != "" {
		if err := jsonpool.Unmarshal([]byte(stateJSON), &req.State); err != nil {
			return nil, fmt.Errorf("failed to parse --state: %w", err)
		}
	}

	if req.State == nil {
		req.State = models.State{}
	}
	return req, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := jsonpool.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
