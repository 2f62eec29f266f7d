package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sitesum/internal/api"
	"github.com/kalambet/sitesum/internal/config"
	"github.com/kalambet/sitesum/internal/remote"
	"github.com/kalambet/sitesum/internal/tui"
	"github.com/kalambet/sitesum/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and optionally MCP over stdio) in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

// newMachine wires a workflow machine to the configured prompt service.
func newMachine(cfg config.Config, logger *slog.Logger) (*workflow.Machine, error) {
	timeout, err := cfg.RemoteTimeout()
	if err != nil {
		return nil, err
	}

	client := remote.NewClientWithBaseURL(cfg.Remote.Token, cfg.Remote.BaseURL)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	opts := workflow.Options{
		SourceObject:  cfg.Pipeline.SourceObject,
		SummaryObject: cfg.Pipeline.SummaryObject,
		DataType:      cfg.Pipeline.DataType,
		Prompt:        cfg.Pipeline.Prompt,
		Mode:          cfg.Pipeline.Mode,
		PurgeOnSubmit: cfg.Workflow.PurgeOnSubmit,
		Logger:        logger,
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return workflow.New(client, opts), nil
}

// cleanupOnExit deletes whatever the machine still tracks before the process
// goes away.
func cleanupOnExit(m *workflow.Machine) {
	n := len(m.Artifacts())
	if n == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	printStep("Deleting %d tracked object(s)", n)
	report := m.Cleanup(ctx)
	if len(report.Failed) > 0 {
		for _, f := range report.Failed {
			printWarning("could not delete %s: %s", f.Name, f.Error)
		}
		return
	}
	printSuccess("Deleted %d object(s)", len(report.Deleted))
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "sitesum version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log.Level)

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		printWarning("sitesum is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	machine, err := newMachine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupOnExit(machine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	topRouter := chi.NewRouter()
	topRouter.Mount("/", api.NewAppHandler(api.AppDeps{
		Machine: machine,
		Token:   apiToken,
	}))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           topRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "sitesum listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Machine: machine,
			Version: version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runTUI() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The alternate screen owns the terminal; log lines would tear it.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine, err := newMachine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupOnExit(machine)

	return tui.Run(machine)
}
