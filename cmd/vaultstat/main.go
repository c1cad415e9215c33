package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/vaultstat/internal/api"
	"github.com/mtlprog/vaultstat/internal/config"
	"github.com/mtlprog/vaultstat/internal/database"
	"github.com/mtlprog/vaultstat/internal/export"
	"github.com/mtlprog/vaultstat/internal/snapshot"
	"github.com/mtlprog/vaultstat/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "vaultstat",
		Usage: "vault earnings aggregation",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the snapshot worker",
				Action: serve,
			},
			{
				Name:   "protocol",
				Usage:  "print protocol-wide earnings",
				Action: printProtocol,
			},
			{
				Name:      "vault",
				Usage:     "print earnings of one vault",
				ArgsUsage: "<address>",
				Action:    printVault,
			},
			{
				Name:      "account",
				Usage:     "print earnings of one or more accounts",
				ArgsUsage: "<address> [address...]",
				Action:    printAccounts,
			},
			{
				Name:      "export",
				Usage:     "write protocol earnings to an XLSX workbook",
				ArgsUsage: "<path>",
				Action:    exportWorkbook,
			},
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		return cli.Exit("DATABASE_URL is required", 1)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	snapshotRepo := snapshot.NewPgRepository(pool)
	// Stored snapshots always come from a fresh pass, never from the response cache.
	snapshotSvc := snapshot.NewService(a.calculator, snapshotRepo)

	var hooks []worker.AfterSnapshotHook
	exporter, err := newExporter(ctx, cfg, snapshotRepo)
	if err != nil {
		return err
	}
	if exporter != nil {
		hooks = append(hooks, exporter)
	}

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, generate endpoint is unprotected")
	}

	handler := api.NewHandler(snapshotSvc, a.service, cfg.Network)
	srv := api.NewServer(cfg.HTTPPort, handler, cfg.AdminAPIKey)

	g, gctx := errgroup.WithContext(ctx)

	reportWorker := worker.NewReportWorker(snapshotSvc, cfg.Network, cfg.ReportWorkerInterval, hooks...)
	g.Go(func() error {
		reportWorker.Run(gctx)
		return nil
	})

	if a.memory != nil && cfg.ResponseCacheTTL > 0 {
		pruneWorker := worker.NewPruneWorker(a.memory, cfg.ResponseCacheTTL)
		g.Go(func() error {
			pruneWorker.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Shutdown complete")
	return nil
}

// newExporter returns nil when no spreadsheet destination is configured.
func newExporter(ctx context.Context, cfg config.Config, history export.HistoryReader) (*export.Service, error) {
	var writers []export.SheetWriter
	if cfg.GoogleSheetsID != "" {
		if cfg.GoogleCredentialsJSON == "" {
			return nil, cli.Exit("GOOGLE_CREDENTIALS_JSON is required with GOOGLE_SHEETS_ID", 1)
		}
		sw, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("creating sheets writer: %w", err)
		}
		writers = append(writers, sw)
	}
	if cfg.XLSXExportPath != "" {
		writers = append(writers, export.NewXLSXWriter(cfg.XLSXExportPath))
	}
	if len(writers) == 0 {
		return nil, nil
	}
	return export.NewService(history, cfg.Network, writers...), nil
}

func printProtocol(c *cli.Context) error {
	a, err := newApp(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.calculator.ProtocolEarnings(c.Context)
	if err != nil {
		return err
	}
	if !report.Complete() {
		slog.Warn("protocol report is incomplete", "faults", len(report.Faults))
	}
	return printJSON(report)
}

func printVault(c *cli.Context) error {
	addrs, err := addressArgs(c, 1)
	if err != nil {
		return err
	}
	a, err := newApp(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.calculator.AssetEarnings(c.Context, addrs[0])
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printAccounts(c *cli.Context) error {
	addrs, err := addressArgs(c, -1)
	if err != nil {
		return err
	}
	a, err := newApp(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	if len(addrs) == 1 {
		report, err := a.calculator.AccountEarnings(c.Context, addrs[0])
		if err != nil {
			return err
		}
		return printJSON(report)
	}

	report, err := a.calculator.AccountsEarnings(c.Context, addrs)
	if err != nil {
		return err
	}
	if !report.Complete() {
		slog.Warn("accounts report is incomplete", "faults", len(report.Faults))
	}
	return printJSON(report)
}

func exportWorkbook(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: vaultstat export <path>", 2)
	}
	path := c.Args().First()

	a, err := newApp(c.Context, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.calculator.ProtocolEarnings(c.Context)
	if err != nil {
		return err
	}
	svc := export.NewService(nil, a.cfg.Network, export.NewXLSXWriter(path))
	if err := svc.Export(c.Context, report); err != nil {
		return fmt.Errorf("exporting workbook: %w", err)
	}
	slog.Info("workbook written", "path", path, "assets", len(report.Assets), "faults", len(report.Faults))
	return nil
}

// addressArgs parses positional addresses. want < 0 means one or more.
func addressArgs(c *cli.Context, want int) ([]common.Address, error) {
	args := c.Args().Slice()
	if (want < 0 && len(args) == 0) || (want >= 0 && len(args) != want) {
		return nil, cli.Exit(fmt.Sprintf("usage: vaultstat %s %s", c.Command.Name, c.Command.ArgsUsage), 2)
	}
	out := make([]common.Address, 0, len(args))
	for _, arg := range args {
		if !common.IsHexAddress(arg) {
			return nil, cli.Exit(fmt.Sprintf("invalid address %q", arg), 2)
		}
		out = append(out, common.HexToAddress(arg))
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
