package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/issue-audit-api/internal/dto"
	"github.com/noah-isme/issue-audit-api/internal/repository"
	"github.com/noah-isme/issue-audit-api/internal/service"
	"github.com/noah-isme/issue-audit-api/pkg/cache"
	"github.com/noah-isme/issue-audit-api/pkg/config"
	"github.com/noah-isme/issue-audit-api/pkg/database"
	"github.com/noah-isme/issue-audit-api/pkg/logger"
)

var (
	scanFrom string
	scanTo   string
	scanJSON bool
)

func main() {
	root := &cobra.Command{
		Use:           "audit-scan",
		Short:         "Run suspicious activity detection over the audit log once",
		Long:          "Scans the configured lookback window (or --from/--to) and stores new alerts. Intended for cron.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runScan,
	}
	root.Flags().StringVar(&scanFrom, "from", "", "range start (RFC3339); requires --to")
	root.Flags().StringVar(&scanTo, "to", "", "range end (RFC3339); requires --from")
	root.Flags().BoolVar(&scanJSON, "json", false, "print the scan result as JSON")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "audit-scan: %v\n", err)
		os.Exit(1)
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	from, to, err := parseRange(scanFrom, scanTo)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	var alertOpts []service.AlertServiceOption
	if cfg.Notifications.Enabled && cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, alerts will not be pushed", zap.Error(err))
		} else {
			defer client.Close()
			notifier := service.NewAlertNotifier(repository.NewAlertEventRepository(client, cfg.Notifications.Channel), service.AlertNotifierConfig{
				Workers:    cfg.Notifications.Workers,
				MaxRetries: cfg.Notifications.MaxRetries,
				RetryDelay: cfg.Notifications.RetryDelay,
			}, logr, metrics)
			notifier.Start(context.Background())
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := notifier.Flush(flushCtx); err != nil {
					logr.Warn("alert events not fully delivered", zap.Error(err))
				}
				notifier.Stop()
			}()
			alertOpts = append(alertOpts, service.WithAlertPublisher(notifier))
		}
	}

	alerts := service.NewAlertService(repository.NewAlertRepository(db), validator.New(), logr, metrics, alertOpts...)
	detectorCfg, err := service.NewDetectorConfig(cfg.Detector)
	if err != nil {
		return err
	}
	detector := service.NewDetector(repository.NewAuditRepository(db), alerts, detectorCfg, logr, service.WithDetectorMetrics(metrics))

	var result *dto.ScanResult
	if from == nil {
		result, err = detector.Detect(ctx)
	} else {
		result, err = detector.Scan(ctx, *from, *to)
	}
	if result != nil {
		if printErr := printResult(cmd, result); printErr != nil {
			return printErr
		}
	}
	return err
}

func parseRange(rawFrom, rawTo string) (*time.Time, *time.Time, error) {
	if rawFrom == "" && rawTo == "" {
		return nil, nil, nil
	}
	if rawFrom == "" || rawTo == "" {
		return nil, nil, fmt.Errorf("--from and --to must be provided together")
	}
	from, err := time.Parse(time.RFC3339, rawFrom)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --from: %w", err)
	}
	to, err := time.Parse(time.RFC3339, rawTo)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --to: %w", err)
	}
	return &from, &to, nil
}

func printResult(cmd *cobra.Command, result *dto.ScanResult) error {
	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(out, "scanned %d records between %s and %s\n", result.RecordsScanned,
		result.From.Format(time.RFC3339), result.To.Format(time.RFC3339))
	fmt.Fprintf(out, "candidates=%d created=%d duplicates=%d failed=%d\n",
		result.Candidates, len(result.Created), result.Duplicates, result.Failed)
	for _, alert := range result.Created {
		fmt.Fprintf(out, "  #%d %s [%s] %s\n", alert.ID, alert.AlertType, alert.Severity, alert.Description)
	}
	return nil
}
