package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/apiward/apiward/internal/enrich"
	"github.com/apiward/apiward/internal/progress"
	"github.com/apiward/apiward/pkg/scanner"
	"github.com/apiward/apiward/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [target]",
	Short: "Scan an API for compliance and security issues",
	Long: `Scan an HTTP API and produce a compliance report.

The scanner discovers endpoints (common API paths, robots.txt, sitemap.xml,
OpenAPI specs), probes each one across HTTP methods, and checks responses
for exposed PII, missing security headers, permissive CORS, verbose errors,
TLS problems, and EU AI Act transparency gaps. Findings roll up into GDPR,
UAVG, and AI Act statuses with remediation guidance.

Interrupting a scan with Ctrl+C finishes the current batch, saves a
checkpoint, and reports everything found so far. A second Ctrl+C forces
an immediate exit.

Examples:
  apiward scan https://api.example.nl
  apiward scan https://api.example.nl --endpoints /users,/orders --workers 5
  apiward scan https://api.example.nl --spec https://api.example.nl/openapi.json
  apiward scan https://api.example.nl --resume api-1a2b3c4d-e5f6a7b8
  apiward scan https://api.example.nl --output json --out report.json
  apiward scan https://api.example.nl --save --enrich`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSlice("endpoints", nil, "Endpoint paths to probe instead of discovery (e.g. /users,/orders)")
	scanCmd.Flags().String("spec", "", "OpenAPI spec URL or file to seed endpoint discovery")
	scanCmd.Flags().Int("max-endpoints", 0, "Maximum endpoints to probe (default 50)")
	scanCmd.Flags().Duration("timeout", 0, "Per-request timeout (default 10s)")
	scanCmd.Flags().Duration("delay", 0, "Base delay between requests (default 100ms)")
	scanCmd.Flags().Int("workers", 0, "Concurrent probe workers (default 3)")
	scanCmd.Flags().Int("batch-size", 0, "Endpoints per batch (default 5)")
	scanCmd.Flags().String("region", "", "Compliance region (default Netherlands)")
	scanCmd.Flags().String("resume", "", "Resume a previous scan by ID")
	scanCmd.Flags().String("auth-token", "", "Bearer token sent with every request")
	scanCmd.Flags().Bool("no-verify-tls", false, "Skip TLS certificate verification")
	scanCmd.Flags().Bool("no-follow-redirects", false, "Do not follow HTTP redirects")
	scanCmd.Flags().StringP("output", "o", "summary", "Output format (summary, json)")
	scanCmd.Flags().String("out", "", "Write the JSON report to a file")
	scanCmd.Flags().Bool("save", false, "Persist the report to the configured database")
	scanCmd.Flags().Bool("enrich", false, "Attach WHOIS and DNS details for the target domain")
	scanCmd.Flags().BoolP("quiet", "q", false, "Suppress the progress bar")
}

func runScan(cmd *cobra.Command, args []string) error {
	target := args[0]

	endpoints, _ := cmd.Flags().GetStringSlice("endpoints")
	specURL, _ := cmd.Flags().GetString("spec")
	maxEndpoints, _ := cmd.Flags().GetInt("max-endpoints")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	delay, _ := cmd.Flags().GetDuration("delay")
	workers, _ := cmd.Flags().GetInt("workers")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	region, _ := cmd.Flags().GetString("region")
	resumeID, _ := cmd.Flags().GetString("resume")
	authToken, _ := cmd.Flags().GetString("auth-token")
	noVerifyTLS, _ := cmd.Flags().GetBool("no-verify-tls")
	noFollowRedirects, _ := cmd.Flags().GetBool("no-follow-redirects")
	output, _ := cmd.Flags().GetString("output")
	outFile, _ := cmd.Flags().GetString("out")
	save, _ := cmd.Flags().GetBool("save")
	enrichDomain, _ := cmd.Flags().GetBool("enrich")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if output != "summary" && output != "json" {
		return fmt.Errorf("unsupported output format: %s", output)
	}

	// Zero values defer to scanner config defaults.
	opts := types.ScanOptions{
		MaxEndpoints:    maxEndpoints,
		Timeout:         timeout,
		Delay:           delay,
		Workers:         workers,
		BatchSize:       batchSize,
		Region:          region,
		AuthToken:       authToken,
		OpenAPISpec:     specURL,
		Endpoints:       endpoints,
		ResumeID:        resumeID,
		CallerScope:     scope,
		FollowRedirects: cfg.Scanner.FollowRedirects && !noFollowRedirects,
		VerifyTLS:       cfg.Scanner.VerifyTLS && !noVerifyTLS,
	}

	renderer := progress.NewRenderer(os.Stdout, !quiet && output == "summary")
	opts.Progress = renderer.Callback()

	s := scanner.New(cfg, log, tel, newCheckpointManager())

	ctx, cancel := context.WithCancel(scanContext(cmd))
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		color.Yellow("\nInterrupt received, finishing the current batch and saving a checkpoint...")
		s.Stop()
		select {
		case <-sigCh:
			color.Red("Forced exit\n")
			os.Exit(1)
		case <-ctx.Done():
		}
	}()

	result, err := s.RunScan(ctx, target, opts)
	if err != nil {
		return err
	}
	renderer.Finish()

	if enrichDomain || cfg.Enrich.Enabled {
		result.DomainInfo = enrich.New(cfg.Enrich, log).Enrich(ctx, result.BaseDomain)
	}

	if save {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveResult(ctx, result); err != nil {
			return fmt.Errorf("failed to save scan result: %w", err)
		}
		color.Green("✓ Report saved as %s\n", result.ScanID)
	}

	if outFile != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := os.WriteFile(outFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write report file: %w", err)
		}
		fmt.Printf("Report written to %s\n", outFile)
	}

	if output == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	displayScanReport(result)
	return nil
}
