package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apiward/apiward/pkg/types"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Query stored scan reports",
	Long: `Browse scan reports persisted with 'apiward scan --save'.

Requires a configured database (--db-dsn or APIWARD_DATABASE_DSN).`,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsFindingsCmd)

	resultsListCmd.Flags().Int("limit", 20, "Maximum number of scans to list")
	resultsListCmd.Flags().StringP("output", "o", "table", "Output format (table, json)")

	resultsShowCmd.Flags().StringP("output", "o", "summary", "Output format (summary, json)")

	resultsFindingsCmd.Flags().String("severity", "critical", "Severity to query (critical, high, medium, low, info)")
	resultsFindingsCmd.Flags().StringP("output", "o", "table", "Output format (table, json)")
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scans, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		scans, err := store.ListScans(scanContext(cmd), limit)
		if err != nil {
			return fmt.Errorf("failed to list scans: %w", err)
		}

		if output == "json" {
			data, _ := json.MarshalIndent(scans, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(scans) == 0 {
			fmt.Println("No stored scans. Run a scan with --save first.")
			return nil
		}

		fmt.Printf("%-22s %-34s %-17s %9s %9s %-20s\n",
			"SCAN ID", "TARGET", "TIME", "ENDPOINTS", "FINDINGS", "UAVG STATUS")
		fmt.Println(strings.Repeat("-", 116))
		for _, s := range scans {
			fmt.Printf("%-22s %-34s %-17s %9d %9d %-20s\n",
				s.ScanID,
				truncate(s.BaseURL, 34),
				s.ScanTime.Format("2006-01-02 15:04"),
				s.Endpoints,
				s.TotalFindings,
				statusText(s.UAVGStatus),
			)
		}
		return nil
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show [scan-id]",
	Short: "Show a stored scan report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.GetResult(scanContext(cmd), args[0])
		if err != nil {
			return fmt.Errorf("failed to load scan %s: %w", args[0], err)
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
	},
}

var resultsFindingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "Query findings by severity across all stored scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		severity, _ := cmd.Flags().GetString("severity")
		output, _ := cmd.Flags().GetString("output")

		sev := types.Severity(strings.ToLower(severity))
		switch sev {
		case types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow, types.SeverityInfo:
		default:
			return fmt.Errorf("unknown severity: %s", severity)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		findings, err := store.FindingsBySeverity(scanContext(cmd), sev)
		if err != nil {
			return fmt.Errorf("failed to query findings: %w", err)
		}

		if output == "json" {
			data, _ := json.MarshalIndent(findings, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(findings) == 0 {
			fmt.Printf("No %s findings stored.\n", sev)
			return nil
		}

		fmt.Printf("%s findings (%d), newest first\n\n", colorSeverity(sev), len(findings))
		for _, f := range findings {
			fmt.Printf("• %s %s %s\n", f.Timestamp.Format("2006-01-02 15:04"), f.Method, f.URL)
			fmt.Printf("  [%s] %s\n", f.Type, truncate(f.Description, 110))
			if f.PIIType != "" {
				fmt.Printf("  PII: %s (%s)\n", f.PIIType, f.GDPRCategory)
			}
			fmt.Printf("  Scan: %s\n\n", f.ScanID)
		}
		return nil
	},
}
