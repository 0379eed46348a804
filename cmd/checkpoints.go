package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/apiward/apiward/pkg/checkpoint"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage saved scan checkpoints",
	Long: `List, inspect, and remove checkpoints left by interrupted scans.

A checkpoint is saved periodically while a scan runs and again when the
scan is interrupted. Resume one with:

  apiward scan <target> --resume <scan-id>`,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)

	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsShowCmd)
	checkpointsCmd.AddCommand(checkpointsRmCmd)
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := scanContext(cmd)
		manager := newCheckpointManager()

		ids, err := manager.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list checkpoints: %w", err)
		}

		if len(ids) == 0 {
			color.Yellow("No saved checkpoints\n")
			fmt.Println("\nCheckpoints are saved automatically while a scan runs.")
			return nil
		}

		fmt.Println()
		color.New(color.FgCyan, color.Bold).Println("Saved checkpoints")
		fmt.Println()

		for i, id := range ids {
			state, err := manager.Load(ctx, id)
			if err != nil {
				fmt.Printf("%d. %s (unreadable: %v)\n\n", i+1, id, err)
				continue
			}

			fmt.Printf("%d. Scan ID:  %s\n", i+1, color.CyanString(state.ScanID))
			fmt.Printf("   Target:   %s\n", state.BaseURL)
			fmt.Printf("   Progress: %d/%d endpoints\n", len(state.Completed), len(state.Endpoints))
			fmt.Printf("   Findings: %d\n", len(state.Findings))
			fmt.Printf("   Saved:    %s ago\n", formatAge(time.Since(state.SavedAt)))
			fmt.Printf("   Resume:   apiward scan %s --resume %s\n", state.BaseURL, state.ScanID)
			fmt.Println()
		}
		return nil
	},
}

var checkpointsShowCmd = &cobra.Command{
	Use:   "show [scan-id]",
	Short: "Show checkpoint details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := scanContext(cmd)
		manager := newCheckpointManager()

		state, err := manager.Load(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load checkpoint %s: %w", args[0], err)
		}

		pending := checkpoint.Pending(state.Endpoints, state.Completed)

		fmt.Println()
		color.New(color.FgCyan, color.Bold).Printf("Checkpoint %s\n", state.ScanID)
		fmt.Printf("  Target:    %s\n", state.BaseURL)
		fmt.Printf("  Saved:     %s (%s ago)\n", state.SavedAt.Format(time.RFC3339), formatAge(time.Since(state.SavedAt)))
		fmt.Printf("  Progress:  %d/%d endpoints\n", len(state.Completed), len(state.Endpoints))
		fmt.Printf("  Findings:  %d (%d PII exposures, %d vulnerabilities, %d auth issues)\n",
			len(state.Findings), len(state.PIIExposures), len(state.Vulnerabilities), len(state.AuthIssues))

		if len(pending) > 0 {
			fmt.Printf("\n  Pending endpoints (%d):\n", len(pending))
			shown := pending
			if len(shown) > 10 {
				shown = shown[:10]
			}
			for _, url := range shown {
				fmt.Printf("    • %s\n", url)
			}
			if len(pending) > 10 {
				fmt.Printf("    ... and %d more\n", len(pending)-10)
			}
		}

		age := time.Since(state.SavedAt)
		if age > 24*time.Hour {
			fmt.Println()
			color.Yellow("Checkpoint is %s old, the target may have changed\n", formatAge(age))
		}
		return nil
	},
}

var checkpointsRmCmd = &cobra.Command{
	Use:   "rm [scan-id]",
	Short: "Remove a checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := scanContext(cmd)
		manager := newCheckpointManager()

		if err := manager.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to remove checkpoint %s: %w", args[0], err)
		}

		color.Green("✓ Checkpoint %s removed\n", args[0])
		return nil
	},
}
