// Command reviewctl runs document reviews from the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentreviewflow/internal/services"
)

var (
	configPath string
	verbose    bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "reviewctl",
	Short: "Review documents against reference specifications",
	Long: `reviewctl extracts structured data from a document, compares it with a
reference specification and writes either a CTD section or a discrepancy
report. Saved reviews can be listed from the local run or from Firestore.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (environment variables override it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall operation timeout")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(populateCmd)
	archiveCmd.AddCommand(archiveListCmd)
	rootCmd.AddCommand(archiveCmd)
}

// openReview connects the configured backends and bounds ctx by --timeout.
func openReview(cmd *cobra.Command) (*services.ReviewService, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	review, err := services.NewReview(ctx, configPath)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return review, ctx, cancel, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
