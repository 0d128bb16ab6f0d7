// Package cli implements the photofind command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/deepak/photofind/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "photofind",
	Short: "Search your photo library with natural language",
	Long: `Photofind indexes a local photo library by fusing OCR text, face
recognition against your own reference photos, and semantic image
embeddings, then answers natural-language queries like
"birthday card with flowers" or "mom at the beach".

All processing happens against locally running model sidecars; nothing
leaves your machine.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
