package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := a.engine.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to gather stats: %w", err)
	}

	fmt.Printf("Indexed photos:    %d\n", stats.IndexedPhotos)
	fmt.Printf("Photos with text:  %d\n", stats.PhotosWithText)

	if len(stats.KnownPeople) > 0 {
		fmt.Printf("Known people:      %d\n", len(stats.KnownPeople))

		names := make([]string, 0, len(stats.FaceCounts))
		for name := range stats.FaceCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-20s appears in %d photo(s)\n", name, stats.FaceCounts[name])
		}
	}
	return nil
}
