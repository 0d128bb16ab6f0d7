package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed photos with natural language",
	Long: `Search the indexed library. Queries can describe content
("birthday card with flowers"), quote text that appears in the photo,
or mention a known person by name ("mom at the beach") to restrict
results to photos that person is in.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("limit", 10, "Maximum number of results")
	searchCmd.Flags().Bool("show-ocr", false, "Print extracted text for each result")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	limit := mustGetInt(cmd, "limit")
	showOCR := mustGetBool(cmd, "show-ocr")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	results, err := a.engine.Search(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matches")
		return nil
	}

	for i, result := range results {
		fmt.Printf("%2d. %s (score %.3f)\n", i+1, result.Path, result.Score)
		if len(result.Faces) > 0 {
			fmt.Printf("    People: %s\n", strings.Join(result.Faces, ", "))
		}
		if showOCR && result.OCRText != "" {
			fmt.Printf("    Text: %s\n", truncate(result.OCRText, 120))
		}
	}
	return nil
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed photos without a query",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().Int("limit", 50, "Maximum number of photos to list")
}

func runList(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	results, err := a.engine.GetAllImages(ctx, limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("The index is empty; run 'photofind index' first")
		return nil
	}
	for _, result := range results {
		fmt.Println(result.Path)
	}
	return nil
}
