package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Manage known people",
	Long: `Manage the people photofind can recognize.

Reference photos live under <data_dir>/known_faces/<person>/, one
directory per person. Embeddings are cached, so rescans only touch
new photos.`,
}

var facesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known people and their reference counts",
	RunE:  runFacesList,
}

var facesScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the known-faces directory for new reference photos",
	RunE:  runFacesScan,
}

var facesAddCmd = &cobra.Command{
	Use:   "add <person>",
	Short: "Add reference photos for a person",
	Long: `Copy one or more photos into the person's reference directory and
compute their face embeddings. Each photo should contain exactly one
clearly visible face of that person.`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesAdd,
}

var facesRemoveCmd = &cobra.Command{
	Use:   "remove <person>",
	Short: "Forget a person and delete their reference photos",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacesRemove,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesListCmd)
	facesCmd.AddCommand(facesScanCmd)
	facesCmd.AddCommand(facesAddCmd)
	facesCmd.AddCommand(facesRemoveCmd)

	facesAddCmd.Flags().StringSlice("photos", nil, "Photos to add as references (required)")
	facesAddCmd.MarkFlagRequired("photos")
}

func runFacesList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	counts := a.faceStore.ReferenceCounts()
	if len(counts) == 0 {
		fmt.Println("No known people yet; use 'photofind faces add' to register someone")
		return nil
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Known people (%d):\n", len(names))
	for _, name := range names {
		fmt.Printf("  %-20s %d reference photo(s)\n", name, counts[name])
	}
	return nil
}

func runFacesScan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	computed, err := a.faceStore.ScanAndUpdate(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("Computed %d new embedding(s), %d people known\n",
		computed, len(a.faceStore.KnownNames()))
	return nil
}

func runFacesAdd(cmd *cobra.Command, args []string) error {
	person := args[0]
	photos := mustGetStringSlice(cmd, "photos")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	computed, err := a.faceStore.AddReferencePhotos(ctx, person, photos)
	if err != nil {
		return fmt.Errorf("failed to add references for %s: %w", person, err)
	}

	fmt.Printf("Added %d photo(s) for %s, %d usable face(s) found\n",
		len(photos), person, computed)
	if computed == 0 {
		fmt.Println("Warning: no faces detected in the added photos")
	}
	return nil
}

func runFacesRemove(cmd *cobra.Command, args []string) error {
	person := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.faceStore.RemovePerson(person); err != nil {
		return fmt.Errorf("failed to remove %s: %w", person, err)
	}

	fmt.Printf("Removed %s\n", person)
	return nil
}
