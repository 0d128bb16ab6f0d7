package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deepak/photofind/internal/engine"
	"github.com/deepak/photofind/internal/scanner"
	"github.com/deepak/photofind/internal/storage"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <path|s3://bucket/prefix>",
	Short: "Index photos for searching",
	Long: `Index a photo file, a directory tree, or an S3 prefix.

Each photo runs through OCR, face recognition, and semantic embedding.
Already indexed photos are skipped, so re-running over the same
directory only processes what is new.

Examples:
  photofind index ~/Pictures
  photofind index ~/Pictures/party.jpg
  photofind index s3://my-photos/2024 --limit 100`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().Int("limit", 0, "Limit number of photos to process (0 = no limit)")
	indexCmd.Flags().Bool("force", false, "Re-process photos that are already indexed")
}

func runIndex(cmd *cobra.Command, args []string) error {
	target := args[0]
	limit := mustGetInt(cmd, "limit")
	force := mustGetBool(cmd, "force")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// Pick up any new reference photos before indexing so faces get
	// named on the first pass.
	if computed, err := a.faceStore.ScanAndUpdate(ctx); err != nil {
		a.log.WithError(err).Warn("Known-faces scan failed, faces will go unnamed")
	} else if computed > 0 {
		fmt.Printf("Learned %d new reference face(s)\n", computed)
	}

	paths, err := discoverPhotos(ctx, a, target)
	if err != nil {
		return err
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	if len(paths) == 0 {
		fmt.Println("No photos found")
		return nil
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Indexing photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	stats, err := a.engine.IndexBatch(ctx, paths, &engine.AddOptions{Force: force}, func(done, total int) {
		_ = bar.Set(done)
	})
	fmt.Println()
	if stats != nil {
		elapsed := stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond)
		fmt.Printf("Indexed: %d  Skipped: %d  Failed: %d  (%s)\n",
			stats.Indexed, stats.Skipped, stats.Failed, elapsed)
	}
	if err != nil {
		return fmt.Errorf("indexing aborted: %w", err)
	}
	return nil
}

// discoverPhotos resolves the target into local file paths, mirroring
// S3 prefixes into the local cache first.
func discoverPhotos(ctx context.Context, a *app, target string) ([]string, error) {
	if !strings.HasPrefix(target, "s3://") {
		return scanner.Discover(target)
	}

	bucket, prefix, err := scanner.ParseURI(target)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(&storage.S3Config{
		Endpoint:  a.cfg.Storage.Endpoint,
		AccessKey: a.cfg.Storage.AccessKey,
		SecretKey: a.cfg.Storage.SecretKey,
		UseSSL:    a.cfg.Storage.UseSSL,
		Region:    a.cfg.Storage.Region,
		Bucket:    bucket,
	})
	if err != nil {
		return nil, err
	}

	src := scanner.NewS3Source(store, prefix, a.cfg.S3CacheDir(), a.log)
	return src.Discover(ctx)
}

// signalContext returns a context cancelled by Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	return ctx, cancel
}
