package cli

import (
	"fmt"
	"image"
	"image/color"

	"github.com/deepak/photofind/internal/vision"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:       "test [clip|ocr|faces|all]",
	Short:     "Check connectivity to the model sidecars",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"clip", "ocr", "faces", "all"},
	RunE:      runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	target := "all"
	if len(args) > 0 {
		target = args[0]
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	failed := false
	check := func(name string, fn func() error) {
		if err := fn(); err != nil {
			failed = true
			fmt.Printf("  %-6s FAIL  %v\n", name, err)
		} else {
			fmt.Printf("  %-6s OK\n", name)
		}
	}

	probe := probeImage()

	if target == "clip" || target == "all" {
		check("clip", func() error {
			vector, err := a.encoder.EncodeText(ctx, "connectivity check")
			if err != nil {
				return err
			}
			if len(vector) == 0 {
				return fmt.Errorf("encoder returned an empty vector")
			}
			return nil
		})
	}

	if target == "ocr" || target == "all" {
		check("ocr", func() error {
			_, err := a.ocr.Extract(ctx, probe)
			return err
		})
	}

	if target == "faces" || target == "all" {
		check("faces", func() error {
			_, err := a.faceEngine.Detect(ctx, probe)
			return err
		})
	}

	if failed {
		return fmt.Errorf("some sidecars are unreachable")
	}
	return nil
}

// probeImage builds a small solid-color image to send to the sidecars.
func probeImage() vision.ImageInput {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	return vision.FromImage(img)
}
