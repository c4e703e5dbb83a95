package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imgconv/internal/config"
	"imgconv/internal/converter"
)

// convertOptions mirrors the web form fields.
type convertOptions struct {
	width     int
	height    int
	format    string
	direction string
	outDir    string
}

var convertOpts convertOptions

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert local files with the same pipeline as the web form",
	Long: `Convert runs the given files through the conversion pipeline and writes
the result to --out-dir: a single converted file, converted.pdf for
--direction image_to_pdf, or a ZIP archive when several files are produced.
Files with unsupported extensions are skipped; the command fails when
nothing could be converted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := runConvert(cmd.Context(), cfg, args, convertOpts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	f := convertCmd.Flags()
	f.IntVar(&convertOpts.width, "width", 0, "target width in pixels (0 keeps aspect from --height or the source)")
	f.IntVar(&convertOpts.height, "height", 0, "target height in pixels")
	f.StringVar(&convertOpts.format, "to", "", "target format: png, jpg, gif, bmp, tiff, webp or pdf (default: keep source format)")
	f.StringVar(&convertOpts.direction, "direction", "", "pdf_to_image or image_to_pdf")
	f.StringVar(&convertOpts.outDir, "out-dir", ".", "directory for the output file")

	rootCmd.AddCommand(convertCmd)
}

// runConvert converts paths and returns the path of the written payload.
func runConvert(ctx context.Context, cfg *config.Config, paths []string, opts convertOptions) (string, error) {
	if opts.width < 0 || opts.height < 0 {
		return "", fmt.Errorf("width and height must not be negative")
	}
	dir, ok := converter.ParseDirection(opts.direction)
	if !ok {
		return "", fmt.Errorf("unknown direction %q", opts.direction)
	}
	req := converter.Request{
		Width:     opts.width,
		Height:    opts.height,
		Format:    opts.format,
		Direction: dir,
	}

	uploads := make([]converter.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", p, err)
		}
		uploads = append(uploads, converter.Upload{Filename: filepath.Base(p), Data: data})
	}

	pipeline, err := converter.NewPipeline(cfg)
	if err != nil {
		return "", err
	}
	payload, err := pipeline.Run(ctx, uploads, req)
	if err != nil {
		return "", fmt.Errorf("converting %d file(s): %w", len(paths), err)
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", opts.outDir, err)
	}
	out := filepath.Join(opts.outDir, payload.Filename)
	if err := os.WriteFile(out, payload.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", out, err)
	}
	return out, nil
}
