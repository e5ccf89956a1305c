package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/app"
	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/domain"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
	"github.com/gmsas95/ddtscan/internal/session"
)

type scanOptions struct {
	Input    string
	Output   string
	Corners  []geometry.Point
	NoFilter bool
}

func HandleScanCommand(args []string, opts Options) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	input := fs.String("i", "", "Photo of the delivery note")
	output := fs.String("o", "", "Output page image (.png or .jpg)")
	corners := fs.String("corners", "", "Eight comma-separated numbers x1,y1,...,x4,y4 in image pixels; detected when empty")
	noFilter := fs.Bool("no-filter", false, "Skip the legibility filter")
	fs.Usage = PrintScanHelp
	_ = fs.Parse(args)

	if *input == "" || *output == "" {
		PrintScanHelp()
		os.Exit(1)
	}

	points, err := parseCorners(*corners)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg, logger, err := LoadConfig(opts)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	out, err := runScan(context.Background(), cfg, scanOptions{
		Input:    *input,
		Output:   *output,
		Corners:  points,
		NoFilter: *noFilter,
	}, logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Wrote %s (%dx%d, filter: %s, %v)\n", *output, out.Page.Width, out.Page.Height, out.Rung, out.Duration.Round(1e6))
	if out.Page.AspectWarning {
		fmt.Println("⚠️  Page proportions differ from A4; check the corners")
	}
	for _, w := range out.Warnings {
		fmt.Printf("⚠️  %v\n", w)
	}
}

func runScan(ctx context.Context, cfg *config.Config, o scanOptions, logger *zap.Logger) (*session.Outcome, error) {
	data, err := os.ReadFile(o.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	local := *cfg
	local.Stamp.PageFormat = string(formatFor(o.Output))
	if o.NoFilter {
		local.Filter.Enabled = false
	}
	proc, _ := app.NewProcessor(&local, logger)

	img, err := imageio.Decode(data, proc.Limits())
	if err != nil {
		return nil, err
	}

	corners := o.Corners
	if len(corners) == 0 {
		corners, err = geometry.NewAutoDetector().Detect(ctx, img, nil)
		if err != nil {
			return nil, fmt.Errorf("corner detection failed, pass -corners: %w", err)
		}
		logger.Info("Detected corners", zap.Any("corners", corners))
	}

	out, err := proc.Correct(ctx, img, corners)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(o.Output, out.Page.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}
	return out, nil
}

func parseCorners(s string) ([]geometry.Point, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 8 {
		return nil, fmt.Errorf("corners need 8 numbers, got %d", len(parts))
	}
	points := make([]geometry.Point, 4)
	for i := range points {
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[2*i]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid corner x%d: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[2*i+1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid corner y%d: %w", i+1, err)
		}
		points[i] = geometry.Pt(x, y)
	}
	return points, nil
}

func formatFor(path string) domain.PageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return domain.FormatJPEG
	}
	return domain.FormatPNG
}

func PrintScanHelp() {
	fmt.Println(`Usage: ddtscan scan -i <photo> -o <page.png|page.jpg> [options]

Options:
  -i <file>          Photo of the delivery note (jpeg, png, webp, tiff, bmp)
  -o <file>          Corrected page; the extension selects the format
  -corners <list>    x1,y1,x2,y2,x3,y3,x4,y4 in image pixels, any order
  -no-filter         Keep the perspective-corrected photo unfiltered`)
}
