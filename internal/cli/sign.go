package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/app"
	"github.com/gmsas95/ddtscan/internal/assemble"
	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/domain"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
	"github.com/gmsas95/ddtscan/internal/preview"
	"github.com/gmsas95/ddtscan/internal/security"
	"github.com/gmsas95/ddtscan/internal/stamp"
)

type signOptions struct {
	Pages     []string
	Output    string
	Preview   string
	Signature string
	Spec      domain.StampSpec
	Workflow  domain.Workflow
	Title     string
}

type signOutcome struct {
	Pages    int
	Size     int
	Report   *stamp.Report
	Warnings []error
}

func HandleSignCommand(args []string, opts Options) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	output := fs.String("o", "", "Output PDF")
	previewPath := fs.String("preview", "", "Also write the confirmation preview PNG")
	signature := fs.String("signature", "", "Signature image, or a data URL")
	seal := fs.String("seal", "", "Seal number")
	carrier := fs.String("carrier", "", "Carrier name")
	company := fs.String("company", "", "Carrier company")
	restamp := fs.Bool("restamp", false, "Stamp text only; no signature required")
	title := fs.String("title", "", "PDF title")
	fs.Usage = PrintSignHelp
	_ = fs.Parse(args)

	if *output == "" || fs.NArg() == 0 {
		PrintSignHelp()
		os.Exit(1)
	}

	wf := domain.WorkflowSign
	if *restamp {
		wf = domain.WorkflowRestamp
	}

	cfg, logger, err := LoadConfig(opts)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	res, err := runSign(context.Background(), cfg, signOptions{
		Pages:     fs.Args(),
		Output:    *output,
		Preview:   *previewPath,
		Signature: *signature,
		Spec: domain.StampSpec{
			SealNumber:     *seal,
			CarrierName:    *carrier,
			CarrierCompany: *company,
		},
		Workflow: wf,
		Title:    *title,
	}, logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Wrote %s (%d pages, %d bytes)\n", *output, res.Pages, res.Size)
	fmt.Printf("   Signature: %v | Text: %v\n", res.Report.SignatureApplied, res.Report.TextApplied)
	for _, w := range res.Warnings {
		fmt.Printf("⚠️  %v\n", w)
	}
}

func runSign(ctx context.Context, cfg *config.Config, o signOptions, logger *zap.Logger) (*signOutcome, error) {
	limits := app.Limits(cfg.Scanner)

	pages := make(domain.PageSet, 0, len(o.Pages))
	for _, path := range o.Pages {
		page, err := loadPage(path, cfg.Stamp, limits)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		pages = append(pages, page)
	}

	spec := o.Spec
	if err := security.ValidateStampSpec(spec); err != nil {
		return nil, err
	}
	if o.Signature != "" {
		sig, err := readSignature(o.Signature)
		if err != nil {
			return nil, err
		}
		spec.Signature = sig
	}

	engine := stamp.FromConfig(cfg.Stamp, logger)

	if o.Preview != "" && len(pages) > 0 {
		pv, err := preview.NewRenderer(engine, logger).Render(ctx, pages[0], spec, o.Workflow)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(o.Preview, pv.PNG, 0644); err != nil {
			return nil, fmt.Errorf("failed to write preview: %w", err)
		}
	}

	stamped, report, err := engine.Stamp(ctx, pages, spec, o.Workflow)
	if err != nil {
		return nil, err
	}

	pdf, err := assemble.New(logger).Assemble(ctx, stamped, assemble.Meta{
		Title:     o.Title,
		Author:    spec.CarrierName,
		Creator:   "ddtscan " + Version,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(o.Output, pdf, 0644); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	return &signOutcome{Pages: len(stamped), Size: len(pdf), Report: report, Warnings: report.Warnings}, nil
}

// loadPage reads a page image. Formats the PDF writer cannot embed are
// re-encoded in the configured page format.
func loadPage(path string, cfg config.StampConfig, limits geometry.Limits) (domain.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Page{}, err
	}
	size, format, err := imageio.Bounds(data, limits)
	if err != nil {
		return domain.Page{}, err
	}
	if format == "png" {
		return domain.NewPage(data, domain.FormatPNG, size.Width, size.Height), nil
	}

	// JPEGs are re-encoded so their EXIF orientation is baked into the pixels.
	img, err := imageio.Decode(data, limits)
	if err != nil {
		return domain.Page{}, err
	}
	target := domain.PageFormat(cfg.PageFormat)
	if format == "jpeg" {
		target = domain.FormatJPEG
	}
	return imageio.EncodePage(img, target, cfg.JPEGQuality)
}

// readSignature accepts a file path or an inline data URL.
func readSignature(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "data:") {
		return domain.DecodeSignature(arg), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	return data, nil
}

func PrintSignHelp() {
	fmt.Println(`Usage: ddtscan sign -o <out.pdf> [options] <page1> [page2 ...]

Stamps the first page and assembles every page into an A4 PDF.
JPEG pages are turned upright according to their EXIF orientation.

Options:
  -o <file>            Output PDF
  -signature <file>    Signature image (png/jpeg) or data URL
  -seal <number>       Seal number
  -carrier <name>      Carrier name
  -company <name>      Carrier company (recorded, not printed)
  -restamp             Text-only stamp; signature optional
  -preview <file>      Also write the confirmation preview PNG
  -title <text>        PDF title`)
}
