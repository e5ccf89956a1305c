package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/app"
	"github.com/gmsas95/ddtscan/internal/batch"
	"github.com/gmsas95/ddtscan/internal/domain"
	"github.com/gmsas95/ddtscan/internal/security"
	"github.com/gmsas95/ddtscan/internal/store"
	"github.com/gmsas95/ddtscan/internal/workflow"
)

func HandleBatchCommand(args []string, opts Options) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inputFile := fs.String("i", "", "File with one document ID per line (.txt, .json, .jsonl)")
	outputFile := fs.String("o", "", "Write results (.json or text)")
	concurrency := fs.Int("c", 0, "Concurrent signings (default from config)")
	signature := fs.String("signature", "", "Signature image, or a data URL")
	carrierID := fs.String("carrier-id", "", "Stored carrier whose name, company and signature are used")
	seal := fs.String("seal", "", "Seal number")
	carrier := fs.String("carrier", "", "Carrier name")
	company := fs.String("company", "", "Carrier company")
	restamp := fs.Bool("restamp", false, "Stamp text only")
	fs.Usage = PrintBatchHelp
	_ = fs.Parse(args)

	if *inputFile == "" {
		fmt.Println("Error: Input file is required")
		fmt.Println("Usage: ddtscan batch -i <input_file> [-o <output_file>]")
		os.Exit(1)
	}

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		fmt.Printf("Error: Input file not found: %s\n", *inputFile)
		os.Exit(1)
	}

	ids, err := batch.LoadIDs(*inputFile)
	if err != nil {
		fmt.Printf("Error reading input: %v\n", err)
		os.Exit(1)
	}

	cfg, logger, err := LoadConfig(opts)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *concurrency > 0 {
		cfg.Batch.Concurrency = *concurrency
	}

	st, err := store.New(cfg, logger)
	if err != nil {
		fmt.Printf("Error initializing store: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, st, logger, Version)
	if err != nil {
		st.Close()
		fmt.Printf("Error initializing app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	req := workflow.SignRequest{
		Spec: domain.StampSpec{
			SealNumber:     *seal,
			CarrierName:    *carrier,
			CarrierCompany: *company,
		},
		CarrierID: *carrierID,
		Workflow:  domain.WorkflowSign,
	}
	if *restamp {
		req.Workflow = domain.WorkflowRestamp
	}
	if err := security.ValidateStampSpec(req.Spec); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if *signature != "" {
		sig, err := readSignature(*signature)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		req.Spec.Signature = sig
	}

	bc := batch.ConfigFrom(cfg.Batch)
	fmt.Printf("✍️  Signing %d documents from %s\n", len(ids), *inputFile)
	fmt.Printf("   Concurrency: %d | Rate: %.1f/s | Timeout: %v\n", bc.MaxConcurrency, bc.RatePerSecond, bc.Timeout)
	fmt.Println()

	result, err := a.Batch.Sign(ctx, ids, req)
	if err != nil && result == nil {
		fmt.Printf("Error processing batch: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("Batch interrupted", zap.Error(err))
	}

	fmt.Println(result.Summary())

	if *outputFile != "" {
		if err := batch.SaveResult(*outputFile, result); err != nil {
			fmt.Printf("Error saving results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Results saved to: %s\n", *outputFile)
	}

	if result.Failed > 0 {
		fmt.Println("\nFailed items:")
		for _, item := range result.Items {
			if !item.Success && item.Error != "skipped" {
				fmt.Printf("  - %s: %s\n", item.DocumentID, item.Error)
			}
		}
		os.Exit(2)
	}
}

func PrintBatchHelp() {
	fmt.Println(`Usage: ddtscan batch -i <input_file> [options]

Signs stored documents in bulk with one stamp.

Input formats:
  .txt    One document ID per line, # starts a comment
  .json   Stream of {"document_id": "..."} objects
  .jsonl  Same, one object per line

Options:
  -i <file>            Input file with document IDs
  -o <file>            Results file (.json, otherwise text)
  -c <n>               Concurrent signings
  -signature <file>    Signature image (png/jpeg) or data URL
  -carrier-id <id>     Use a stored carrier's details and signature
  -seal <number>       Seal number
  -carrier <name>      Carrier name
  -company <name>      Carrier company
  -restamp             Text-only stamp

Exit code is 2 when any document failed.`)
}
