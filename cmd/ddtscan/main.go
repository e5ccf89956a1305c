package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gmsas95/ddtscan/internal/app"
	"github.com/gmsas95/ddtscan/internal/cli"
	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = cli.PrintExtendedHelp
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	cli.Version = version
	opts := cli.Options{ConfigPath: *configPath, DataDir: *dataDir}

	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve", "server":
		runServer(opts)
	case "scan":
		cli.HandleScanCommand(args, opts)
	case "sign":
		cli.HandleSignCommand(args, opts)
	case "batch":
		cli.HandleBatchCommand(args, opts)
	case "config":
		cli.HandleConfigCommand(args, opts)
	case "status":
		cli.HandleStatusCommand(opts)
	case "doctor":
		cli.HandleDoctorCommand(opts)
	case "version", "--version", "-v":
		fmt.Printf("ddtscan version %s\n", version)
	case "help", "--help", "-h":
		cli.PrintExtendedHelp()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		cli.PrintExtendedHelp()
		os.Exit(1)
	}
}

func runServer(opts cli.Options) {
	cfg, logger, err := cli.LoadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath(cfg.Storage.DataDir)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
		if term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Println("No config file found, running with defaults.")
			fmt.Println("Run 'ddtscan config init' to create one.")
			fmt.Println()
		}
	}

	logger.Info("Starting ddtscan",
		zap.String("version", version),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	st, err := store.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, st, logger, version)
	if err != nil {
		st.Close()
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}
	application.ConfigPath = path

	if err := application.RunServer(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		application.Close()
		os.Exit(1)
	}
	application.Close()
}
