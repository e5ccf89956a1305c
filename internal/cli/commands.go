package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gmsas95/ddtscan/internal/archive"
	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/logging"
	"github.com/gmsas95/ddtscan/internal/store"
)

var Version = "dev"

// Options are the global flags shared by every command.
type Options struct {
	ConfigPath string
	DataDir    string
}

func (o Options) dataDir() string {
	if o.DataDir != "" {
		return o.DataDir
	}
	return config.DefaultDataDir()
}

func (o Options) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return config.DefaultConfigPath(o.dataDir())
}

// LoadConfig loads configuration and a logger honouring its log section.
func LoadConfig(opts Options) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func HandleConfigCommand(args []string, opts Options) {
	if len(args) == 0 {
		PrintConfigHelp()
		return
	}

	configPath := opts.configPath()

	switch args[0] {
	case "init":
		if err := config.WriteDefault(configPath, opts.dataDir()); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Wrote default configuration to %s\n", configPath)

	case "get":
		if len(args) < 2 {
			fmt.Println("Usage: ddtscan config get <key>")
			fmt.Println("Example: ddtscan config get server.port")
			os.Exit(1)
		}
		cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if !printConfigValue(cfg, args[1]) {
			os.Exit(1)
		}

	case "path":
		fmt.Println(configPath)

	case "show", "view":
		cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		out, err := renderConfig(cfg)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)

	default:
		PrintConfigHelp()
	}
}

// renderConfig prints the effective configuration with secrets masked.
func renderConfig(cfg *config.Config) (string, error) {
	masked := *cfg
	masked.Security.JWTSecret = maskToken(cfg.Security.JWTSecret)
	masked.Archive.S3.SecretKey = maskToken(cfg.Archive.S3.SecretKey)
	masked.Archive.S3.AccessKey = maskToken(cfg.Archive.S3.AccessKey)
	if cfg.Storage.PostgresDSN != "" {
		masked.Storage.PostgresDSN = maskToken(cfg.Storage.PostgresDSN)
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(data), nil
}

func printConfigValue(cfg *config.Config, key string) bool {
	switch key {
	case "server.port":
		fmt.Println(cfg.Server.Port)
	case "server.address":
		fmt.Println(cfg.Server.Address)
	case "storage.data_dir":
		fmt.Println(cfg.Storage.DataDir)
	case "storage.driver":
		fmt.Println(cfg.Storage.Driver)
	case "archive.backend":
		fmt.Println(cfg.Archive.Backend)
	case "stamp.page_format":
		fmt.Println(cfg.Stamp.PageFormat)
	case "filter.enabled":
		fmt.Println(cfg.Filter.Enabled)
	default:
		fmt.Printf("Unknown key: %s\n", key)
		fmt.Println("Available keys: server.port, server.address, storage.data_dir, storage.driver, archive.backend, stamp.page_format, filter.enabled")
		return false
	}
	return true
}

func enabledStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func HandleStatusCommand(opts Options) {
	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ddtscan Status")
	fmt.Println("==============")
	fmt.Println()
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Config:  %s\n", opts.configPath())
	fmt.Printf("Data:    %s\n", cfg.Storage.DataDir)
	fmt.Println()
	fmt.Println("Server Configuration:")
	fmt.Printf("  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Printf("  URL: http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("  Auth: %s\n", enabledStatus(cfg.Security.AuthRequired))
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Printf("  Filter:     %s\n", enabledStatus(cfg.Filter.Enabled))
	fmt.Printf("  Detector:   %T\n", geometry.NewAutoDetector())
	fmt.Printf("  Page format: %s\n", cfg.Stamp.PageFormat)
	fmt.Println()
	fmt.Println("Storage:")
	fmt.Printf("  Driver:  %s\n", cfg.Storage.Driver)
	fmt.Printf("  Archive: %s\n", cfg.Archive.Backend)
	fmt.Printf("  Housekeeping: %s\n", enabledStatus(cfg.Cron.Enabled))
	fmt.Println()
	fmt.Println("Run 'ddtscan doctor' for diagnostics")
}

func HandleDoctorCommand(opts Options) {
	fmt.Println("ddtscan Diagnostics")
	fmt.Println("===================")
	fmt.Println()

	issues := runDoctor(opts)

	fmt.Println()
	if issues == 0 {
		fmt.Println("✅ All checks passed!")
	} else {
		fmt.Printf("⚠️  Found %d issue(s). Run 'ddtscan config init' to start from defaults.\n", issues)
		os.Exit(1)
	}
}

func runDoctor(opts Options) int {
	issues := 0

	cfg, err := config.Load(opts.ConfigPath, opts.DataDir)
	if err != nil {
		fmt.Println("❌ Config: Error loading configuration")
		fmt.Printf("   %v\n", err)
		return 1
	}
	fmt.Println("✅ Config: Loaded successfully")

	if _, err := os.Stat(cfg.Storage.DataDir); os.IsNotExist(err) {
		fmt.Println("❌ Data Directory: Does not exist")
		issues++
	} else {
		fmt.Println("✅ Data Directory: Exists")
	}

	st, err := store.New(cfg, zap.NewNop())
	if err != nil {
		fmt.Printf("❌ Storage (%s): %v\n", cfg.Storage.Driver, err)
		issues++
	} else {
		fmt.Printf("✅ Storage: %s opened\n", cfg.Storage.Driver)
		_ = st.Close()
	}

	if _, err := archive.New(context.Background(), cfg.Archive, zap.NewNop()); err != nil {
		fmt.Printf("❌ Archive (%s): %v\n", cfg.Archive.Backend, err)
		issues++
	} else {
		fmt.Printf("✅ Archive: %s\n", cfg.Archive.Backend)
	}

	if cfg.Security.AuthRequired && len(cfg.Security.JWTSecret) < 32 {
		fmt.Println("⚠️  JWT secret: shorter than 32 bytes")
		issues++
	}

	return issues
}

func PrintExtendedHelp() {
	fmt.Println(`ddtscan - delivery note scanning and signing

Usage:
  ddtscan [-config path] [-data dir] <command> [args]

Commands:
  serve                Run the HTTP API (default)
  scan                 Correct and filter a photo offline
  sign                 Stamp page images and assemble a PDF offline
  batch                Sign stored documents in bulk
  config               Manage configuration (init, show, get, path)
  status               Show configuration summary
  doctor               Run diagnostics
  version              Print version

Run 'ddtscan <command> -h' for command options.`)
}

func PrintConfigHelp() {
	fmt.Println(`Usage: ddtscan config <command>

Commands:
  init         Write the default configuration file
  show         Print the effective configuration (secrets masked)
  get <key>    Print one configuration value
  path         Print the configuration file path`)
}
