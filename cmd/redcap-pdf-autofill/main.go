package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/a3tai/redcap-pdf-autofill/internal/autofill"
	"github.com/a3tai/redcap-pdf-autofill/internal/config"
	"github.com/a3tai/redcap-pdf-autofill/internal/fieldmap"
	"github.com/a3tai/redcap-pdf-autofill/internal/logging"
	"github.com/a3tai/redcap-pdf-autofill/internal/mcp"
	"github.com/a3tai/redcap-pdf-autofill/internal/pdf"
	"github.com/a3tai/redcap-pdf-autofill/internal/redcap"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

func main() {
	cfg, err := config.LoadFromFlags()
	if errors.Is(err, config.ErrVersionRequested) {
		printVersion(os.Stdout)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.IsDebug() {
		logger.Debug("Starting with configuration", zap.Stringer("config", cfg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Run failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	client, err := redcap.NewClient(redcap.Config{
		URL:     cfg.APIURL,
		Token:   cfg.APIKey,
		Timeout: cfg.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.IsFillMode() {
		svc := newService(cfg, client, cfg.OutputDir, logger)
		return runFill(ctx, cfg, svc, os.Stdout)
	}

	// generated outputs stay inside the directory the tools are confined to
	outputDir := cfg.OutputDir
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(cfg.PDFDirectory, outputDir)
	}
	svc := newService(cfg, client, outputDir, logger)

	server, err := mcp.NewServer(cfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

// newService wires the fill pipeline from configuration
func newService(cfg *config.Config, client *redcap.Client, outputDir string, logger *zap.Logger) *autofill.Service {
	opts := []autofill.Option{
		autofill.WithNormalizer(fieldmap.NewNormalizer(fieldmap.WithTruthyValues(cfg.TruthyValues...))),
		autofill.WithValidator(pdf.NewValidator(cfg.MaxFileSize)),
		autofill.WithOutputDir(outputDir),
		autofill.WithRecordVariable(cfg.RecordVariable),
		autofill.WithLogger(logger),
	}
	if cfg.UseMetadata {
		opts = append(opts, autofill.WithMetadata(client))
	}
	return autofill.NewService(client, opts...)
}

// runFill fills one template and prints a summary to w
func runFill(ctx context.Context, cfg *config.Config, filler mcp.Filler, w io.Writer) error {
	result, err := filler.Fill(ctx, autofill.Request{
		Identifier:     cfg.Identifier,
		RecordVariable: cfg.RecordVariable,
		TemplatePath:   cfg.InputPDF,
		OutputPath:     cfg.OutputPDF,
	})
	if err != nil {
		return err
	}
	printFillSummary(w, result)
	return nil
}

func printFillSummary(w io.Writer, result *autofill.Result) {
	fmt.Fprintf(w, "Filled %s with record %s\n", result.TemplatePath, result.Identifier)
	fmt.Fprintf(w, "Output: %s\n", result.OutputPath)
	fmt.Fprintf(w, "Fields filled: %d\n", len(result.Instruction))

	if len(result.Omissions) == 0 {
		return
	}
	omissions := append([]fieldmap.Omission(nil), result.Omissions...)
	sort.Slice(omissions, func(i, j int) bool { return omissions[i].Field < omissions[j].Field })

	fmt.Fprintf(w, "Fields left empty: %d\n", len(omissions))
	for _, o := range omissions {
		fmt.Fprintf(w, "  %s (%s)\n", o.Field, o.Reason)
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "REDCap PDF Autofill\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
