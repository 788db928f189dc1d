package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
	"github.com/bsauty/sc-mri-modality-detection/pkg/acquisition"
	"github.com/bsauty/sc-mri-modality-detection/pkg/config"
	"github.com/bsauty/sc-mri-modality-detection/pkg/corpus"
	"github.com/bsauty/sc-mri-modality-detection/pkg/logging"
	"github.com/bsauty/sc-mri-modality-detection/pkg/nifti"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "modalityset.yaml", "Configuration file (YAML, or TOML with a .toml extension)")
	centers := flag.String("centers", "", "Comma-separated center directories (overrides the config file)")
	cropSize := flag.Int("crop", 0, "Center crop size in pixels (overrides the config file)")
	numWorkers := flag.Int("workers", 0, "Number of acquisitions processed concurrently (overrides the config file)")
	snapshots := flag.Bool("save-intermediary", false, "Save per-stage slice snapshots")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *centers != "" {
		cfg.Corpus.Centers = strings.Split(*centers, ",")
	}
	if *cropSize > 0 {
		cfg.Processing.CropSize = *cropSize
	}
	if *numWorkers > 0 {
		cfg.Processing.NumWorkers = *numWorkers
	}
	if *snapshots {
		cfg.Output.SaveIntermediaryResults = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Validate inputs
	if len(cfg.Corpus.Centers) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	logger, closer := logging.Setup(cfg)
	defer closer.Close()

	opts := []acquisition.Option{acquisition.WithLogger(logger)}
	if cfg.Output.SaveIntermediaryResults {
		opts = append(opts, acquisition.WithSnapshots(cfg.Output.IntermediaryDir))
	}
	assembler := acquisition.NewAssembler(nifti.NewReader(), cfg.Processing.CropSize, opts...)

	traversal := corpus.NewTraversal(assembler, corpus.LayoutFromConfig(cfg),
		corpus.WithWorkers(cfg.Processing.NumWorkers),
		corpus.WithLogger(logger),
		corpus.WithVerbose(cfg.Output.Verbose),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ds, report, err := traversal.Run(ctx, cfg.Corpus.Centers)
	if err != nil {
		closer.Close()
		log.Fatalf("Corpus pass failed: %v", err)
	}

	fmt.Printf("\nDataset assembled in %.2f seconds (run %s)\n", report.Duration.Seconds(), report.RunID)
	fmt.Printf("Samples: %d (%s of %dx%d float32 slices)\n",
		ds.Len(), humanize.Bytes(ds.Bytes()), cfg.Processing.CropSize, cfg.Processing.CropSize)

	counts := ds.Counts()
	for _, m := range models.Modalities {
		fmt.Printf("- %-7s (label %d): %d\n", m, int(m), counts[m])
	}

	fmt.Printf("Acquisitions: %d used, %d skipped, %d excluded\n",
		report.Succeeded(), len(report.Skipped()), len(report.Excluded))
	skipped := report.SkippedByReason()
	for _, r := range acquisition.Reasons {
		if skipped[r] > 0 {
			fmt.Printf("- %s: %d\n", r, skipped[r])
		}
	}
	if cfg.Output.SaveIntermediaryResults {
		fmt.Printf("Stage snapshots saved to: %s\n", cfg.Output.IntermediaryDir)
	}
}
