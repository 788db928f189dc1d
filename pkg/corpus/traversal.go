// Package corpus walks a multi-center directory hierarchy
//
//	<center>/<subject dir containing "sub">/anat/<volume file>
//
// processes every discovered acquisition and flattens the samples of the
// successful ones into a dataset.
package corpus

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
	"github.com/bsauty/sc-mri-modality-detection/pkg/acquisition"
	"github.com/bsauty/sc-mri-modality-detection/pkg/config"
	"github.com/bsauty/sc-mri-modality-detection/pkg/dataset"
)

// Processor turns one acquisition file into samples.
type Processor interface {
	Process(path string) ([]models.Sample, error)
}

// Layout describes how centers, subjects and acquisition files are recognized.
// All matching is by case-sensitive substring.
type Layout struct {
	SubjectToken  string
	AnatDir       string
	Extensions    []string
	ExcludeTokens []string
}

// DefaultLayout returns the BIDS-like layout: "sub" subjects, an "anat"
// directory, NIfTI files, and MTS acquisitions excluded.
func DefaultLayout() Layout {
	cfg := config.DefaultConfig()
	return LayoutFromConfig(cfg)
}

// LayoutFromConfig reads the layout from the corpus section of cfg.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{
		SubjectToken:  cfg.Corpus.SubjectToken,
		AnatDir:       cfg.Corpus.AnatDir,
		Extensions:    cfg.Corpus.Extensions,
		ExcludeTokens: cfg.Corpus.ExcludeTokens,
	}
}

// Traversal drives a Processor over every acquisition of a corpus.
type Traversal struct {
	processor Processor
	layout    Layout
	workers   int
	logger    *log.Logger
	verbose   bool
}

// Option configures a Traversal.
type Option func(*Traversal)

// WithWorkers sets how many acquisitions are processed at once.
func WithWorkers(n int) Option {
	return func(t *Traversal) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithLogger sets the logger receiving progress and skip messages.
func WithLogger(l *log.Logger) Option {
	return func(t *Traversal) {
		t.logger = l
	}
}

// WithVerbose enables per-acquisition progress messages.
func WithVerbose(v bool) Option {
	return func(t *Traversal) {
		t.verbose = v
	}
}

// NewTraversal creates a traversal over layout feeding processor.
func NewTraversal(processor Processor, layout Layout, opts ...Option) *Traversal {
	t := &Traversal{
		processor: processor,
		layout:    layout,
		workers:   1,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Discover lists the candidate acquisition files under centers, in directory
// listing order, and the files left out because of an exclude token. Any
// directory that cannot be read is an error.
func (t *Traversal) Discover(centers []string) (candidates, excluded []string, err error) {
	for _, center := range centers {
		entries, err := os.ReadDir(center)
		if err != nil {
			return nil, nil, errors.Wrap(err, "reading center")
		}

		for _, entry := range entries {
			if !strings.Contains(entry.Name(), t.layout.SubjectToken) {
				continue
			}
			subject := filepath.Join(center, entry.Name())
			if !isDir(subject) {
				continue
			}

			anat := filepath.Join(subject, t.layout.AnatDir)
			files, err := os.ReadDir(anat)
			if err != nil {
				return nil, nil, errors.Wrap(err, "reading subject")
			}

			for _, f := range files {
				if f.IsDir() || !containsAny(f.Name(), t.layout.Extensions) {
					continue
				}
				path := filepath.Join(anat, f.Name())
				if containsAny(f.Name(), t.layout.ExcludeTokens) {
					excluded = append(excluded, path)
					continue
				}
				candidates = append(candidates, path)
			}
		}
	}
	return candidates, excluded, nil
}

// Run processes every acquisition under centers and returns the populated
// dataset with a report of what was processed and skipped.
//
// An acquisition failing for an acquisition-local reason (see
// acquisition.Classify) is skipped and logged; the pass continues. Any other
// error aborts the pass. Acquisitions may be processed concurrently, but the
// dataset always holds the samples of each successful acquisition contiguously,
// in discovery order.
func (t *Traversal) Run(ctx context.Context, centers []string) (*dataset.Collector, *Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	logger := log.New(t.logger.Writer(), fmt.Sprintf("[%s] ", report.RunID[:8]), t.logger.Flags())

	logger.Printf("Step 1: Discovering acquisitions in %d centers...", len(centers))
	candidates, excluded, err := t.Discover(centers)
	if err != nil {
		return nil, nil, err
	}
	report.Excluded = excluded
	logger.Printf("Found %d acquisitions (%d excluded)", len(candidates), len(excluded))

	logger.Printf("Step 2: Processing acquisitions with %d workers...", t.workers)
	outcomes := make([]Outcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for i, path := range candidates {
		if gctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := t.process(path)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			if t.verbose {
				logger.Printf("Processed %d/%d: %s", i+1, len(candidates), path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	logger.Println("Step 3: Assembling dataset...")
	ds := dataset.New()
	for i := range outcomes {
		o := &outcomes[i]
		if o.Err != nil {
			logger.Printf("Skipping %s (%s): %v", o.Path, o.Reason, o.Err)
		} else {
			ds.AddAll(o.samples)
		}
		o.samples = nil
	}
	report.Outcomes = outcomes
	report.Duration = time.Since(report.Started)

	logger.Printf("Collected %d samples from %d acquisitions, skipped %d", ds.Len(), report.Succeeded(), len(report.Skipped()))
	return ds, report, nil
}

// process runs one acquisition, converting acquisition-local failures into a
// skipped Outcome.
func (t *Traversal) process(path string) (Outcome, error) {
	samples, err := t.processor.Process(path)
	if err != nil {
		reason, ok := acquisition.Classify(err)
		if !ok {
			return Outcome{}, errors.Wrapf(err, "processing %s", path)
		}
		return Outcome{Path: path, Reason: reason, Err: err}, nil
	}
	return Outcome{Path: path, Samples: len(samples), samples: samples}, nil
}

func containsAny(name string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

// isDir follows symlinks.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
