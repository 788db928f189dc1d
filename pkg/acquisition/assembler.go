// Package acquisition turns one volumetric scan file into labeled slice samples.
package acquisition

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
	"github.com/bsauty/sc-mri-modality-detection/pkg/modality"
	"github.com/bsauty/sc-mri-modality-detection/pkg/nifti"
	"github.com/bsauty/sc-mri-modality-detection/pkg/transform"
	"github.com/bsauty/sc-mri-modality-detection/pkg/visualization"
)

// Reason names why an acquisition was skipped.
type Reason int

const (
	ReasonDecode Reason = iota + 1
	ReasonEmptyVolume
	ReasonUnknownModality
	ReasonInvalidCrop
)

// Reasons lists every skip reason.
var Reasons = []Reason{ReasonDecode, ReasonEmptyVolume, ReasonUnknownModality, ReasonInvalidCrop}

func (r Reason) String() string {
	switch r {
	case ReasonDecode:
		return "decode"
	case ReasonEmptyVolume:
		return "empty-volume"
	case ReasonUnknownModality:
		return "unknown-modality"
	case ReasonInvalidCrop:
		return "invalid-crop"
	}
	return "unknown"
}

// Classify reports the skip reason for an acquisition-local error. ok is false
// for any other error, which must abort the corpus pass.
func Classify(err error) (reason Reason, ok bool) {
	switch {
	case errors.Is(err, nifti.ErrDecode):
		return ReasonDecode, true
	case errors.Is(err, transform.ErrEmptyVolume):
		return ReasonEmptyVolume, true
	case errors.Is(err, modality.ErrUnknownModality):
		return ReasonUnknownModality, true
	case errors.Is(err, transform.ErrInvalidCrop):
		return ReasonInvalidCrop, true
	}
	return 0, false
}

// Assembler runs the per-acquisition steps in a fixed order:
//
//  1. resolve the modality from the file name
//  2. load the volume
//  3. extract axial slices
//  4. center crop, standardize, filter empty slices
//  5. pack the survivors and emit one sample per slice
//
// Any failure discards the acquisition: no samples are returned.
// An Assembler holds no per-acquisition state and is safe for concurrent use.
type Assembler struct {
	source   nifti.Source
	cropSize int

	// snapshotDir, when set, receives JPEG renderings of every stage
	snapshotDir string

	logger *log.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSnapshots saves the slices produced by every stage under dir.
func WithSnapshots(dir string) Option {
	return func(a *Assembler) {
		a.snapshotDir = dir
	}
}

// WithLogger sets the logger used for snapshot warnings.
func WithLogger(l *log.Logger) Option {
	return func(a *Assembler) {
		a.logger = l
	}
}

// NewAssembler creates an assembler reading volumes from source and cropping
// slices to cropSize x cropSize.
func NewAssembler(source nifti.Source, cropSize int, opts ...Option) *Assembler {
	a := &Assembler{
		source:   source,
		cropSize: cropSize,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CropSize returns the edge length of the emitted samples.
func (a *Assembler) CropSize() int {
	return a.cropSize
}

// Process returns the labeled samples of the acquisition at path.
func (a *Assembler) Process(path string) ([]models.Sample, error) {
	acq, err := a.Assemble(path)
	if err != nil {
		return nil, err
	}
	return Samples(acq), nil
}

// ProcessWithModality is Process with a known modality; the file name is not
// consulted.
func (a *Assembler) ProcessWithModality(path string, m models.Modality) ([]models.Sample, error) {
	acq, err := a.assemble(path, m)
	if err != nil {
		return nil, err
	}
	return Samples(acq), nil
}

// Assemble runs every step and returns the finished acquisition, including the
// packed tensor of its surviving slices.
func (a *Assembler) Assemble(path string) (*models.Acquisition, error) {
	m, err := modality.Resolve(path)
	if err != nil {
		return nil, err
	}
	return a.assemble(path, m)
}

func (a *Assembler) assemble(path string, m models.Modality) (*models.Acquisition, error) {
	acq := &models.Acquisition{Path: path, Modality: m}

	vol, err := a.source.Load(path)
	if err != nil {
		return nil, err
	}
	if vol.Size() == 0 {
		return nil, errors.Wrapf(transform.ErrEmptyVolume, "%s", path)
	}

	acq.Slices, err = transform.Extract(vol)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	for _, step := range transform.Steps(a.cropSize) {
		acq.Slices, err = step.Stage(acq.Slices)
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		a.snapshot(path, step.Name, acq.Slices)
	}

	acq.Tensor, err = transform.Pack(acq.Slices, a.cropSize)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return acq, nil
}

// Samples flattens a packed acquisition into one sample per surviving slice,
// all carrying the acquisition's label.
func Samples(acq *models.Acquisition) []models.Sample {
	if acq.Tensor == nil {
		return nil
	}
	samples := make([]models.Sample, acq.Tensor.N)
	for i := range samples {
		samples[i] = models.Sample{
			Image:  acq.Tensor.Sample(i),
			Rows:   acq.Tensor.Rows,
			Cols:   acq.Tensor.Cols,
			Label:  acq.Modality,
			Source: acq.Path,
			Index:  acq.Slices[i].Index,
		}
	}
	return samples
}

func (a *Assembler) snapshot(path, stage string, slices []models.Slice) {
	if a.snapshotDir == "" {
		return
	}
	dir := filepath.Join(a.snapshotDir, snapshotName(path), stage)
	if err := visualization.NewViewer(slices).SaveSliceSequence(dir); err != nil {
		a.logger.Printf("Warning: failed to save %s snapshot of %s: %v", stage, path, err)
	}
}

// snapshotName keys snapshots by center, subject and file so that equally named
// files from different centers do not collide.
func snapshotName(path string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	if len(parts) > 4 {
		parts = parts[len(parts)-4:]
	}
	name := strings.Join(parts, "__")
	return strings.TrimPrefix(name, "__")
}
