// Package transform reduces a decoded volume to the normalized square slices fed
// to the modality classifier.
//
// Every stage is a pure function from a slice sequence to a new slice sequence:
// inputs are never modified, so stages can be tested on their own and applied
// to several acquisitions in parallel. The fixed preprocessing order is
//
//	CenterCrop -> Standardize -> FilterEmpty
//
// after which Pack turns the survivors into a (N, 1, size, size) float32 tensor.
package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
)

var (
	// ErrEmptyVolume is returned for a volume with no voxels.
	ErrEmptyVolume = errors.New("empty volume")

	// ErrInvalidCrop is returned when a slice is smaller than the crop on either axis.
	ErrInvalidCrop = errors.New("invalid crop")

	// ErrShapeMismatch is returned by Pack for a slice that is not size x size.
	ErrShapeMismatch = errors.New("slice shape mismatch")
)

// Stage transforms a whole per-acquisition slice sequence.
type Stage func([]models.Slice) ([]models.Slice, error)

// Step is a named Stage.
type Step struct {
	Name  string
	Stage Stage
}

// Steps returns the preprocessing stages in their fixed order.
func Steps(cropSize int) []Step {
	return []Step{
		{Name: "01_cropped", Stage: CenterCrop(cropSize)},
		{Name: "02_standardized", Stage: Standardize},
		{Name: "03_filtered", Stage: FilterEmpty},
	}
}

// Chain composes stages left to right, stopping at the first error.
func Chain(stages ...Stage) Stage {
	return func(slices []models.Slice) ([]models.Slice, error) {
		var err error
		for _, stage := range stages {
			slices, err = stage(slices)
			if err != nil {
				return nil, err
			}
		}
		return slices, nil
	}
}

// Preprocess is the full crop, standardize and filter chain.
func Preprocess(cropSize int) Stage {
	steps := Steps(cropSize)
	stages := make([]Stage, len(steps))
	for i, s := range steps {
		stages[i] = s.Stage
	}
	return Chain(stages...)
}

// Extract decomposes vol into its axial slices, one per index along the third
// axis, in index order.
func Extract(vol *models.Volume) ([]models.Slice, error) {
	if vol.Size() == 0 {
		return nil, ErrEmptyVolume
	}

	slices := make([]models.Slice, vol.Depth)
	for z := 0; z < vol.Depth; z++ {
		data := make([]float64, vol.Width*vol.Height)
		for x := 0; x < vol.Width; x++ {
			for y := 0; y < vol.Height; y++ {
				data[x*vol.Height+y] = vol.At(x, y, z)
			}
		}
		slices[z] = models.Slice{Data: mat.NewDense(vol.Width, vol.Height, data), Index: z}
	}
	return slices, nil
}

// CenterCrop returns a stage cutting a size x size window around the center of
// every slice. Offsets use floor division, so the window sits one pixel toward
// the origin when the size and dimension parities differ. A single slice that
// cannot hold the window fails the whole sequence.
func CenterCrop(size int) Stage {
	return func(slices []models.Slice) ([]models.Slice, error) {
		if size <= 0 {
			return nil, errors.Wrapf(ErrInvalidCrop, "crop size must be positive, got %d", size)
		}
		out := make([]models.Slice, len(slices))
		for i, s := range slices {
			rows, cols := s.Dims()
			startY := rows/2 - size/2
			startX := cols/2 - size/2
			if startY < 0 || startX < 0 || startY+size > rows || startX+size > cols {
				return nil, errors.Wrapf(ErrInvalidCrop, "slice %d is %dx%d, crop is %dx%d", s.Index, rows, cols, size, size)
			}
			window := s.Data.Slice(startY, startY+size, startX, startX+size)
			out[i] = models.Slice{Data: mat.DenseCopyOf(window), Index: s.Index}
		}
		return out, nil
	}
}

// Standardize rescales each slice independently to zero mean and unit
// population standard deviation. A constant slice divides by zero and yields
// non-finite values; this is left unguarded.
func Standardize(slices []models.Slice) ([]models.Slice, error) {
	out := make([]models.Slice, len(slices))
	for i, s := range slices {
		mean, std := stat.PopMeanStdDev(values(s.Data), nil)
		rows, cols := s.Dims()
		d := mat.NewDense(rows, cols, nil)
		d.Apply(func(_, _ int, v float64) float64 {
			return (v - mean) / std
		}, s.Data)
		out[i] = models.Slice{Data: d, Index: s.Index}
	}
	return out, nil
}

// FilterEmpty drops slices without a single nonzero value, keeping the order of
// the survivors. NaN and infinite values count as nonzero.
func FilterEmpty(slices []models.Slice) ([]models.Slice, error) {
	out := make([]models.Slice, 0, len(slices))
	for _, s := range slices {
		if NonZero(s) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// NonZero counts the values of s that differ from zero.
func NonZero(s models.Slice) int {
	if s.Data == nil {
		return 0
	}
	return floats.Count(func(v float64) bool { return v != 0 }, values(s.Data))
}

// Pack stacks size x size slices into a (N, 1, size, size) float32 tensor.
func Pack(slices []models.Slice, size int) (*models.Tensor, error) {
	t := &models.Tensor{
		N:        len(slices),
		Channels: 1,
		Rows:     size,
		Cols:     size,
		Data:     make([]float32, len(slices)*size*size),
	}
	for i, s := range slices {
		rows, cols := s.Dims()
		if rows != size || cols != size {
			return nil, errors.Wrapf(ErrShapeMismatch, "slice %d is %dx%d, want %dx%d", s.Index, rows, cols, size, size)
		}
		dst := t.Sample(i)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				dst[r*cols+c] = float32(s.Data.At(r, c))
			}
		}
	}
	return t, nil
}

// values flattens m in row-major order.
func values(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, m.RawRowView(r)...)
	}
	return out
}
