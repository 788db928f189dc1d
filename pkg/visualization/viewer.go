package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
)

// Viewer renders the slices of one acquisition at a preprocessing stage so the
// effect of cropping, standardization and filtering can be inspected by eye.
type Viewer struct {
	// slices holds the stage output being rendered
	slices []models.Slice
}

// NewViewer creates a viewer over a slice sequence
func NewViewer(slices []models.Slice) *Viewer {
	return &Viewer{slices: slices}
}

// Len returns the number of slices in the viewer
func (v *Viewer) Len() int {
	return len(v.slices)
}

// ExtractSlice renders the slice at a sequence position as a 16-bit grayscale
// image. Values are min-max scaled per slice; non-finite values render black.
// Image x runs along slice columns and image y along slice rows.
func (v *Viewer) ExtractSlice(position int) (image.Image, error) {
	if position < 0 || position >= len(v.slices) {
		return nil, errors.Errorf("position %d outside [0, %d)", position, len(v.slices))
	}

	s := v.slices[position]
	rows, cols := s.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))

	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			val := s.Data.At(r, c)
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			lo = math.Min(lo, val)
			hi = math.Max(hi, val)
		}
	}

	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			val := s.Data.At(r, c)
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			value := uint16(math.Max(0, math.Min(65535, (val-lo)*scale)))
			img.SetGray16(c, r, color.Gray16{Y: value})
		}
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "creating image file")
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		return errors.Wrap(err, "encoding jpeg")
	}
	return nil
}

// SaveSliceSequence renders and saves every slice into outputDir, naming each
// file after the slice's axial index in the source volume
func (v *Viewer) SaveSliceSequence(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrap(err, "creating snapshot directory")
	}

	for pos := range v.slices {
		img, err := v.ExtractSlice(pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%03d.jpg", v.slices[pos].Index))
		if err := v.SaveSlice(img, filename); err != nil {
			return errors.Wrapf(err, "saving slice %d", v.slices[pos].Index)
		}
	}

	return nil
}
