package acquisition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
	"github.com/bsauty/sc-mri-modality-detection/pkg/modality"
	"github.com/bsauty/sc-mri-modality-detection/pkg/nifti"
	"github.com/bsauty/sc-mri-modality-detection/pkg/transform"
)

// fakeSource serves in-memory volumes and counts loads
type fakeSource struct {
	volumes map[string]*models.Volume
	loads   int
}

func (f *fakeSource) Load(path string) (*models.Volume, error) {
	f.loads++
	vol, ok := f.volumes[path]
	if !ok {
		return nil, errors.Wrapf(nifti.ErrDecode, "no volume at %s", path)
	}
	return vol, nil
}

// gradientVolume creates a w x h x d volume with distinct nonzero values
func gradientVolume(w, h, d int) *models.Volume {
	vol := &models.Volume{Data: make([]float64, w*h*d), Width: w, Height: h, Depth: d}
	for i := range vol.Data {
		vol.Data[i] = float64(i + 1)
	}
	return vol
}

func TestProcess(t *testing.T) {
	path := "/c1/sub-01/anat/sub-01_T2w.nii.gz"
	src := &fakeSource{volumes: map[string]*models.Volume{path: gradientVolume(4, 4, 2)}}

	samples, err := NewAssembler(src, 2).Process(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	for i, s := range samples {
		assert.Equal(t, models.T2w, s.Label)
		assert.Equal(t, 2, s.Rows)
		assert.Equal(t, 2, s.Cols)
		assert.Len(t, s.Image, 4)
		assert.Equal(t, path, s.Source)
		assert.Equal(t, i, s.Index)

		var sum float32
		for _, v := range s.Image {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-5)
	}
}

func TestAssembleKeepsTensor(t *testing.T) {
	path := "sub-01_T1w.nii"
	src := &fakeSource{volumes: map[string]*models.Volume{path: gradientVolume(6, 6, 3)}}

	acq, err := NewAssembler(src, 4).Assemble(path)
	require.NoError(t, err)

	assert.Equal(t, models.T1w, acq.Modality)
	assert.Equal(t, [4]int{3, 1, 4, 4}, acq.Tensor.Shape())
	assert.Len(t, acq.Slices, 3)
	assert.Len(t, Samples(acq), 3)
}

func TestProcessUnknownModalitySkipsLoading(t *testing.T) {
	src := &fakeSource{}

	_, err := NewAssembler(src, 2).Process("/c1/sub-01/anat/sub-01_FLAIR.nii.gz")
	assert.True(t, errors.Is(err, modality.ErrUnknownModality))
	assert.Equal(t, 0, src.loads)
}

func TestProcessWithModality(t *testing.T) {
	path := "/c1/sub-01/anat/scan.nii.gz"
	src := &fakeSource{volumes: map[string]*models.Volume{path: gradientVolume(4, 4, 1)}}

	samples, err := NewAssembler(src, 2).ProcessWithModality(path, models.T2star)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, models.T2star, samples[0].Label)
}

func TestProcessFailuresEmitNothing(t *testing.T) {
	src := &fakeSource{volumes: map[string]*models.Volume{
		"empty_T1w.nii": {Width: 4, Height: 4, Depth: 0},
		"small_T1w.nii": gradientVolume(4, 1, 3),
	}}
	assembler := NewAssembler(src, 2)

	tests := []struct {
		path   string
		want   error
		reason Reason
	}{
		{"missing_T1w.nii", nifti.ErrDecode, ReasonDecode},
		{"empty_T1w.nii", transform.ErrEmptyVolume, ReasonEmptyVolume},
		{"small_T1w.nii", transform.ErrInvalidCrop, ReasonInvalidCrop},
		{"sub-01_FLAIR.nii", modality.ErrUnknownModality, ReasonUnknownModality},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			samples, err := assembler.Process(tt.path)
			assert.Nil(t, samples)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			reason, ok := Classify(err)
			assert.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestProcessConstantVolumeKeepsSlices(t *testing.T) {
	vol := &models.Volume{Data: make([]float64, 4*4*2), Width: 4, Height: 4, Depth: 2}
	for i := range vol.Data {
		vol.Data[i] = 7
	}
	src := &fakeSource{volumes: map[string]*models.Volume{"c_T1w.nii": vol}}

	samples, err := NewAssembler(src, 2).Process("c_T1w.nii")
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestClassifyOtherErrors(t *testing.T) {
	_, ok := Classify(errors.New("permission denied"))
	assert.False(t, ok)

	_, ok = Classify(transform.ErrShapeMismatch)
	assert.False(t, ok)

	_, ok = Classify(nil)
	assert.False(t, ok)
}

func TestReasonString(t *testing.T) {
	names := map[string]bool{}
	for _, r := range Reasons {
		names[r.String()] = true
	}
	assert.Len(t, names, 4)
	assert.Equal(t, "unknown", Reason(0).String())
}

func TestProcessReadsNiftiFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub-01_T2star.nii.gz")
	require.NoError(t, nifti.Write(path, gradientVolume(5, 5, 3)))

	samples, err := NewAssembler(nifti.NewReader(), 3).Process(path)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, models.T2star, samples[2].Label)
}

func TestSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := "/center/sub-01/anat/sub-01_T1w.nii"
	src := &fakeSource{volumes: map[string]*models.Volume{path: gradientVolume(4, 4, 2)}}

	_, err := NewAssembler(src, 2, WithSnapshots(dir)).Process(path)
	require.NoError(t, err)

	for _, step := range transform.Steps(2) {
		for _, name := range []string{"slice_000.jpg", "slice_001.jpg"} {
			_, err := os.Stat(filepath.Join(dir, "center__sub-01__anat__sub-01_T1w.nii", step.Name, name))
			assert.NoError(t, err)
		}
	}
}

func TestSnapshotName(t *testing.T) {
	assert.Equal(t, "c__sub-1__anat__f.nii", snapshotName("/data/c/sub-1/anat/f.nii"))
	assert.Equal(t, "anat__f.nii", snapshotName("anat/f.nii"))
	assert.Equal(t, "a__f.nii", snapshotName("/a/f.nii"))
}
