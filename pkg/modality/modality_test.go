package modality

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		path string
		want models.Modality
	}{
		{"/data/center/sub-01/anat/sub-01_T1w.nii.gz", models.T1w},
		{"/data/center/sub-01/anat/sub-01_T2star.nii.gz", models.T2star},
		{"/data/center/sub-01/anat/sub-01_T2w.nii.gz", models.T2w},
		{"sub-02_acq-sag_T2w.nii", models.T2w},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Resolve(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveT2starIsNeverT2w(t *testing.T) {
	got, err := Resolve("sub-03_T2star_T2w.nii.gz")
	require.NoError(t, err)
	assert.Equal(t, models.T2star, got)
	assert.Equal(t, 1, int(got))
}

func TestResolveUnknown(t *testing.T) {
	for _, path := range []string{"sub-01_FLAIR.nii.gz", "sub-01_t1w.nii.gz", "sub-01_T2.nii.gz", ""} {
		_, err := Resolve(path)
		assert.True(t, errors.Is(err, ErrUnknownModality), "path %q", path)
	}
}

func TestToken(t *testing.T) {
	for _, m := range models.Modalities {
		got, err := Resolve("x_" + Token(m) + ".nii")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	assert.Empty(t, Token(models.Modality(7)))
}
