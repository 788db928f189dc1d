package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Modality is the acquisition contrast used as the classification label
type Modality int

const (
	T1w Modality = iota
	T2star
	T2w
)

// Modalities lists every known label in label order
var Modalities = []Modality{T1w, T2star, T2w}

func (m Modality) String() string {
	switch m {
	case T1w:
		return "T1w"
	case T2star:
		return "T2star"
	case T2w:
		return "T2w"
	}
	return fmt.Sprintf("Modality(%d)", int(m))
}

// Volume represents a decoded 3D MRI volume
type Volume struct {
	// Data is the 3D volume data as a 1D array, first axis fastest:
	// idx = z*Width*Height + y*Width + x
	Data []float64

	// Width is the length of the first spatial axis in voxels
	Width int

	// Height is the length of the second spatial axis in voxels
	Height int

	// Depth is the length of the third (axial) spatial axis in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// Size returns the number of voxels in the volume
func (v *Volume) Size() int {
	if v == nil {
		return 0
	}
	return v.Width * v.Height * v.Depth
}

// At returns the voxel value at (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Width*v.Height+y*v.Width+x]
}

// Slice is a single 2D axial cross-section of a volume.
// Rows follow the first volume axis and columns the second.
type Slice struct {
	// Data holds the pixel values
	Data *mat.Dense

	// Index is the position of this slice along the third axis of the source volume
	Index int
}

// Dims returns the number of rows and columns of the slice
func (s Slice) Dims() (rows, cols int) {
	if s.Data == nil {
		return 0, 0
	}
	return s.Data.Dims()
}

// Tensor is a packed buffer of shape (N, Channels, Rows, Cols) in row-major order
type Tensor struct {
	N, Channels, Rows, Cols int

	Data []float32
}

// Shape returns the four tensor dimensions
func (t *Tensor) Shape() [4]int {
	return [4]int{t.N, t.Channels, t.Rows, t.Cols}
}

// Sample returns the image stored at index i of the first axis as a view
// into the tensor buffer
func (t *Tensor) Sample(i int) []float32 {
	stride := t.Channels * t.Rows * t.Cols
	return t.Data[i*stride : (i+1)*stride : (i+1)*stride]
}

// Sample is one labeled training image: a single-channel Rows x Cols image
type Sample struct {
	// Image holds Rows*Cols float32 pixels in row-major order
	Image []float32

	Rows, Cols int

	Label Modality

	// Source is the acquisition file the sample was taken from
	Source string

	// Index is the axial position of the slice in the source volume
	Index int
}

// At returns the pixel at row r, column c
func (s Sample) At(r, c int) float32 {
	return s.Image[r*s.Cols+c]
}

// Acquisition is one raw volumetric scan and the slices derived from it
type Acquisition struct {
	Path string

	Modality Modality

	// Slices is replaced as a whole by each transform stage
	Slices []Slice

	// Tensor is set once the surviving slices are packed
	Tensor *Tensor
}
