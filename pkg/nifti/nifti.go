// Package nifti decodes single-file NIfTI-1 volumes (.nii and .nii.gz) into
// models.Volume values and writes volumes back in the same format.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
)

// ErrDecode is returned when a path is unreadable or not a valid volume.
var ErrDecode = errors.New("cannot decode volume")

const (
	headerSize    = 348
	minDataOffset = 352
)

// NIfTI-1 datatype codes
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
	dtInt64   = 1024
	dtUint64  = 1280
)

// Source returns the decoded volume stored at a path.
type Source interface {
	Load(path string) (*models.Volume, error)
}

// Reader is the file-backed Source.
type Reader struct{}

// NewReader returns a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Load implements Source.
func (r *Reader) Load(path string) (*models.Volume, error) {
	return Load(path)
}

// Load reads and decodes the volume at path. Gzip compression is detected
// from the stream, not the file name.
func Load(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%v", err)
	}
	defer f.Close()

	vol, err := Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return vol, nil
}

// Decode reads a NIfTI-1 stream, gzip-compressed or raw.
func Decode(r io.Reader) (*models.Volume, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "reading stream: %v", err)
	}

	var src io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "gzip: %v", err)
		}
		defer zr.Close()
		src = zr
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "reading stream: %v", err)
	}
	return parse(data)
}

type header struct {
	order     binary.ByteOrder
	dims      [8]int
	datatype  int
	bitpix    int
	pixdim    [8]float64
	voxOffset int
	slope     float64
	inter     float64
}

func parseHeader(data []byte) (*header, error) {
	if len(data) < headerSize {
		return nil, errors.Wrapf(ErrDecode, "short header: %d bytes", len(data))
	}

	h := &header{}
	switch {
	case binary.LittleEndian.Uint32(data[0:4]) == headerSize:
		h.order = binary.LittleEndian
	case binary.BigEndian.Uint32(data[0:4]) == headerSize:
		h.order = binary.BigEndian
	default:
		return nil, errors.Wrap(ErrDecode, "not a NIfTI-1 header")
	}

	if !bytes.Equal(data[344:347], []byte("n+1")) {
		return nil, errors.Wrapf(ErrDecode, "unsupported magic %q", data[344:347])
	}

	for i := 0; i < 8; i++ {
		h.dims[i] = int(int16(h.order.Uint16(data[40+2*i:])))
		h.pixdim[i] = float64(math.Float32frombits(h.order.Uint32(data[76+4*i:])))
	}
	h.datatype = int(int16(h.order.Uint16(data[70:])))
	h.bitpix = int(int16(h.order.Uint16(data[72:])))
	h.voxOffset = int(math.Float32frombits(h.order.Uint32(data[108:])))
	h.slope = float64(math.Float32frombits(h.order.Uint32(data[112:])))
	h.inter = float64(math.Float32frombits(h.order.Uint32(data[116:])))

	if h.voxOffset < minDataOffset {
		h.voxOffset = minDataOffset
	}
	return h, nil
}

// scaled reports whether the intensities must be mapped through slope and
// intercept. A zero or non-finite slope means they are stored unscaled; a
// non-finite intercept is read as zero.
func (h *header) scaled() bool {
	if !isFinite(h.inter) {
		h.inter = 0
	}
	if h.slope == 0 || !isFinite(h.slope) {
		return false
	}
	return h.slope != 1 || h.inter != 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// shape returns the three spatial lengths. Higher ranks are accepted only when
// every extra axis is a singleton.
func (h *header) shape() ([3]int, error) {
	var shape [3]int
	ndim := h.dims[0]
	if ndim < 3 || ndim > 7 {
		return shape, errors.Wrapf(ErrDecode, "expected a 3-D volume, got rank %d", ndim)
	}
	for i := 1; i <= ndim; i++ {
		if h.dims[i] < 0 {
			return shape, errors.Wrapf(ErrDecode, "negative length %d on axis %d", h.dims[i], i-1)
		}
		if i > 3 && h.dims[i] != 1 {
			return shape, errors.Wrapf(ErrDecode, "expected a 3-D volume, axis %d has length %d", i-1, h.dims[i])
		}
	}
	copy(shape[:], h.dims[1:4])
	return shape, nil
}

func bytesPerVoxel(datatype int) (int, error) {
	switch datatype {
	case dtUint8, dtInt8:
		return 1, nil
	case dtInt16, dtUint16:
		return 2, nil
	case dtInt32, dtUint32, dtFloat32:
		return 4, nil
	case dtInt64, dtUint64, dtFloat64:
		return 8, nil
	}
	return 0, errors.Wrapf(ErrDecode, "unsupported datatype %d", datatype)
}

func parse(data []byte) (*models.Volume, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	shape, err := h.shape()
	if err != nil {
		return nil, err
	}
	width, height, depth := shape[0], shape[1], shape[2]
	n := width * height * depth

	bpv, err := bytesPerVoxel(h.datatype)
	if err != nil {
		return nil, err
	}
	end := h.voxOffset + n*bpv
	if len(data) < end {
		return nil, errors.Wrapf(ErrDecode, "truncated voxel data: need %d bytes, have %d", end, len(data))
	}

	vol := &models.Volume{
		Data:   make([]float64, n),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z = h.pixdim[1], h.pixdim[2], h.pixdim[3]

	raw := data[h.voxOffset:end]
	o := h.order
	for i := 0; i < n; i++ {
		b := raw[i*bpv:]
		var v float64
		switch h.datatype {
		case dtUint8:
			v = float64(b[0])
		case dtInt8:
			v = float64(int8(b[0]))
		case dtInt16:
			v = float64(int16(o.Uint16(b)))
		case dtUint16:
			v = float64(o.Uint16(b))
		case dtInt32:
			v = float64(int32(o.Uint32(b)))
		case dtUint32:
			v = float64(o.Uint32(b))
		case dtFloat32:
			v = float64(math.Float32frombits(o.Uint32(b)))
		case dtInt64:
			v = float64(int64(o.Uint64(b)))
		case dtUint64:
			v = float64(o.Uint64(b))
		case dtFloat64:
			v = math.Float64frombits(o.Uint64(b))
		}
		vol.Data[i] = v
	}

	if h.scaled() {
		for i, v := range vol.Data {
			vol.Data[i] = v*h.slope + h.inter
		}
	}

	return vol, nil
}

// Write stores vol at path as a float32 NIfTI-1 file, gzip-compressed when the
// path ends in ".gz".
func Write(path string, vol *models.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating volume file")
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}

	if err := Encode(w, vol); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "closing gzip stream")
		}
	}
	return f.Close()
}

// Encode writes vol as an uncompressed little-endian float32 NIfTI-1 stream.
func Encode(w io.Writer, vol *models.Volume) error {
	le := binary.LittleEndian
	hdr := make([]byte, minDataOffset)

	le.PutUint32(hdr[0:], headerSize)
	dims := [8]int{3, vol.Width, vol.Height, vol.Depth, 1, 1, 1, 1}
	for i, d := range dims {
		le.PutUint16(hdr[40+2*i:], uint16(int16(d)))
	}
	le.PutUint16(hdr[70:], dtFloat32)
	le.PutUint16(hdr[72:], 32)

	pixdim := [8]float64{1, vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z, 1, 1, 1, 1}
	for i, p := range pixdim {
		if p == 0 {
			p = 1
		}
		le.PutUint32(hdr[76+4*i:], math.Float32bits(float32(p)))
	}
	le.PutUint32(hdr[108:], math.Float32bits(minDataOffset))
	copy(hdr[344:], "n+1\x00")

	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, "writing header")
	}

	body := make([]byte, 4*len(vol.Data))
	for i, v := range vol.Data {
		le.PutUint32(body[4*i:], math.Float32bits(float32(v)))
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "writing voxel data")
	}
	return nil
}
