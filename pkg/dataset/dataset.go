// Package dataset holds the flattened, labeled slice samples produced by a
// corpus pass.
package dataset

import (
	"github.com/pkg/errors"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
)

// ErrIndexOutOfRange is returned by Get for an index outside [0, Len()).
var ErrIndexOutOfRange = errors.New("index out of range")

// Collector is an append-only, index-addressable sequence of samples.
// It has a single writer while it is populated and is read-only afterward.
type Collector struct {
	samples []models.Sample
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{}
}

// Add appends a sample at the end of the collection.
func (c *Collector) Add(sample models.Sample) {
	c.samples = append(c.samples, sample)
}

// AddAll appends samples in order.
func (c *Collector) AddAll(samples []models.Sample) {
	c.samples = append(c.samples, samples...)
}

// Get returns the sample at index.
func (c *Collector) Get(index int) (models.Sample, error) {
	if index < 0 || index >= len(c.samples) {
		return models.Sample{}, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", index, len(c.samples))
	}
	return c.samples[index], nil
}

// Len returns the number of samples.
func (c *Collector) Len() int {
	return len(c.samples)
}

// Samples returns the samples in insertion order. The slice must not be modified.
func (c *Collector) Samples() []models.Sample {
	return c.samples
}

// Labels returns the label of every sample in insertion order.
func (c *Collector) Labels() []models.Modality {
	labels := make([]models.Modality, len(c.samples))
	for i, s := range c.samples {
		labels[i] = s.Label
	}
	return labels
}

// Counts returns the number of samples per label.
func (c *Collector) Counts() map[models.Modality]int {
	counts := make(map[models.Modality]int)
	for _, s := range c.samples {
		counts[s.Label]++
	}
	return counts
}

// Bytes returns the size of the pixel data held by the collection.
func (c *Collector) Bytes() uint64 {
	var n uint64
	for _, s := range c.samples {
		n += uint64(len(s.Image)) * 4
	}
	return n
}
