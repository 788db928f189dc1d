package corpus

import (
	"time"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
	"github.com/bsauty/sc-mri-modality-detection/pkg/acquisition"
)

// Outcome is the result of one acquisition: its sample count on success, or
// the reason it was skipped.
type Outcome struct {
	Path string

	// Samples is the number of samples the acquisition contributed
	Samples int

	Reason acquisition.Reason
	Err    error

	samples []models.Sample
}

// OK reports whether the acquisition contributed to the dataset.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report summarizes a corpus pass.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	// Excluded lists files left out before processing
	Excluded []string

	// Outcomes holds one entry per processed file, in discovery order
	Outcomes []Outcome
}

// Succeeded returns the number of acquisitions that contributed samples.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Skipped returns the outcomes of the acquisitions that were dropped.
func (r *Report) Skipped() []Outcome {
	var skipped []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

// SkippedByReason counts dropped acquisitions per reason.
func (r *Report) SkippedByReason() map[acquisition.Reason]int {
	counts := make(map[acquisition.Reason]int)
	for _, o := range r.Skipped() {
		counts[o.Reason]++
	}
	return counts
}
