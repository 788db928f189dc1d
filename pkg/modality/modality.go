// Package modality resolves the acquisition contrast of a scan from its file name.
package modality

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/bsauty/sc-mri-modality-detection/internal/models"
)

// ErrUnknownModality is returned when no recognized token appears in a path.
var ErrUnknownModality = errors.New("unknown modality")

// tokens are checked in order. "T2star" precedes "T2w" so the more specific
// token wins before any shorter T2 token could match.
var tokens = []struct {
	token    string
	modality models.Modality
}{
	{"T1w", models.T1w},
	{"T2star", models.T2star},
	{"T2w", models.T2w},
}

// Resolve maps a path to its modality by case-sensitive substring match.
func Resolve(path string) (models.Modality, error) {
	for _, t := range tokens {
		if strings.Contains(path, t.token) {
			return t.modality, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownModality, "%s", path)
}

// Token returns the file name token that identifies m.
func Token(m models.Modality) string {
	for _, t := range tokens {
		if t.modality == m {
			return t.token
		}
	}
	return ""
}
