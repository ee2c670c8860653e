package ports

import (
	"context"

	"github.com/forPelevin/accentscan/internal/types"
)

type MediaTool interface {
	ExtractAudio(ctx context.Context, inVideo, outWav string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractSegment(ctx context.Context, inWav string, startSec, lengthSec int, outWav string) error
}

// Classifier is a pretrained accent model reachable from Go.
type Classifier interface {
	Classify(ctx context.Context, wavPath string) (types.Prediction, error)
}

// AccentClassifier yields a label and a confidence percentage, or the
// ("Error", 0) sentinel. It never fails.
type AccentClassifier interface {
	Classify(ctx context.Context, wavPath string) (label string, confidence float64)
}

type Player interface {
	Play(ctx context.Context, path string) error
}
