// Package accent turns raw classifier output into a (label, confidence) pair,
// mapping every failure to the ("Error", 0) sentinel.
package accent

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/accentscan/internal/metrics"
	"github.com/forPelevin/accentscan/internal/ports"
	"github.com/forPelevin/accentscan/internal/types"
)

type Adapter struct {
	backend ports.Classifier
	log     logrus.FieldLogger
}

// New wraps backend. A nil log discards warnings.
func New(backend ports.Classifier, log logrus.FieldLogger) *Adapter {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	return &Adapter{backend: backend, log: log}
}

// Classify calls the backend once and never returns an error: failures are
// logged and reported as the sentinel.
func (a *Adapter) Classify(ctx context.Context, path string) (string, float64) {
	pred, err := a.backend.Classify(ctx, path)
	if err == nil {
		var label string
		var conf float64
		label, conf, err = top(pred)
		if err == nil {
			metrics.RecordClassification(true)
			return label, conf
		}
	}
	metrics.RecordClassification(false)
	a.log.WithError(err).WithField("chunk", path).Warn("accent classification failed")
	return types.ErrorLabel, 0
}

func top(p types.Prediction) (string, float64, error) {
	if len(p.Labels) == 0 || len(p.Score) == 0 {
		return "", 0, fmt.Errorf("classifier returned no prediction")
	}
	s := p.Score[0]
	if math.IsNaN(s) || s < 0 || s > 1 {
		return "", 0, fmt.Errorf("classifier score out of range: %v", s)
	}
	return p.Labels[0], s * 100, nil
}
