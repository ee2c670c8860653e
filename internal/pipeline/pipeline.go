package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/accentscan/internal/accent"
	"github.com/forPelevin/accentscan/internal/domain/chunking"
	"github.com/forPelevin/accentscan/internal/logging"
	"github.com/forPelevin/accentscan/internal/metrics"
	"github.com/forPelevin/accentscan/internal/ports"
	"github.com/forPelevin/accentscan/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/accentscan/internal/ports/adapters/inferhttp"
	"github.com/forPelevin/accentscan/internal/ports/adapters/speechbrain"
	"github.com/forPelevin/accentscan/internal/usecase"
)

const (
	BackendExec = "exec"
	BackendHTTP = "http"
)

type Config struct {
	VideoPath    string
	ChunkSeconds int
	// CSVPath is the destination of the result table. Empty keeps the table in
	// memory only (Result.CSV).
	CSVPath string
	// ScratchRoot is the parent of the per-run scratch directory. If empty,
	// the system temp dir is used.
	ScratchRoot string
	Logger      logrus.FieldLogger

	FFmpegPath  string
	FFprobePath string

	// Backend selects the classifier: "exec" (default) or "http".
	Backend string

	Python string
	Script string
	Source string

	ClassifierURL     string
	ClassifierTimeout time.Duration
}

func (c Config) backend() string {
	b := strings.ToLower(strings.TrimSpace(c.Backend))
	if b == "" {
		return BackendExec
	}
	return b
}

func (c Config) Validate() error {
	if c.VideoPath == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.VideoPath); err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if err := chunking.ValidateSeconds(c.ChunkSeconds); err != nil {
		return err
	}
	switch c.backend() {
	case BackendExec:
		return nil
	case BackendHTTP:
		return inferhttp.ValidateBaseURL(c.ClassifierURL)
	default:
		return fmt.Errorf("unknown classifier backend %q (want %s or %s)", c.Backend, BackendExec, BackendHTTP)
	}
}

// NewClassifier builds the backend named by cfg.Backend.
func NewClassifier(cfg Config) (ports.Classifier, error) {
	switch cfg.backend() {
	case BackendExec:
		a, err := speechbrain.New(cfg.Python, cfg.Script, cfg.Source)
		if err != nil {
			return nil, err
		}
		return a, nil
	case BackendHTTP:
		a, err := inferhttp.New(cfg.ClassifierURL, cfg.ClassifierTimeout)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
}

// Run validates cfg, wires the adapters and runs one analysis.
func Run(ctx context.Context, cfg Config, obs usecase.Observer) (usecase.Result, error) {
	if err := cfg.Validate(); err != nil {
		return usecase.Result{}, err
	}
	backend, err := NewClassifier(cfg)
	if err != nil {
		return usecase.Result{}, err
	}
	if c, ok := backend.(io.Closer); ok {
		defer c.Close()
	}
	return run(ctx, cfg, ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath), backend, obs)
}

func run(ctx context.Context, cfg Config, media ports.MediaTool, backend ports.Classifier, obs usecase.Observer) (usecase.Result, error) {
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	log = log.WithFields(logrus.Fields{
		"video": filepath.Base(cfg.VideoPath),
		"chunk": cfg.ChunkSeconds,
	})

	uc := usecase.New(usecase.Deps{
		Media:      media,
		Classifier: accent.New(backend, log),
	})

	started := time.Now()
	log.Info("analysis started")
	res, err := uc.Run(ctx, usecase.Input{
		VideoPath:     cfg.VideoPath,
		ChunkSeconds:  cfg.ChunkSeconds,
		CSVPath:       cfg.CSVPath,
		ScratchRoot:   cfg.ScratchRoot,
		ScratchPrefix: scratchPrefix(cfg.VideoPath, started),
		Logf:          logging.Logf(log),
	}, obs)
	metrics.RecordRun(err)
	if err != nil {
		log.WithError(err).Error("analysis failed")
		return res, err
	}
	failed := 0
	for _, r := range res.Rows {
		if r.Failed() {
			failed++
		}
	}
	log.WithFields(logrus.Fields{
		"chunks":  len(res.Rows),
		"failed":  failed,
		"took_ms": time.Since(started).Milliseconds(),
	}).Info("analysis complete")
	return res, nil
}

// scratchPrefix names the run's scratch directory after the video, e.g.
// "my-talk-20260212-103045Z-1a2b3c-".
func scratchPrefix(videoPath string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	name = NormalizeName(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", videoPath, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return fmt.Sprintf("accentscan-%s-%s-%s-", name, ts, suffix)
}

// NormalizeName lowercases s and collapses every run of non-alphanumerics
// into a single dash.
func NormalizeName(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.MediaTool = (*ffmpeg.Adapter)(nil)
var _ ports.Classifier = (*speechbrain.Adapter)(nil)
var _ ports.Classifier = (*inferhttp.Adapter)(nil)
var _ ports.AccentClassifier = (*accent.Adapter)(nil)
