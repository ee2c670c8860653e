package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/accentscan/internal/metrics"
)

// runFunc executes a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Adapter struct {
	ffmpeg  string
	ffprobe string
	run     runFunc
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, run: execRun}
}

// ExtractAudio demuxes the audio track into mono 16 kHz PCM s16le, overwriting outWav.
func (a *Adapter) ExtractAudio(ctx context.Context, inVideo, outWav string) error {
	b, err := a.exec(ctx, "ffmpeg", a.ffmpeg,
		"-y",
		"-i", inVideo,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outWav,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// ExtractSegment copies [start, start+length) of inWav into outWav. A window
// running past the end of the stream is truncated by ffmpeg, not padded.
func (a *Adapter) ExtractSegment(ctx context.Context, inWav string, startSec, lengthSec int, outWav string) error {
	b, err := a.exec(ctx, "ffmpeg", a.ffmpeg,
		"-y",
		"-i", inWav,
		"-ss", strconv.Itoa(startSec),
		"-t", strconv.Itoa(lengthSec),
		outWav,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg extract segment at %ds: %w\n%s", startSec, err, string(b))
	}
	return nil
}

// ProbeDuration returns the container duration in seconds.
func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	b, err := a.exec(ctx, "ffprobe", a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	return parseDuration(string(b))
}

func parseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func (a *Adapter) exec(ctx context.Context, metric, bin string, args ...string) ([]byte, error) {
	start := time.Now()
	b, err := a.run(ctx, bin, args...)
	metrics.ObserveCommand(metric, err, time.Since(start))
	return b, err
}
