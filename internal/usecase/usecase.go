package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forPelevin/accentscan/internal/domain/chunking"
	"github.com/forPelevin/accentscan/internal/domain/report"
	"github.com/forPelevin/accentscan/internal/ports"
	"github.com/forPelevin/accentscan/internal/types"
)

// ErrProbe marks a run that stopped because the audio duration could not be read.
var ErrProbe = errors.New("probe duration")

type Stage string

const (
	StageExtracting Stage = "extracting"
	StageProbing    Stage = "probing_duration"
	StageChunking   Stage = "chunking"
	StageClassify   Stage = "classifying"
	StageWritingCSV Stage = "writing_csv"
	StageDone       Stage = "done"
)

// Observer receives run progress. Calls happen on the goroutine running Run,
// in order. Chunk files are valid until OnComplete returns.
type Observer interface {
	OnStage(s Stage)
	OnResult(c types.Classification, chunk types.AudioChunk)
	OnComplete(res Result)
}

type Deps struct {
	Media      ports.MediaTool
	Classifier ports.AccentClassifier
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	VideoPath    string
	ChunkSeconds int
	// CSVPath is where the result table is written. Empty keeps it inside the
	// scratch directory, which is removed when Run returns.
	CSVPath string
	// ScratchRoot and ScratchPrefix are passed to os.MkdirTemp.
	ScratchRoot   string
	ScratchPrefix string
	Logf          func(format string, args ...any)
}

type Result struct {
	Rows    []types.Classification
	CSV     []byte
	CSVPath string
}

func (u Usecase) Run(ctx context.Context, in Input, obs Observer) (Result, error) {
	logf := in.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if err := chunking.ValidateSeconds(in.ChunkSeconds); err != nil {
		return Result{}, err
	}

	prefix := in.ScratchPrefix
	if prefix == "" {
		prefix = "accentscan-"
	}
	scratch, err := os.MkdirTemp(in.ScratchRoot, prefix)
	if err != nil {
		return Result{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)
	logf("scratch: %s", scratch)

	stage := func(s Stage) {
		logf("stage: %s", s)
		obs.OnStage(s)
	}

	stage(StageExtracting)
	wav := filepath.Join(scratch, "audio.wav")
	if err := u.d.Media.ExtractAudio(ctx, in.VideoPath, wav); err != nil {
		// Missing or unreadable input surfaces at the probe or the classifier.
		logf("extract audio failed: %v", err)
	}

	stage(StageProbing)
	duration, err := u.d.Media.ProbeDuration(ctx, wav)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrProbe, err)
	}
	logf("duration: %.3fs", duration)

	stage(StageChunking)
	chunks, err := u.splitAudio(ctx, wav, scratch, duration, in.ChunkSeconds, logf)
	if err != nil {
		return Result{}, err
	}
	logf("chunks: %d x %ds", len(chunks), in.ChunkSeconds)

	stage(StageClassify)
	rows := make([]types.Classification, 0, len(chunks))
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		label, conf := u.d.Classifier.Classify(ctx, ch.Path)
		c := types.Classification{
			Start:      ch.Start,
			End:        ch.Start + in.ChunkSeconds,
			Label:      label,
			Confidence: conf,
		}
		rows = append(rows, c)
		obs.OnResult(c, ch)
	}

	stage(StageWritingCSV)
	b, err := report.Render(rows)
	if err != nil {
		return Result{}, fmt.Errorf("render csv: %w", err)
	}
	csvPath := in.CSVPath
	if csvPath == "" {
		csvPath = filepath.Join(scratch, report.Filename)
	}
	if err := writeFile(csvPath, b); err != nil {
		return Result{}, fmt.Errorf("write csv: %w", err)
	}
	logf("csv written (%d rows): %s", len(rows), csvPath)

	res := Result{Rows: rows, CSV: b, CSVPath: csvPath}
	stage(StageDone)
	obs.OnComplete(res)
	return res, nil
}

// splitAudio cuts wav into chunk files following the window plan. Extraction
// failures are logged and the chunk is kept so the table stays aligned.
func (u Usecase) splitAudio(ctx context.Context, wav, dir string, duration float64, sec int, logf func(string, ...any)) ([]types.AudioChunk, error) {
	plan := chunking.Plan(duration, sec)
	chunks := make([]types.AudioChunk, 0, len(plan))
	for _, w := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := filepath.Join(dir, fmt.Sprintf("chunk_%d.wav", w.Start))
		if err := u.d.Media.ExtractSegment(ctx, wav, w.Start, w.Length, p); err != nil {
			logf("extract chunk at %ds failed: %v", w.Start, err)
		}
		if c := chunking.Covered(w, duration); c < float64(w.Length) {
			logf("chunk at %ds truncated to %.3fs", w.Start, c)
		}
		chunks = append(chunks, types.AudioChunk{Start: w.Start, Path: p})
	}
	return chunks, nil
}

// writeFile writes b atomically so a failed run never leaves a partial CSV.
func writeFile(path string, b []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type nopObserver struct{}

func (nopObserver) OnStage(Stage) {}
func (nopObserver) OnResult(types.Classification, types.AudioChunk) {}
func (nopObserver) OnComplete(Result) {}
