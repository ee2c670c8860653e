package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/accentscan/internal/domain/chunking"
	"github.com/forPelevin/accentscan/internal/domain/report"
	"github.com/forPelevin/accentscan/internal/pipeline"
	"github.com/forPelevin/accentscan/internal/ports"
	"github.com/forPelevin/accentscan/internal/types"
	"github.com/forPelevin/accentscan/internal/usecase"
)

var (
	errVideoNotFound = errors.New("Video file not found.")
	errInvalidChunk  = errors.New("Invalid chunk size.")
)

var videoExts = []string{"mp4", "avi", "mkv"}

// playbackGrace keeps chunk files around after the last playback: openers
// such as xdg-open return before the player has read the file.
const playbackGrace = 3 * time.Second

func newAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze a local video in the terminal",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return videoExts, cobra.ShellCompDirectiveFilterFileExt
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0])
		},
	}
	cmd.Flags().String("chunk", strconv.Itoa(chunking.DefaultSeconds), "Chunk size in seconds: 3, 5, 7, 10, 12 or 15")
	cmd.Flags().String("csv", report.Filename, "Where to save the results table")
	cmd.Flags().BoolP("interactive", "i", false, "Offer chunk playback before cleaning up")
	return cmd
}

func (a *app) analyze(cmd *cobra.Command, video string) error {
	chunkRaw, _ := cmd.Flags().GetString("chunk")
	csvPath, _ := cmd.Flags().GetString("csv")
	interactive, _ := cmd.Flags().GetBool("interactive")

	if _, err := os.Stat(video); err != nil {
		return errVideoNotFound
	}
	sec, err := strconv.Atoi(strings.TrimSpace(chunkRaw))
	if err != nil || !chunking.IsAllowed(sec) {
		return errInvalidChunk
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.pipelineConfig()
	cfg.VideoPath = video
	cfg.ChunkSeconds = sec
	cfg.CSVPath = csvPath

	t := &terminal{
		out:          cmd.OutOrStdout(),
		in:           a.in,
		player:       a.player,
		interactive:  interactive,
		csvPath:      csvPath,
		releaseDelay: a.releaseDelay,
	}
	return t.run(ctx, a.run, cfg)
}

// event is one message from the analysis goroutine to the renderer.
type event struct {
	stage    usecase.Stage
	result   *types.Classification
	chunk    types.AudioChunk
	complete *usecase.Result
	// ack is closed by the renderer once it is done with the chunk files.
	ack chan struct{}
}

type chanObserver struct{ ch chan<- event }

func (o chanObserver) OnStage(s usecase.Stage) { o.ch <- event{stage: s} }

func (o chanObserver) OnResult(c types.Classification, ch types.AudioChunk) {
	o.ch <- event{result: &c, chunk: ch}
}

func (o chanObserver) OnComplete(res usecase.Result) {
	ack := make(chan struct{})
	o.ch <- event{complete: &res, ack: ack}
	<-ack
}

// terminal renders a run as it happens. The analysis runs on its own
// goroutine; everything written to out happens on the caller's goroutine.
type terminal struct {
	out         io.Writer
	in          io.Reader
	player      ports.Player
	interactive bool
	csvPath     string

	// releaseDelay is how long chunk files outlive a replay that played something.
	releaseDelay time.Duration

	chunks []types.AudioChunk
	played bool
}

func (t *terminal) run(ctx context.Context, run runFunc, cfg pipeline.Config) error {
	events := make(chan event)
	errCh := make(chan error, 1)
	go func() {
		defer close(events)
		_, err := run(ctx, cfg, chanObserver{ch: events})
		errCh <- err
	}()

	for ev := range events {
		switch {
		case ev.result != nil:
			t.chunks = append(t.chunks, ev.chunk)
			t.renderResult(len(t.chunks), *ev.result)
		case ev.complete != nil:
			fmt.Fprintf(t.out, "Accent analysis is complete. Results saved to '%s'.\n", t.csvPath)
			if t.interactive && len(t.chunks) > 0 {
				t.replay(ctx)
				t.waitForPlayer(ctx)
			}
			close(ev.ack)
		case ev.stage == usecase.StageExtracting:
			fmt.Fprintln(t.out, "Analyzing audio chunks, please wait...")
		}
	}

	err := <-errCh
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("analysis cancelled: %w", err)
	}
	return err
}

func (t *terminal) renderResult(n int, c types.Classification) {
	fmt.Fprintf(t.out, "\n[%d] %s\nPredicted: %s\nConfidence: %.2f%%\n", n, c.Interval(), c.Label, c.Confidence)
}

// replay reads "play N" / "q" lines until quit, EOF or cancellation. Chunk
// files stay on disk for as long as it runs.
func (t *terminal) replay(ctx context.Context) {
	lines := make(chan string)
	// After quit the reader stays blocked in Scan until the next line or EOF;
	// stdin reads cannot be interrupted and the process exits right after.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(t.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(t.out, "Type \"play N\" to hear chunk N (1-%d), \"q\" to finish.\n", len(t.chunks))
	for {
		fmt.Fprint(t.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(t.out)
			return
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(t.out)
				return
			}
			line = l
		}

		n, quit, err := parseReplay(line, len(t.chunks))
		switch {
		case quit:
			return
		case err != nil:
			fmt.Fprintln(t.out, err)
		default:
			ch := t.chunks[n-1]
			if err := t.player.Play(ctx, ch.Path); err != nil {
				fmt.Fprintf(t.out, "playback failed: %v\n", err)
				continue
			}
			t.played = true
			fmt.Fprintf(t.out, "Playing %ds\n", ch.Start)
		}
	}
}

func (t *terminal) waitForPlayer(ctx context.Context) {
	if !t.played || t.releaseDelay <= 0 {
		return
	}
	timer := time.NewTimer(t.releaseDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// parseReplay accepts "q", "quit", "play N" or a bare "N".
func parseReplay(line string, total int) (n int, quit bool, err error) {
	f := strings.Fields(strings.ToLower(line))
	if len(f) == 0 {
		return 0, false, fmt.Errorf("expected \"play N\" or \"q\"")
	}
	switch f[0] {
	case "q", "quit", "exit":
		return 0, true, nil
	case "play", "p":
		if len(f) != 2 {
			return 0, false, fmt.Errorf("usage: play N")
		}
		f = f[1:]
	}
	n, err = strconv.Atoi(f[0])
	if err != nil || len(f) != 1 {
		return 0, false, fmt.Errorf("expected \"play N\" or \"q\"")
	}
	if n < 1 || n > total {
		return 0, false, fmt.Errorf("no chunk %d (have 1-%d)", n, total)
	}
	return n, false, nil
}
