package speechbrain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// TestHelperProcess is not a real test: it is re-executed by the tests below as
// a stand-in for the Python helper. Each reply labels the chunk with its own
// path.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ACCENTSCAN_WANT_HELPER") != "1" {
		return
	}
	if os.Getenv("ACCENTSCAN_HELPER_BANNER") == "1" {
		fmt.Println("Loading model...")
	}
	reply := func(v any) {
		b, _ := json.Marshal(v)
		fmt.Println(string(b))
	}
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		var req struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(in.Bytes(), &req)
		switch {
		case strings.Contains(req.Path, "crash"):
			fmt.Fprintln(os.Stderr, "Traceback: segfault in model")
			os.Exit(3)
		case strings.Contains(req.Path, "corrupt"):
			reply(map[string]any{"path": req.Path, "error": "Failed to load audio"})
		case strings.Contains(req.Path, "garbage"):
			fmt.Println(`{"path": not json`)
		case strings.Contains(req.Path, "chatty"):
			for i := 0; i <= maxStray; i++ {
				fmt.Println("warning: resampling")
			}
		case strings.Contains(req.Path, "stale"):
			reply(map[string]any{"path": "chunk_0.wav", "score": []float64{0.8}, "text_lab": []string{"chunk_0.wav"}})
		case strings.Contains(req.Path, "hang"):
			time.Sleep(time.Minute)
		default:
			reply(map[string]any{
				"path":     req.Path,
				"out_prob": []float64{0.1, 0.8, 0.1},
				"score":    []float64{0.8},
				"index":    []int{1},
				"text_lab": []string{req.Path},
			})
		}
	}
	os.Exit(0)
}

func newTestAdapter(env ...string) *Adapter {
	return &Adapter{
		bin:  os.Args[0],
		args: []string{"-test.run=TestHelperProcess", "--"},
		env:  append([]string{"ACCENTSCAN_WANT_HELPER=1"}, env...),
	}
}

func TestClassify_ReusesHelperAcrossChunks(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	for _, p := range []string{"chunk_0.wav", "chunk_5.wav", "chunk_10.wav"} {
		pred, err := a.Classify(context.Background(), p)
		if err != nil {
			t.Fatalf("classify %s: %v", p, err)
		}
		if len(pred.Labels) != 1 || pred.Labels[0] != p {
			t.Fatalf("unexpected labels for %s: %v", p, pred.Labels)
		}
		if len(pred.Score) != 1 || pred.Score[0] != 0.8 {
			t.Fatalf("unexpected score: %v", pred.Score)
		}
		if len(pred.Index) != 1 || pred.Index[0] != 1 {
			t.Fatalf("unexpected index: %v", pred.Index)
		}
	}
	if !a.running() {
		t.Fatalf("expected helper to stay alive between chunks")
	}
}

func TestClassify_SkipsBannerLines(t *testing.T) {
	a := newTestAdapter("ACCENTSCAN_HELPER_BANNER=1")
	defer a.Close()

	for _, p := range []string{"chunk_0.wav", "chunk_5.wav", "chunk_10.wav"} {
		pred, err := a.Classify(context.Background(), p)
		if err != nil {
			t.Fatalf("classify %s: %v", p, err)
		}
		if len(pred.Labels) != 1 || pred.Labels[0] != p {
			t.Fatalf("reply for %s carried labels %v", p, pred.Labels)
		}
	}
}

func TestClassify_MismatchedReplyStopsHelper(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	_, err := a.Classify(context.Background(), "stale_5.wav")
	if err == nil || !strings.Contains(err.Error(), "out of step") {
		t.Fatalf("expected out of step error, got %v", err)
	}
	if a.running() {
		t.Fatalf("expected helper to be stopped")
	}
	pred, err := a.Classify(context.Background(), "chunk_10.wav")
	if err != nil {
		t.Fatalf("expected restart to succeed: %v", err)
	}
	if pred.Labels[0] != "chunk_10.wav" {
		t.Fatalf("unexpected labels after restart: %v", pred.Labels)
	}
}

func TestClassify_EndlessStrayOutput(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	_, err := a.Classify(context.Background(), "chatty.wav")
	if err == nil || !strings.Contains(err.Error(), "out of step") || !strings.Contains(err.Error(), "warning: resampling") {
		t.Fatalf("expected out of step error with stray output, got %v", err)
	}
	if a.running() {
		t.Fatalf("expected helper to be stopped")
	}
}

func TestClassify_HelperErrorKeepsProcess(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	if _, err := a.Classify(context.Background(), "corrupt.wav"); err == nil || !strings.Contains(err.Error(), "Failed to load audio") {
		t.Fatalf("expected helper error, got %v", err)
	}
	if !a.running() {
		t.Fatalf("a per-file error should not stop the helper")
	}
	if _, err := a.Classify(context.Background(), "chunk_5.wav"); err != nil {
		t.Fatalf("expected next chunk to succeed: %v", err)
	}
}

func TestClassify_GarbageOutput(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	if _, err := a.Classify(context.Background(), "garbage.wav"); err == nil || !strings.Contains(err.Error(), "parse classifier output") {
		t.Fatalf("expected parse error, got %v", err)
	}
	if a.running() {
		t.Fatalf("expected helper to be stopped after unparseable output")
	}
	if _, err := a.Classify(context.Background(), "chunk_5.wav"); err != nil {
		t.Fatalf("expected restart to succeed: %v", err)
	}
}

func TestClassify_RestartsAfterCrash(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	_, err := a.Classify(context.Background(), "crash.wav")
	if err == nil || !strings.Contains(err.Error(), "classifier helper exited") {
		t.Fatalf("expected exit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "segfault in model") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
	if a.running() {
		t.Fatalf("expected crashed helper to be cleared")
	}
	if _, err := a.Classify(context.Background(), "chunk_0.wav"); err != nil {
		t.Fatalf("expected restart to succeed: %v", err)
	}
}

func TestClassify_ContextCancelStopsHelper(t *testing.T) {
	a := newTestAdapter()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := a.Classify(ctx, "hang.wav"); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if a.running() {
		t.Fatalf("expected helper to be stopped after cancellation")
	}
}

func TestClassify_MissingInterpreter(t *testing.T) {
	a := &Adapter{bin: "/nonexistent/python3", args: []string{"x.py"}}
	if _, err := a.Classify(context.Background(), "chunk_0.wav"); err == nil || !strings.Contains(err.Error(), "start classifier helper") {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestNew_MaterializesEmbeddedScript(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	a, err := New("", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.bin != "python3" {
		t.Fatalf("unexpected interpreter %q", a.bin)
	}
	b, err := os.ReadFile(a.args[0])
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if !strings.Contains(string(b), "classify_file") {
		t.Fatalf("unexpected helper script content")
	}
	if a.args[1] != "--source" || a.args[2] != DefaultSource {
		t.Fatalf("unexpected args: %v", a.args)
	}
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	tb := &tailBuffer{max: 5}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defgh"))
	if got := tb.String(); got != "defgh" {
		t.Fatalf("got %q", got)
	}
}
