package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forPelevin/accentscan/internal/config"
	"github.com/forPelevin/accentscan/internal/logging"
	"github.com/forPelevin/accentscan/internal/pipeline"
	"github.com/forPelevin/accentscan/internal/ports"
	"github.com/forPelevin/accentscan/internal/ports/adapters/player"
	"github.com/forPelevin/accentscan/internal/usecase"
)

// runFunc runs one analysis; pipeline.Run outside tests.
type runFunc func(ctx context.Context, cfg pipeline.Config, obs usecase.Observer) (usecase.Result, error)

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	v        *viper.Viper
	settings config.Settings
	log      *logrus.Logger

	in     io.Reader
	run    runFunc
	player ports.Player

	// releaseDelay holds chunk files after interactive playback.
	releaseDelay time.Duration
}

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	a := &app{v: config.New(), in: os.Stdin, run: pipeline.Run, player: player.New(), releaseDelay: playbackGrace}
	root := newRootCmd(a)
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "accentscan",
		Short:         "Predict the English accent of each time window of a video's audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, configFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: ./accentscan.yaml if present)")
	pf.String("ffmpeg", "ffmpeg", "ffmpeg binary")
	pf.String("ffprobe", "ffprobe", "ffprobe binary")
	pf.String("backend", "exec", "Classifier backend: exec or http")
	pf.String("python", "python3", "Python interpreter for the exec backend")
	pf.String("script", "", "Classifier helper script (default: embedded)")
	pf.String("model", "", "Pretrained model source for the exec backend")
	pf.String("classifier-url", "", "Inference service base URL for the http backend")
	pf.Duration("classifier-timeout", time.Minute, "Per-chunk timeout for the http backend")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("log-file", "", "Write logs to a rotating file instead of stderr")

	// Hidden tuning flags (internal)
	_ = pf.MarkHidden("script")
	_ = pf.MarkHidden("python")

	root.AddCommand(
		newAnalyzeCmd(a),
		newServeCmd(a),
		newPlayCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command, configFile string) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	s, err := config.Load(a.v, configFile)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	l, err := logging.New(logging.Options{
		Level:  s.Log.Level,
		Format: s.Log.Format,
		File:   s.Log.File,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.settings, a.log = s, l
	return nil
}

// pipelineConfig maps settings onto a run config; callers fill in the input.
func (a *app) pipelineConfig() pipeline.Config {
	s := a.settings
	return pipeline.Config{
		Logger:            a.log,
		FFmpegPath:        s.FFmpeg,
		FFprobePath:       s.FFprobe,
		Backend:           s.Classifier.Backend,
		Python:            s.Classifier.Python,
		Script:            s.Classifier.Script,
		Source:            s.Classifier.Source,
		ClassifierURL:     s.Classifier.URL,
		ClassifierTimeout: s.Classifier.Timeout,
	}
}
