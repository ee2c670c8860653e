package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/forPelevin/accentscan/internal/ports/adapters/speechbrain"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	s, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", s.FFmpeg)
	assert.Equal(t, "ffprobe", s.FFprobe)
	assert.Equal(t, "exec", s.Classifier.Backend)
	assert.Equal(t, "python3", s.Classifier.Python)
	assert.Equal(t, speechbrain.DefaultSource, s.Classifier.Source)
	assert.Equal(t, 60*time.Second, s.Classifier.Timeout)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
	assert.Equal(t, DefaultAddr, s.Server.Addr)
	assert.NoError(t, s.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	cfgFile := filepath.Join(dir, "accentscan.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
ffmpeg: /opt/ffmpeg
ffprobe: /opt/ffprobe
classifier:
  backend: http
  url: http://file.example:8000
  timeout: 10s
log:
  level: debug
`), 0o644))

	t.Setenv("ACCENTSCAN_CLASSIFIER_URL", "http://env.example:8000")
	t.Setenv("ACCENTSCAN_LOG_FORMAT", "json")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "", "")
	fs.String("addr", "", "")
	require.NoError(t, fs.Parse([]string{"--log-level=warn", "--addr=127.0.0.1:9999"}))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	s, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg", s.FFmpeg, "file over default")
	assert.Equal(t, "/opt/ffprobe", s.FFprobe)
	assert.Equal(t, "http", s.Classifier.Backend)
	assert.Equal(t, "http://env.example:8000", s.Classifier.URL, "env over file")
	assert.Equal(t, 10*time.Second, s.Classifier.Timeout)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "warn", s.Log.Level, "flag over file")
	assert.Equal(t, "127.0.0.1:9999", s.Server.Addr)
	assert.NoError(t, s.Validate())
}

func TestLoad_UnchangedFlagKeepsLowerLayers(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ACCENTSCAN_FFMPEG", "/env/ffmpeg")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("ffmpeg", "ffmpeg", "")
	require.NoError(t, fs.Parse(nil))

	v := New()
	require.NoError(t, BindFlags(v, fs))
	s, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "/env/ffmpeg", s.FFmpeg)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate_CollectsProblems(t *testing.T) {
	s := Settings{
		Classifier: ClassifierSettings{Backend: "grpc"},
		Log:        LogSettings{Level: "trace", Format: "xml"},
	}
	err := s.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"ffmpeg path is empty",
		"ffprobe path is empty",
		"classifier.backend must be exec or http",
		"classifier.timeout must be > 0",
		"log.level must be",
		"log.format must be",
		"server.addr is empty",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_HTTPBackendNeedsURL(t *testing.T) {
	chdir(t, t.TempDir())
	s, err := Load(New(), "")
	require.NoError(t, err)
	s.Classifier.Backend = "http"
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier url is required")
}

func TestYAML_RoundTrip(t *testing.T) {
	chdir(t, t.TempDir())
	s, err := Load(New(), "")
	require.NoError(t, err)

	b, err := s.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "timeout: 1m0s")

	path := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	again, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(b, &raw))
	assert.Contains(t, raw, "classifier")
}
