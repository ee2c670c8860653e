// Package config merges flags, environment, an optional YAML file and defaults
// into Settings. Precedence, highest first: flags, ACCENTSCAN_* env, file,
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/forPelevin/accentscan/internal/ports/adapters/inferhttp"
	"github.com/forPelevin/accentscan/internal/ports/adapters/speechbrain"
)

const (
	EnvPrefix   = "ACCENTSCAN"
	DefaultName = "accentscan"
	DefaultAddr = ":8080"
)

type Settings struct {
	FFmpeg     string             `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	FFprobe    string             `mapstructure:"ffprobe" yaml:"ffprobe"`
	Classifier ClassifierSettings `mapstructure:"classifier" yaml:"classifier"`
	Log        LogSettings        `mapstructure:"log" yaml:"log"`
	Server     ServerSettings     `mapstructure:"server" yaml:"server"`
}

type ClassifierSettings struct {
	Backend string        `mapstructure:"backend" yaml:"backend"` // exec, http
	Python  string        `mapstructure:"python" yaml:"python"`
	Script  string        `mapstructure:"script" yaml:"script,omitempty"`
	Source  string        `mapstructure:"source" yaml:"source"`
	URL     string        `mapstructure:"url" yaml:"url,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"ffmpeg":             "ffmpeg",
	"ffprobe":            "ffprobe",
	"backend":            "classifier.backend",
	"python":             "classifier.python",
	"script":             "classifier.script",
	"model":              "classifier.source",
	"classifier-url":     "classifier.url",
	"classifier-timeout": "classifier.timeout",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"log-file":           "log.file",
	"addr":               "server.addr",
}

// New returns a viper instance with defaults and env binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("ffmpeg", "ffmpeg")
	v.SetDefault("ffprobe", "ffprobe")
	v.SetDefault("classifier.backend", "exec")
	v.SetDefault("classifier.python", "python3")
	v.SetDefault("classifier.script", "")
	v.SetDefault("classifier.source", speechbrain.DefaultSource)
	v.SetDefault("classifier.url", "")
	v.SetDefault("classifier.timeout", inferhttp.DefaultTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("server.addr", DefaultAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every known flag present in fs.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads file (or accentscan.yaml from the working directory when file is
// empty and one exists) and decodes the merged settings.
func Load(v *viper.Viper, file string) (Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(DefaultName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// Validate reports every problem at once.
func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.FFmpeg) == "" {
		problems = append(problems, "ffmpeg path is empty")
	}
	if strings.TrimSpace(s.FFprobe) == "" {
		problems = append(problems, "ffprobe path is empty")
	}
	switch strings.ToLower(s.Classifier.Backend) {
	case "exec":
		if strings.TrimSpace(s.Classifier.Python) == "" {
			problems = append(problems, "classifier.python is empty")
		}
	case "http":
		if err := inferhttp.ValidateBaseURL(s.Classifier.URL); err != nil {
			problems = append(problems, err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("classifier.backend must be exec or http (got %q)", s.Classifier.Backend))
	}
	if s.Classifier.Timeout <= 0 {
		problems = append(problems, "classifier.timeout must be > 0")
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level must be debug, info, warn or error (got %q)", s.Log.Level))
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format must be text or json (got %q)", s.Log.Format))
	}
	if strings.TrimSpace(s.Server.Addr) == "" {
		problems = append(problems, "server.addr is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// YAML renders the effective settings in config-file form.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}
