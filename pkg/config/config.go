package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const envPrefix = "VOICEBOOST_"

type Config struct {
	Server      ServerConfig     `toml:"server"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Transcoder  TranscoderConfig `toml:"transcoder"`
	Model       ModelConfig      `toml:"model"`
	Log         LogConfig        `toml:"log"`
	StoragePath string           `toml:"storage_path"`
}

type ServerConfig struct {
	Address      string   `toml:"address"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type PipelineConfig struct {
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	SampleRate     int      `toml:"sample_rate"`
	EnhanceTimeout Duration `toml:"enhance_timeout"`
	Workers        int      `toml:"workers"`
	QueueSize      int      `toml:"queue_size"`
	ResultTTL      Duration `toml:"result_ttl"`
	WorkspaceRoot  string   `toml:"workspace_root"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "5m")
// in the config file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type TranscoderConfig struct {
	Binary string `toml:"binary"`
}

// ModelConfig selects how the VoiceFixer helper is launched. UseCUDA is
// carried so a config file can name it, but Validate rejects true: restoration
// always runs on the CPU.
type ModelConfig struct {
	Python  string `toml:"python"`
	Script  string `toml:"script"`
	Mode    int    `toml:"mode"`
	UseCUDA bool   `toml:"use_cuda"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{60 * time.Second},
			WriteTimeout: Duration{10 * time.Minute},
		},
		Pipeline: PipelineConfig{
			MaxUploadBytes: 100 * 1024 * 1024,
			SampleRate:     44100,
			EnhanceTimeout: Duration{300 * time.Second},
			Workers:        1,
			QueueSize:      16,
			ResultTTL:      Duration{30 * time.Minute},
		},
		Transcoder: TranscoderConfig{
			Binary: "ffmpeg",
		},
		Model: ModelConfig{
			Python: "python3",
			Mode:   2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		StoragePath: "./data",
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// VOICEBOOST_CONFIG, a .env file in the working directory and VOICEBOOST_*
// environment variables, in that order.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || err != nil {
			return
		}
		n, perr := strconv.Atoi(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("%s%s: %w", envPrefix, key, perr)
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || err != nil {
			return
		}
		d, perr := time.ParseDuration(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("%s%s: %w", envPrefix, key, perr)
			return
		}
		*dst = d
	}

	str("ADDRESS", &c.Server.Address)
	dur("READ_TIMEOUT", &c.Server.ReadTimeout.Duration)
	dur("WRITE_TIMEOUT", &c.Server.WriteTimeout.Duration)

	maxMB := -1
	num("MAX_UPLOAD_MB", &maxMB)
	if maxMB >= 0 {
		c.Pipeline.MaxUploadBytes = int64(maxMB) * 1024 * 1024
	}
	num("SAMPLE_RATE", &c.Pipeline.SampleRate)
	dur("ENHANCE_TIMEOUT", &c.Pipeline.EnhanceTimeout.Duration)
	num("WORKERS", &c.Pipeline.Workers)
	num("QUEUE_SIZE", &c.Pipeline.QueueSize)
	dur("RESULT_TTL", &c.Pipeline.ResultTTL.Duration)
	str("WORKSPACE_ROOT", &c.Pipeline.WorkspaceRoot)

	str("FFMPEG", &c.Transcoder.Binary)
	str("PYTHON", &c.Model.Python)
	str("MODEL_SCRIPT", &c.Model.Script)
	num("MODEL_MODE", &c.Model.Mode)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORAGE_PATH", &c.StoragePath)

	return err
}

func (c *Config) Validate() error {
	switch {
	case c.Server.Address == "":
		return fmt.Errorf("server address is required")
	case c.Pipeline.MaxUploadBytes <= 0:
		return fmt.Errorf("max upload size must be positive")
	case c.Pipeline.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive")
	case c.Pipeline.EnhanceTimeout.Duration <= 0:
		return fmt.Errorf("enhance timeout must be positive")
	case c.Pipeline.Workers <= 0:
		return fmt.Errorf("workers must be positive")
	case c.Pipeline.QueueSize <= 0:
		return fmt.Errorf("queue size must be positive")
	case c.Pipeline.ResultTTL.Duration <= 0:
		return fmt.Errorf("result ttl must be positive")
	case c.Transcoder.Binary == "":
		return fmt.Errorf("transcoder binary is required")
	case c.Model.Python == "":
		return fmt.Errorf("python interpreter is required")
	case c.Model.Mode < 0 || c.Model.Mode > 2:
		return fmt.Errorf("model mode must be 0, 1 or 2, got %d", c.Model.Mode)
	case c.Model.UseCUDA:
		return fmt.Errorf("model must run on CPU")
	case c.StoragePath == "":
		return fmt.Errorf("storage path is required")
	}
	return nil
}

// MaxUploadMB is the upload cap in whole megabytes, as shown to users.
func (p PipelineConfig) MaxUploadMB() int64 {
	return p.MaxUploadBytes / (1024 * 1024)
}
