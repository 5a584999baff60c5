package config

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath mirrors the hidden-dotfile convention the teacher's
// aliasing package uses for its own YAML config.
const DefaultConfigPath = ".kestrel.yaml"

// ConfigPathEnvVar names the environment variable that overrides
// DefaultConfigPath.
const ConfigPathEnvVar = "KESTREL_CONFIG_PATH"

// StixQuery holds the spec.md §6 stixquery.* configuration keys.
type StixQuery struct {
	TimerangeStartOffset int  `yaml:"timerange_start_offset"`
	TimerangeStopOffset  int  `yaml:"timerange_stop_offset"`
	SupportID            bool `yaml:"support_id"`
}

// Prefetch holds the spec.md §6 prefetch.* configuration keys: the two
// per-command toggles plus the process-identity scoring weights and
// threshold used by internal/prefetch's fine-grained filter.
type Prefetch struct {
	Get    bool `yaml:"get"`
	Find   bool `yaml:"find"`
	Weight struct {
		PID         float64 `yaml:"pid"`
		Name        float64 `yaml:"name"`
		CommandLine float64 `yaml:"command_line"`
		ParentPID   float64 `yaml:"parent_ref_pid"`
		Created     float64 `yaml:"created"`
	} `yaml:"weight"`
	Threshold float64 `yaml:"threshold"`
}

// ExecutionTracking holds DISP _'s rendering overrides (SPEC_FULL.md
// supplemented feature 6 / DESIGN.md's Open Question 2 decision).
type ExecutionTracking struct {
	HTMLTemplate string `yaml:"html_template"`
}

// Session is the full session configuration file shape.
type Session struct {
	StixQuery         StixQuery         `yaml:"stixquery"`
	Prefetch          Prefetch          `yaml:"prefetch"`
	Debug             bool              `yaml:"debug"`
	ExecutionTracking ExecutionTracking `yaml:"execution_tracking"`
}

// defaultSession mirrors the defaults a session runs with when no
// configuration file is present at all.
func defaultSession() Session {
	s := Session{}
	s.StixQuery.TimerangeStartOffset = -300
	s.StixQuery.TimerangeStopOffset = 300
	s.Prefetch.Get = true
	s.Prefetch.Find = true
	s.Prefetch.Weight.PID = 0.3
	s.Prefetch.Weight.Name = 0.3
	s.Prefetch.Weight.CommandLine = 0.2
	s.Prefetch.Weight.ParentPID = 0.1
	s.Prefetch.Weight.Created = 0.1
	s.Prefetch.Threshold = 0.6

	return s
}

// LoadSession loads the session configuration file at path, same graceful
// degradation as the teacher's aliasing.LoadConfig: a missing file or
// invalid YAML logs and falls back to defaults rather than failing session
// startup.
func LoadSession(path string) Session {
	cfg := defaultSession()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read session config file, continuing with defaults",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}

		return cfg
	}

	if len(data) == 0 {
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		slog.Warn("failed to parse session config file, continuing with defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return defaultSession()
	}

	return cfg
}

// LoadSessionFromEnv loads the session config from the path named by
// ConfigPathEnvVar, falling back to DefaultConfigPath.
func LoadSessionFromEnv() Session {
	path := GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadSession(path)
}
