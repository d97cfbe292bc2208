package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file on top of Defaults. Relative paths inside the
// file are resolved against the file's directory. The result is not validated;
// call Validate once command-line overrides have been applied.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	cfg.Backlog = resolvePath(baseDir, cfg.Backlog)
	cfg.Output = resolvePath(baseDir, cfg.Output)
	cfg.State.Path = resolvePath(baseDir, cfg.State.Path)

	return cfg, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// interpolateEnv replaces ${VAR} with the value of the environment variable.
// Unset variables are left in place so Validate can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backlog) == "" {
		return fmt.Errorf("backlog is required (file or directory)")
	}
	for name, v := range map[string]string{"backlog": c.Backlog, "output": c.Output, "state.path": c.State.Path} {
		if m := envVarPattern.FindStringSubmatch(v); m != nil {
			return fmt.Errorf("%s: environment variable ${%s} is not set", name, m[1])
		}
	}

	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive (got %d)", c.Jobs)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.HistoryFile == "" || strings.ContainsRune(c.HistoryFile, filepath.Separator) {
		return fmt.Errorf("history_file must be a plain file name (got %q)", c.HistoryFile)
	}
	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		return fmt.Errorf("extension must start with a dot (got %q)", c.Extension)
	}

	switch c.Display {
	case DisplayAuto, DisplayPlain, DisplayTUI, DisplayNone:
	default:
		return fmt.Errorf("display must be one of: auto, plain, tui, none (got %q)", c.Display)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api.enabled is true")
	}
	return nil
}
