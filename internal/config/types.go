package config

import "time"

// Display modes for the live status view.
const (
	DisplayAuto  = "auto"
	DisplayPlain = "plain"
	DisplayTUI   = "tui"
	DisplayNone  = "none"
)

// Config represents the complete qrun configuration.
type Config struct {
	// Backlog is a task file or a directory watched for *.bl files.
	Backlog string `yaml:"backlog"`
	// Jobs is the number of worker slots.
	Jobs int `yaml:"jobs"`
	// Daemon keeps polling for new backlogs instead of exiting once drained.
	Daemon bool `yaml:"daemon"`
	// Output, when set, receives the stdout/stderr of every task.
	Output       string        `yaml:"output,omitempty"`
	TickInterval time.Duration `yaml:"tick_interval"`
	HistoryFile  string        `yaml:"history_file"`
	Extension    string        `yaml:"extension"`
	Display      string        `yaml:"display"`
	Log          LogConfig     `yaml:"log"`
	State        StateConfig   `yaml:"state"`
	API          APIConfig     `yaml:"api"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StateConfig defines the run ledger. An empty path disables it.
type StateConfig struct {
	Path string `yaml:"path,omitempty"`
}

// APIConfig defines the read-only status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Defaults returns a Config with every optional setting filled in.
func Defaults() *Config {
	return &Config{
		Jobs:         1,
		TickInterval: time.Second,
		HistoryFile:  "qrun_history.log",
		Extension:    ".bl",
		Display:      DisplayAuto,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8787",
		},
	}
}
