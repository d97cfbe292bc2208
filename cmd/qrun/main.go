package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/mattjoyce/qrun/internal/api"
	"github.com/mattjoyce/qrun/internal/backlog"
	"github.com/mattjoyce/qrun/internal/config"
	"github.com/mattjoyce/qrun/internal/events"
	"github.com/mattjoyce/qrun/internal/ledger"
	"github.com/mattjoyce/qrun/internal/lock"
	"github.com/mattjoyce/qrun/internal/log"
	"github.com/mattjoyce/qrun/internal/pool"
	"github.com/mattjoyce/qrun/internal/queue"
	"github.com/mattjoyce/qrun/internal/runner"
	"github.com/mattjoyce/qrun/internal/status"
	"github.com/mattjoyce/qrun/internal/storage"
	"github.com/mattjoyce/qrun/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		return runRun(args)
	case "history":
		return runHistory(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	}

	// Bare flags run the backlog: `qrun -b jobs.bl -j 4`.
	if strings.HasPrefix(cmd, "-") {
		return runRun(cliArgs)
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
	printUsage()
	return 1
}

// runFlags are the command-line overrides for config values.
type runFlags struct {
	configPath string
	backlog    string
	jobs       int
	daemon     bool
	output     string
	tick       time.Duration
	display    string
	logLevel   string
	logFormat  string
	statePath  string
	api        bool
	apiListen  string

	set map[string]bool
}

func (f *runFlags) isSet(names ...string) bool {
	for _, n := range names {
		if f.set[n] {
			return true
		}
	}
	return false
}

func parseRunFlags(args []string) (*runFlags, error) {
	f := &runFlags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.Usage = printRunHelp

	fs.StringVar(&f.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&f.backlog, "backlog", "", "Backlog file or directory of *.bl files")
	fs.StringVar(&f.backlog, "b", "", "Shorthand for --backlog")
	fs.IntVar(&f.jobs, "jobs", 1, "Number of worker slots")
	fs.IntVar(&f.jobs, "j", 1, "Shorthand for --jobs")
	fs.BoolVar(&f.daemon, "daemon", false, "Keep polling for new backlogs after draining")
	fs.BoolVar(&f.daemon, "demon", false, "Alias for --daemon")
	fs.BoolVar(&f.daemon, "d", false, "Shorthand for --daemon")
	fs.StringVar(&f.output, "output", "", "Append task stdout/stderr to this file")
	fs.StringVar(&f.output, "o", "", "Shorthand for --output")
	fs.DurationVar(&f.tick, "tick", time.Second, "Interval between reconciliation ticks")
	fs.StringVar(&f.display, "display", "", "Status display: auto, plain, tui or none")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: json or text")
	fs.StringVar(&f.statePath, "state", "", "SQLite run ledger path")
	fs.BoolVar(&f.api, "api", false, "Serve the read-only status API")
	fs.StringVar(&f.apiListen, "api-listen", "", "Status API listen address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	switch fs.NArg() {
	case 0:
	case 1:
		if f.isSet("backlog", "b") {
			return nil, fmt.Errorf("backlog given twice: flag and argument %q", fs.Arg(0))
		}
		f.backlog = fs.Arg(0)
		f.set["backlog"] = true
	default:
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args()[1:], " "))
	}
	return f, nil
}

// loadRunConfig loads the config file, if any, and applies flag overrides.
func loadRunConfig(f *runFlags) (*config.Config, string, error) {
	path := f.configPath
	if path == "" {
		discovered, err := config.DiscoverConfigFile()
		if err != nil {
			return nil, "", fmt.Errorf("discover config: %w", err)
		}
		path = discovered
	}

	cfg := config.Defaults()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	}

	if f.isSet("backlog", "b") {
		cfg.Backlog = f.backlog
	}
	if f.isSet("jobs", "j") {
		cfg.Jobs = f.jobs
	}
	if f.isSet("daemon", "demon", "d") {
		cfg.Daemon = f.daemon
	}
	if f.isSet("output", "o") {
		cfg.Output = f.output
	}
	if f.isSet("tick") {
		cfg.TickInterval = f.tick
	}
	if f.isSet("display") {
		cfg.Display = f.display
	}
	if f.isSet("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.isSet("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if f.isSet("state") {
		cfg.State.Path = f.statePath
	}
	if f.isSet("api") {
		cfg.API.Enabled = f.api
	}
	if f.isSet("api-listen") {
		cfg.API.Listen = f.apiListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

// resolveDisplay turns "auto" into a concrete mode: the live table when
// stdout is a terminal, nothing otherwise.
func resolveDisplay(mode string, stdout *os.File) string {
	if mode != config.DisplayAuto {
		return mode
	}
	fd := stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return config.DisplayPlain
	}
	return config.DisplayNone
}

// logWriter keeps logs away from whatever owns stdout.
func logWriter(display string) io.Writer {
	switch display {
	case config.DisplayPlain:
		return os.Stderr
	case config.DisplayTUI:
		if isatty.IsTerminal(os.Stderr.Fd()) {
			// The dashboard owns the terminal; its event panel replaces the log.
			return io.Discard
		}
		return os.Stderr
	default:
		return os.Stdout
	}
}

func runRun(args []string) int {
	flags, err := parseRunFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, configPath, err := loadRunConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	display := resolveDisplay(cfg.Display, os.Stdout)
	log.Setup(cfg.Log.Level, cfg.Log.Format, logWriter(display))
	logger := log.WithComponent("main")
	logger.Info("qrun starting", "version", version, "config", configPath, "backlog", cfg.Backlog, "jobs", cfg.Jobs)

	source, err := backlog.NewSource(cfg.Backlog, backlog.Options{
		HistoryFile: cfg.HistoryFile,
		Extension:   cfg.Extension,
	})
	if err != nil {
		var cfgErr *backlog.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Error("nothing to run", "error", err)
			return 0
		}
		logger.Error("failed to open backlog", "error", err)
		return 1
	}

	if err := storage.CheckLocal(source.Dir()); err != nil {
		logger.Warn("backlog is on a network filesystem; the instance lock may not hold", "dir", source.Dir(), "error", err)
	}

	pidLockPath := lock.PathFor(source.Dir())
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer func() { _ = pidLock.Release() }()
	logger.Debug("acquired PID lock", "path", pidLockPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := uuid.NewString()
	hub := events.NewHub(256)

	var recorder runner.Recorder
	var runs api.RunLister
	if cfg.State.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			logger.Error("failed to open run ledger", "path", cfg.State.Path, "error", err)
			return 1
		}
		defer db.Close()

		l := ledger.New(db)
		if n, err := l.RecoverOrphans(ctx, session); err != nil {
			logger.Warn("failed to recover orphaned runs", "error", err)
		} else if n > 0 {
			logger.Warn("marked runs from an earlier session as abandoned", "count", n)
		}
		recorder = l
		runs = l
		logger.Info("run ledger opened", "path", cfg.State.Path, "session_id", session)
	}

	p, err := pool.New(cfg.Jobs, &pool.ProcessExecutor{OutputPath: cfg.Output})
	if err != nil {
		logger.Error("failed to create worker pool", "error", err)
		return 1
	}

	board := &status.Board{}
	reporters := status.Multi{board}
	var feed *tui.Feed
	switch display {
	case config.DisplayPlain:
		reporters = append(reporters, status.NewLive(os.Stdout))
	case config.DisplayTUI:
		feed = tui.NewFeed()
		reporters = append(reporters, feed)
	}

	r, err := runner.New(source, p, runner.Options{
		Interval:  cfg.TickInterval,
		Daemon:    cfg.Daemon,
		SessionID: session,
		Reporter:  reporters,
		Hub:       hub,
		Recorder:  recorder,
	})
	if err != nil {
		logger.Error("failed to create runner", "error", err)
		return 1
	}

	// The API outlives the signal so it keeps reporting while slots drain.
	apiCtx, stopAPI := context.WithCancel(context.Background())
	apiDone := make(chan struct{})
	if cfg.API.Enabled {
		apiServer := api.New(api.Config{Listen: cfg.API.Listen, Backlog: cfg.Backlog}, board, runs, hub, log.WithComponent("api"))
		go func() {
			defer close(apiDone)
			if err := apiServer.Start(apiCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("API server failed", "error", err)
			}
		}()
	} else {
		close(apiDone)
	}
	defer func() {
		stopAPI()
		<-apiDone
	}()

	var runErr error
	if display == config.DisplayTUI {
		runErr = runWithDashboard(ctx, r, hub, feed, cfg.Backlog, logger)
	} else {
		runErr = r.Run(ctx)
	}

	return exitCode(runErr, logger)
}

func runWithDashboard(ctx context.Context, r *runner.Runner, hub *events.Hub, feed *tui.Feed, backlogPath string, logger *slog.Logger) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	evCh, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = r.Run(runCtx)
	}()

	prog := tea.NewProgram(tui.New(tui.Config{
		Backlog:   backlogPath,
		Snapshots: feed.C(),
		Events:    evCh,
		Done:      done,
		Cancel:    cancelRun,
	}))
	if _, err := prog.Run(); err != nil {
		logger.Error("dashboard failed, draining", "error", err)
		cancelRun()
	}

	<-done
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "qrun: %v\n", runErr)
	}
	return runErr
}

func exitCode(err error, logger *slog.Logger) int {
	if err == nil {
		logger.Info("qrun stopped")
		return 0
	}

	var cfgErr *backlog.ConfigError
	if errors.As(err, &cfgErr) {
		logger.Error("backlog went away, stopping", "error", err)
		return 0
	}
	var ioErr *queue.IOError
	if errors.As(err, &ioErr) {
		logger.Error("backlog I/O failed", "op", ioErr.Op, "path", ioErr.Path, "error", ioErr.Err)
		return 1
	}
	logger.Error("runner failed", "error", err)
	return 1
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	statePath := fs.String("state", "", "SQLite run ledger path")
	limit := fs.Int("limit", 20, "Number of runs to show")
	jsonOut := fs.Bool("json", false, "Output runs as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := *statePath
	if path == "" {
		cfgPath := *configPath
		if cfgPath == "" {
			discovered, err := config.DiscoverConfigFile()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
				return 1
			}
			cfgPath = discovered
		}
		if cfgPath != "" {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
				return 1
			}
			path = cfg.State.Path
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "No run ledger configured. Use --state or set state.path in the config file.")
		return 1
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "Run ledger not found: %s\n", path)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open run ledger: %v\n", err)
		return 1
	}
	defer db.Close()

	l := ledger.New(db)
	runs, err := l.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read runs: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render runs JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	counts, err := l.CountByStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count runs: %v\n", err)
		return 1
	}
	fmt.Print(renderHistory(runs, counts))
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: qrun version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("qrun %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = commit[:min(len(commit), 12)]
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}
