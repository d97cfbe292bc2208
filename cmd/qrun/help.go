package main

import "fmt"

func printUsage() {
	fmt.Print(`qrun - run the lines of a text file as commands, N at a time

Usage:
  qrun run [flags] [backlog]
  qrun [flags]                 Same as "qrun run"
  qrun history [flags]         Show recent runs from the run ledger
  qrun version [--json]

Each line of the backlog is one command. Lines are removed from the file as
they are dispatched and appended to qrun_history.log next to it. Create
.<name>.swp beside the backlog to pause dispatch while editing it.

Run "qrun run --help" for all run flags.
`)
}

func printRunHelp() {
	fmt.Print(`Usage: qrun run [flags] [backlog]

Flags:
  -b, --backlog PATH     Backlog file, or a directory watched for *.bl files
  -j, --jobs N           Number of worker slots (default 1)
  -d, --daemon           Keep polling after a backlog drains (alias --demon)
  -o, --output PATH      Append task stdout/stderr to PATH instead of the log
      --config PATH      YAML config file (default: $QRUN_CONFIG,
                         ~/.config/qrun/config.yaml, ./qrun.yaml)
      --tick DURATION    Interval between ticks (default 1s)
      --display MODE     auto, plain, tui or none (default auto)
      --log-level LEVEL  debug, info, warn or error (default info)
      --log-format FMT   json or text (default json)
      --state PATH       Record every run in a SQLite ledger at PATH
      --api              Serve /healthz, /slots, /runs and /events
      --api-listen ADDR  API listen address (default 127.0.0.1:8787)

Ctrl+C stops dispatching; qrun exits once running tasks finish. Tasks still
in the backlog stay there for the next run.
`)
}
