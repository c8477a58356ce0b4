package main

import (
	"fmt"
	"os"

	"loglens/internal/config"
	"loglens/internal/logging"
)

const Version = "0.3.0"

func main() {
	cfg, cfgErr := config.Load()

	initLogging(cfg)
	defer logging.Shutdown()

	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}

	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("loglens v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "sessions", "ls":
		handleSessions(cfg, args[1:])
	case "index":
		handleIndexCmd(cfg, args[1:])
	case "read":
		handleRead(cfg, args[1:])
	case "tail":
		handleTail(cfg, args[1:])
	case "serve":
		handleServe(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func initLogging(cfg config.Config) {
	logCfg := logging.Config{
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Compress:   cfg.Logs.GetCompress(),
	}
	if os.Getenv("LOGLENS_DEBUG") != "" {
		logCfg.Debug = true
		if dir, err := config.Dir(); err == nil {
			logCfg.LogDir = dir
		}
	}
	logging.Init(logCfg)
}

func printHelp() {
	fmt.Println(`loglens - session log indexer and viewer

Usage: loglens <command> [options]

Commands:
  sessions              List sessions in the sessions directory
  index <session|path>  Build (or load) the line index for a log
  read <session|path>   Read a line range from a log
  tail <session|path>   Follow a log, printing new records
  serve                 Start the HTTP/WebSocket API server
  version               Print version
  help                  Show this help

Environment:
  LOGLENS_DIR     Config/data directory (default ~/.loglens)
  LOGLENS_DEBUG   Write debug logs to the loglens directory

Config: ~/.loglens/config.toml ([sessions], [cache], [tail], [server], [logs])`)
}
