package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"loglens/internal/config"
	"loglens/internal/indexdb"
	"loglens/internal/logging"
	"loglens/internal/logindex"
	"loglens/internal/msgcache"
	"loglens/internal/store"
)

var cliLog = logging.ForComponent(logging.CompCLI)

// resolveTarget maps a CLI argument to a log file path. A path that exists
// on disk wins; anything else is treated as a session id in the sessions
// directory.
func resolveTarget(cfg config.Config, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}
	return store.New(cfg.Sessions.Dir).Resolve(arg)
}

// openIndexManager builds an index manager backed by the SQLite persistence
// cache. Persistence failures degrade to in-memory indexing rather than
// blocking the command.
func openIndexManager(cfg config.Config) (*logindex.Manager, func()) {
	dir, err := config.Dir()
	if err != nil {
		return logindex.NewManager(nil), func() {}
	}

	db, err := indexdb.Open(filepath.Join(dir, "index.db"))
	if err != nil {
		cliLog.Warn("index_db_unavailable", slog.String("error", err.Error()))
		return logindex.NewManager(nil), func() {}
	}
	if err := db.Migrate(); err != nil {
		cliLog.Warn("index_db_migrate_failed", slog.String("error", err.Error()))
		db.Close()
		return logindex.NewManager(nil), func() {}
	}

	return logindex.NewManager(db), func() { _ = db.Close() }
}

// cacheConfig maps the user config onto message-window tuning.
func cacheConfig(cfg config.Config) msgcache.Config {
	return msgcache.Config{
		WindowSize:       cfg.Cache.WindowSize,
		PreloadThreshold: cfg.Cache.GetPreloadThreshold(),
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	logging.Shutdown()
	os.Exit(1)
}
