package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"loglens/internal/config"
	"loglens/internal/store"
)

func handleSessions(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	jsonMode := fs.Bool("json", false, "Output as JSON")
	dir := fs.String("dir", cfg.Sessions.Dir, "Sessions directory")
	fs.Usage = func() {
		fmt.Println("Usage: loglens sessions [--json] [--dir <path>]")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	sessions, err := store.New(*dir).List()
	if err != nil {
		fatalf("Failed to list sessions: %v", err)
	}

	if *jsonMode {
		_ = json.NewEncoder(os.Stdout).Encode(sessions)
		return
	}

	if len(sessions) == 0 {
		fmt.Printf("No sessions in %s\n", *dir)
		return
	}

	fmt.Printf("%-38s %10s  %s\n", "SESSION", "SIZE", "MODIFIED")
	for _, s := range sessions {
		fmt.Printf("%-38s %10d  %s\n", s.ID, s.Size, s.Modified.Format("2006-01-02 15:04:05"))
	}
}
