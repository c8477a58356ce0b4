package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"loglens/internal/config"
)

func handleIndexCmd(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	jsonMode := fs.Bool("json", false, "Output index entries as JSON")
	rebuild := fs.Bool("rebuild", false, "Discard any cached index and rescan")
	fs.Usage = func() {
		fmt.Println("Usage: loglens index [--json] [--rebuild] <session|path>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	path, err := resolveTarget(cfg, fs.Arg(0))
	if err != nil {
		fatalf("Failed to resolve %q: %v", fs.Arg(0), err)
	}

	manager, closeDB := openIndexManager(cfg)
	defer closeDB()

	ix, err := manager.Get(path)
	if err == nil && *rebuild {
		ix, err = manager.Rebuild(path)
	}
	if err != nil {
		fatalf("Failed to index %s: %v", path, err)
	}

	if *jsonMode {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
			"path":          ix.Path(),
			"state":         ix.State().String(),
			"total_lines":   ix.Len(),
			"indexed_bytes": ix.IndexedBytes(),
			"entries":       ix.Entries(),
		})
		return
	}

	fmt.Printf("%s\n", ix.Path())
	fmt.Printf("  state:   %s\n", ix.State())
	fmt.Printf("  lines:   %d\n", ix.Len())
	fmt.Printf("  indexed: %d bytes\n", ix.IndexedBytes())
}
