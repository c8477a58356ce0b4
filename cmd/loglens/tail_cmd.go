package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loglens/internal/config"
	"loglens/internal/logindex"
)

func handleTail(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	jsonMode := fs.Bool("json", false, "Print parsed records as JSON instead of raw payloads")
	fs.Usage = func() {
		fmt.Println("Usage: loglens tail [--json] <session|path>")
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

	tailer := logindex.NewTailer(path, time.Duration(cfg.Tail.PollIntervalMS)*time.Millisecond)
	go tailer.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case rec, ok := <-tailer.Records():
			if !ok {
				select {
				case err := <-tailer.Errors():
					fatalf("Tail stopped: %v", err)
				default:
				}
				return
			}
			if *jsonMode {
				_ = enc.Encode(rec)
			} else {
				os.Stdout.Write(rec.Payload)
				fmt.Println()
			}
		case <-sigCh:
			tailer.Stop()
			// Drain until the tailer closes its stream.
			for range tailer.Records() {
			}
			return
		}
	}
}
