package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"loglens/internal/config"
	"loglens/internal/store"
	"loglens/internal/web"
)

func handleServe(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", cfg.Server.ListenAddr, "Listen address")
	token := fs.String("token", cfg.Server.Token, "Bearer token for API/WS access")
	dir := fs.String("dir", cfg.Sessions.Dir, "Sessions directory")
	fs.Usage = func() {
		fmt.Println("Usage: loglens serve [--listen addr] [--token t] [--dir path]")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() > 0 {
		fatalf("Unexpected arguments: %v", fs.Args())
	}

	manager, closeDB := openIndexManager(cfg)
	defer closeDB()

	server := web.NewServer(web.Config{
		ListenAddr:      *listen,
		Token:           *token,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		TailPoll:        time.Duration(cfg.Tail.PollIntervalMS) * time.Millisecond,
	}, store.New(*dir), manager)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("loglens v%s serving %s on http://%s\n", Version, *dir, server.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fatalf("Server error: %v", err)
	}
}
