package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	storecmd "github.com/louisbranch/daylists/internal/cmd/store"
)

func main() {
	cfg, err := storecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[STORE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := storecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
