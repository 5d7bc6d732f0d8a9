package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	listctlcmd "github.com/louisbranch/daylists/internal/cmd/listctl"
)

func main() {
	cfg, err := listctlcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LISTCTL] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := listctlcmd.Run(ctx, cfg, flag.CommandLine.Args(), os.Stdout); err != nil {
		log.Fatalf("listctl: %v", err)
	}
}
