// Package main provides a CLI for inspecting and repairing the session
// ledger and reading the local telemetry log.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	ledgerctlcmd "github.com/louisbranch/focusgate/internal/cmd/ledgerctl"
)

func main() {
	cfg, err := ledgerctlcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LEDGERCTL] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ledgerctlcmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("ledgerctl: %v", err)
	}
}
