// Package main replays a YAML-scripted trigger sequence against a live
// coordinator for exploring session lifecycle behavior.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	scenariocmd "github.com/louisbranch/focusgate/internal/cmd/scenario"
)

func main() {
	cfg, err := scenariocmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SCENARIO] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scenariocmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("scenario: %v", err)
	}
}
