// Package main runs the terminal game client against a web BFF.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	playcmd "github.com/textadventure/web/internal/cmd/play"
	"github.com/textadventure/web/internal/platform/config"
)

func main() {
	cfg, err := playcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("play: %v", err)
	}
	log.SetPrefix("[PLAY] ")
	log.SetOutput(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := playcmd.Run(ctx, cfg, playcmd.IO{In: os.Stdin, Out: os.Stdout}); err != nil {
		config.Exitf("play: %v", err)
	}
}
