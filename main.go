// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"soundmeter/cmd"
	applog "soundmeter/internal/log"
	"soundmeter/pkg/build"
)

// main is the entry point of the meter.
//
//  1. Startup: build information, argument parsing and configuration.
//  2. Run: the selected command, the capture session and its widget.
//  3. Shutdown: SIGINT/SIGTERM cancel the context; sessions and PortAudio
//     are released on the way out.
func main() {
	// Development builds carry no ldflags.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Main: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("Main: %v", err)
	}
	if opts == nil {
		// Help or version output only.
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, opts, os.Stdout); err != nil {
		stop()
		// The terminal UI may have redirected logging.
		applog.UseConsole()
		applog.Fatalf("Main: %v", err)
	}
}
