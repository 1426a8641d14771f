package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"media-revoicer/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "settings file (default ~/.media-revoicer/settings.json)")
	outputDir := flag.String("out", "", "output directory for revoiced files")
	fix := flag.Bool("fix", false, "try to fix failed startup checks before running")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] video...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: *configPath, OutputDir: *outputDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap app: %v\n", err)
		os.Exit(1)
	}

	if *fix && app.Diagnostics.HasFailures {
		if _, err := app.FixDiagnostics(ctx); err != nil {
			app.Logger.Warn().Err(err).Msg("some startup checks could not be fixed")
		}
	}

	outcomes, err := app.Run(ctx, flag.Args())
	for _, o := range outcomes {
		if o.Err == nil {
			fmt.Println(o.Result.VideoPath)
		}
	}
	if err != nil {
		app.Logger.Error().Err(err).Msg("run app")
		os.Exit(1)
	}
}
