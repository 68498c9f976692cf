// Command pipeline is the process entrypoint: it loads configuration,
// wires the registered stage factories into a Pipeline, starts the
// control-plane HTTP server, and runs until shutdown (spec §6).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/obsidian-labs/marketdata-pipeline/internal/config"
	"github.com/obsidian-labs/marketdata-pipeline/internal/httpapi"
	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/pipeline"
	"github.com/obsidian-labs/marketdata-pipeline/internal/stage/processor/obmaintainer"
	"github.com/obsidian-labs/marketdata-pipeline/internal/stage/sink/file"
	"github.com/obsidian-labs/marketdata-pipeline/internal/stage/sink/mock"
	"github.com/obsidian-labs/marketdata-pipeline/internal/stage/source/exchangews"
	filesource "github.com/obsidian-labs/marketdata-pipeline/internal/stage/source/file"
	mocksource "github.com/obsidian-labs/marketdata-pipeline/internal/stage/source/mock"
)

// factories is the closed registry of reference stage kinds this binary
// knows how to build. A deployment that needs a stage kind not listed here
// links its own binary registering the additional factory; the pipeline
// package itself has no notion of this list (spec §9).
func factories() map[string]pipeline.Factory {
	return map[string]pipeline.Factory{
		"source.mock":            mocksource.New,
		"source.exchangews":      exchangews.New,
		"source.file":            filesource.New,
		"processor.obmaintainer": obmaintainer.New,
		"sink.mock":              mock.New,
		"sink.file":              file.New,
	}
}

func main() {
	configFlag := &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "path to the pipeline configuration file",
		Required: true,
	}

	app := &cli.App{
		Name:   "pipeline",
		Usage:  "run the market-data processing pipeline",
		Flags:  []cli.Flag{configFlag},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "load and validate the configuration without starting the pipeline",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if _, err := pipeline.Build(cfg, factories()); err != nil {
						return err
					}
					log.Pipeline.Infof("config %q is valid: %d stage(s)", c.String("config"), len(cfg.AllStages()))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Pipeline.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	pipe, err := pipeline.Build(cfg, factories())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipe.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.CtrlHost + ":" + strconv.Itoa(cfg.CtrlPort),
		Handler: httpapi.NewRouter(pipe, cancel),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Control.Errorf("control plane: %v", err)
		}
	}()
	log.Control.Infof("control plane listening on %s", srv.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Pipeline.Infof("signal received, shutting down")
	case <-ctx.Done():
		log.Pipeline.Infof("shutdown requested via control plane")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Control.Errorf("control plane shutdown: %v", err)
	}

	pipe.Wait()
	return nil
}
