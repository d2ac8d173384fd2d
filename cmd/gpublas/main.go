package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fxnlabs/gpublas/internal/config"
	"github.com/fxnlabs/gpublas/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// env holds what the Before hook loaded for the commands.
type env struct {
	cfg *config.Config
	log *zap.Logger
}

func newCLIApp() *cli.App {
	e := &env{}
	return &cli.App{
		Name:  "gpublas",
		Usage: "Inspect and run the variant-selecting BLAS runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"GPUBLAS_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if errors.Is(err, fs.ErrNotExist) {
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if e.log != nil {
				_ = e.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			infoCommand(e),
			variantsCommand(),
			selectCommand(),
			runCommand(e),
		},
	}
}

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
