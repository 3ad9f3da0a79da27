package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagBackend  = "backend"
	flagPath     = "path"
	flagInMemory = "in-memory"
	flagLogLevel = "log-level"
	flagMetrics  = "metrics"
)

func init() {
	godotenv.Load()
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "quadstore",
		Usage: "RDF quad store with a term dictionary and six-permutation index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"QUADSTORE_CONFIG"},
			},
			&cli.StringFlag{Name: flagBackend, Usage: "storage backend (badger or bolt)"},
			&cli.StringFlag{Name: flagPath, Usage: "storage path"},
			&cli.BoolFlag{Name: flagInMemory, Usage: "keep the badger store in memory"},
			&cli.StringFlag{Name: flagLogLevel, Usage: "log level"},
			&cli.BoolFlag{Name: flagMetrics, Usage: "print collected metrics on exit"},
		},
		Commands: []*cli.Command{
			loadCommand(),
			deleteCommand(),
			matchCommand(),
			graphsCommand(),
			costCommand(),
			statsCommand(),
			clearCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
