package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/tokensmith/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tokensmith",
		Usage: "Create and mint SPL tokens and send SOL from a connected wallet",
		Description: `A command-line tool for the tokensmith service.

Local commands sign with the wallet configured through the environment
(WALLET_KEYPAIR_PATH or WALLET_PRIVATE_KEY) and talk to Solana directly.
Remote commands drive a running tokensmith server over HTTP.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			localCommands(),
			remoteCommands(),
			// NATS submission streaming commands
			{
				Name:  "nats",
				Usage: "NATS submission streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
		Before: func(c *cli.Context) error {
			return config.LoadDotEnv(c.String("env-file"))
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "env-file",
			Usage:   "Env file to load before reading configuration (default .env when present)",
			EnvVars: []string{"ENV_FILE"},
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "tokensmith server URL",
			EnvVars: []string{"TOKENSMITH_SERVER_URL", "SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "Filter JSON output with a jq expression (implies --json)",
		},
	}
}
