package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/0xmhha/indexdb-go/internal/config"
	"github.com/0xmhha/indexdb-go/internal/constants"
	"github.com/0xmhha/indexdb-go/internal/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// environment is shared by every command once the global flags are applied
type environment struct {
	config *config.Config
	log    *zap.Logger
	w      io.Writer
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", constants.AppName, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = constants.AppName
	app.Usage = "account transaction index"
	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildTime)
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "",
			Usage: " configuration `FILE` (YAML)",
		},
		cli.StringFlag{
			Name:  "db, d",
			Value: "",
			Usage: " database `PATH`",
		},
		cli.StringFlag{
			Name:  "backend, b",
			Value: "",
			Usage: " storage `ENGINE` [pebble|leveldb|memory]",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "",
			Usage: " log `LEVEL` [debug|info|warn|error]",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "",
			Usage: " log `FORMAT` [json|console]",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "serve the committed index over HTTP until interrupted",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "host",
					Value: "",
					Usage: " listen `HOST`",
				},
				cli.IntFlag{
					Name:  "port, p",
					Value: 0,
					Usage: " listen `PORT`",
				},
			},
			Action: runServe,
		},
		{
			Name:      "add",
			Usage:     "append a transaction to an account",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "account, a",
					Value: "",
					Usage: "*account `KEY` (0x-prefixed hex or raw)",
				},
				cli.StringFlag{
					Name:  "value, v",
					Value: "",
					Usage: "*transaction `VALUE` (0x-prefixed hex or raw)",
				},
				cli.Uint64Flag{
					Name:  "position",
					Value: 0,
					Usage: " expected `POSITION`, defaults to the next one",
				},
			},
			Action: runAdd,
		},
		{
			Name:      "txs",
			Usage:     "list the transactions of an account",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "account, a",
					Value: "",
					Usage: "*account `KEY`",
				},
				cli.Int64Flag{
					Name:  "offset, o",
					Value: 0,
					Usage: " first `POSITION` to list",
				},
				cli.IntFlag{
					Name:  "limit, l",
					Value: 0,
					Usage: " maximum transactions to list `COUNT`, 0 for all",
				},
				cli.BoolFlag{
					Name:  "raw, r",
					Usage: " print values verbatim instead of hex",
				},
			},
			Action: runTxs,
		},
		{
			Name:      "count",
			Usage:     "print the number of transactions of an account",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "account, a",
					Value: "",
					Usage: "*account `KEY`",
				},
			},
			Action: runCount,
		},
		{
			Name:      "truncate",
			Usage:     "delete the transactions of an account from an offset on",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "account, a",
					Value: "",
					Usage: "*account `KEY`",
				},
				cli.Int64Flag{
					Name:  "offset, o",
					Value: 0,
					Usage: "*first `POSITION` to delete",
				},
			},
			Action: runTruncate,
		},
		{
			Name:  "accounts",
			Usage: "list accounts with at least one transaction",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "from, f",
					Value: "",
					Usage: " first account `KEY` or resume cursor",
				},
				cli.IntFlag{
					Name:  "limit, l",
					Value: constants.DefaultPaginationLimit,
					Usage: " maximum accounts to list `COUNT`",
				},
				cli.BoolFlag{
					Name:  "raw, r",
					Usage: " print accounts verbatim instead of hex",
				},
			},
			Action: runAccounts,
		},
	}

	app.Before = setup
	app.After = func(c *cli.Context) error {
		if env, ok := c.App.Metadata["env"].(*environment); ok {
			_ = env.log.Sync()
		}
		return nil
	}

	return app
}

// setup loads configuration, applies the global flags and builds the logger
func setup(c *cli.Context) error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}

	applyFlags(cfg, c.GlobalString("db"), c.GlobalString("backend"), c.GlobalString("log-level"), c.GlobalString("log-format"))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewWithConfig(&logger.Config{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		InitialFields: map[string]interface{}{"app": constants.AppName},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata["env"] = &environment{
		config: cfg,
		log:    log,
		w:      c.App.Writer,
	}
	return nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, dbPath, backend, logLevel, logFormat string) {
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if backend != "" {
		cfg.Database.Backend = backend
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}
