// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/aisync/config"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "aisync",
		Usage: "Import and search exported AI assistant conversations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				EnvVars: []string{"AISYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
			&cli.StringFlag{
				Name:    "org",
				Aliases: []string{"o"},
				Usage:   "Organization id that owns the conversations",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.IntFlag{
				Name:  "embedding-dimension",
				Usage: "Embedding vector dimension",
			},
			&cli.StringFlag{
				Name:  "api-key",
				Usage: "API key for the embedding service",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import a ChatGPT, Claude or DeepSeek export",
				ArgsUsage: "FILE (use - for stdin)",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Export source (CHATGPT, CLAUDE, DEEPSEEK)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of conversations imported in parallel (defaults to the configured value)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search imported conversations",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of results", Value: 10},
					&cli.StringFlag{Name: "source", Usage: "Only search this source"},
					&cli.StringFlag{Name: "app", Usage: "Only search this app category"},
				},
			},
			{
				Name:   "list",
				Usage:  "List imported conversations, newest first",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "Only list this source"},
					&cli.StringFlag{Name: "app", Usage: "Only list this app category"},
					&cli.IntFlag{Name: "skip", Usage: "Number of conversations to skip"},
					&cli.IntFlag{Name: "take", Usage: "Maximum number of conversations (0 for all)", Value: 50},
				},
			},
			{
				Name:      "show",
				Usage:     "Print a conversation",
				ArgsUsage: "ID",
				Action:    showCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a conversation",
				ArgsUsage: "ID",
				Action:    deleteCommand,
			},
			{
				Name:      "delete-source",
				Usage:     "Delete every conversation from a source",
				ArgsUsage: "SOURCE",
				Action:    deleteSourceCommand,
			},
			{
				Name:   "summary",
				Usage:  "Count conversations by source and app",
				Action: summaryCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address (defaults to the configured value)"},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all stored chunks with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each request",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.DurationFlag{
						Name:  "batch-delay",
						Usage: "Pause between batches",
					},
				},
			},
		},
	}
}

// setup loads configuration, applies global flag overrides and installs
// the logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	if c.IsSet("org") {
		cfg.Organization = c.String("org")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedding.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedding.Model = c.String("embedding-model")
		cfg.Chunking.TokenModel = cfg.Embedding.Model
	}
	if c.IsSet("embedding-dimension") {
		cfg.Embedding.Dimension = c.Int("embedding-dimension")
	}
	if c.IsSet("api-key") {
		cfg.Embedding.APIKey = c.String("api-key")
	}
}

func newLogger(levelStr string) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

func appConfig(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[configKey].(*config.Config)
	return cfg
}
