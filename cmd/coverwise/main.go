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
	"time"

	"github.com/poiesic/coverwise/config"
	"github.com/poiesic/coverwise/reembed"
	"github.com/poiesic/coverwise/search"
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
		Name:  "coverwise",
		Usage: "Insurance coverage decisions and policy retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "coverwise.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file (default ./.env if present)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadConfig(c)
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Check whether items are covered by a policy",
				ArgsUsage: "ITEM...",
				Action:    checkCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "policy",
						Aliases: []string{"p"},
						Usage:   "Policy file (YAML or JSON); the built-in policy when empty",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Re-check the items whenever the policy file changes",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "load-policy",
				Usage:  "Store a policy file in the database",
				Action: loadPolicyCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:     "policy",
						Aliases:  []string{"p"},
						Usage:    "Policy file (YAML or JSON)",
						Required: true,
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Chunk, classify, embed and index a policy document",
				Action: ingestCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:     "policy-id",
						Usage:    "Policy the document belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "doc",
						Usage:    "Text file to ingest",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "document-id",
						Usage: "Document id (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Coverage category the document describes",
					},
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number of the document, 0 when unknown",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Retrieve policy passages relevant to a question",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:  "policy-id",
						Usage: "Restrict results to one policy",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Search mode (keyword, semantic, hybrid)",
						Value: string(search.ModeHybrid),
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Maximum number of results (defaults to the configured top_k)",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Drop results scoring below this value",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Copy every chunk into a new database with new embeddings",
				Action: reembedCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:     "target-db",
						Usage:    "Path to the BadgerDB directory to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Embedding provider (openai, hashing); defaults to the configured provider",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL; defaults to the configured host",
					},
					&cli.StringFlag{
						Name:     "embedding-model",
						Usage:    "Embedding model name",
						Required: true,
					},
					&cli.IntFlag{
						Name:     "dimensions",
						Usage:    "Vector length produced by the new model",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "policy-id",
						Usage: "Only reembed chunks of this policy",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per embedding request",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of batches embedded at once",
						Value: 2,
					},
				},
			},
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to BadgerDB database directory",
		Required: true,
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads .env, the config file and COVERWISE_* overrides, in that
// order, and stores the result in the app metadata.
func loadConfig(c *cli.Context) error {
	var envFiles []string
	if f := c.String("env-file"); f != "" {
		envFiles = append(envFiles, f)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}
