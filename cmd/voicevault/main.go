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

	"github.com/poiesic/voicevault/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		log.Fatal(err)
	}
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"VOICEVAULT_LOG_LEVEL"},
		},
	}

	return &cli.App{
		Name:   "voicevault",
		Usage:  "Archive, transcribe and search voice recordings",
		Flags:  append(flags, config.Flags()...),
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "worker",
				Usage:  "Process queued pipeline runs",
				Action: workerCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Apply PostgreSQL schema migrations",
				Action: migrateCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Attach embeddings to transcript chunks stored without one",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "verify",
				Usage:  "Recompute stored file digests of a post and compare them with the ledger",
				Action: verifyCommand,
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:     "post",
						Usage:    "Post ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "role",
						Usage: "Only verify this file role",
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Upload every recording under a directory for a user",
				ArgsUsage: "<dir>",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "user",
						Usage:    "Owner of the imported posts",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "visibility",
						Usage: "Visibility of imported posts (private, public)",
						Value: "private",
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Language hint passed to the transcriber",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search a user's transcripts from the command line",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "user",
						Usage:    "User whose posts are searched",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: 5,
					},
				},
			},
			{
				Name:   "token",
				Usage:  "Issue a bearer token for a user",
				Action: tokenCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "user",
						Usage:    "User ID placed in the token",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: 24 * time.Hour,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}
