package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/voicevault/config"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/search"
	"github.com/urfave/cli/v2"
)

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}
	cfg := config.FromContext(c)
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	if err := cfg.AI.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	engine, err := search.NewEngine(rt.store,
		search.WithEmbedder(rt.provider.Embedder()),
		search.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	results, err := engine.Search(ctx, search.Query{
		UserID: core.UserID(c.Int64("user")),
		Text:   query,
		Limit:  c.Int("limit"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Found %d hits (%s)\n", len(results.Items), results.Mode)
	for i, hit := range results.Items {
		fmt.Printf("%d: '%s' [%s %s-%s] (%d)[%0.3f]\n", i, hit.Chunk.Text, hit.PostTitle,
			clock(hit.Chunk.StartSec), clock(hit.Chunk.EndSec), hit.PostID, hit.Score)
	}
	return nil
}

// clock formats seconds as m:ss.
func clock(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
