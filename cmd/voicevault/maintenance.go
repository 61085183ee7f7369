package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/voicevault/api"
	"github.com/poiesic/voicevault/config"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/media"
	"github.com/poiesic/voicevault/reembed"
	"github.com/poiesic/voicevault/storage/postgres"
	"github.com/urfave/cli/v2"
)

func migrateCommand(c *cli.Context) error {
	cfg := config.FromContext(c)
	if cfg.StorageDriver != config.StoragePostgres {
		return fmt.Errorf("migrate applies to postgres storage, not %q", cfg.StorageDriver)
	}
	if cfg.PostgresDSN == "" {
		return errors.New("postgres-dsn is required")
	}
	return postgres.Migrate(cfg.PostgresDSN, slog.Default())
}

func reembedCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg := config.FromContext(c)
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	if err := cfg.AI.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	reembedConfig := reembed.DefaultConfig()
	reembedConfig.BatchSize = c.Int("batch-size")
	reembedConfig.ReportInterval = c.Int("report-interval")
	reembedConfig.Retry.MaxAttempts = c.Int("max-retries")
	reembedConfig.Retry.BaseDelay = c.Duration("retry-delay")

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	reembedder, err := reembed.NewReembedder(rt.store, rt.provider.Embedder(), reembedConfig, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Storage: %s\n", cfg.StorageDriver)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}
	return nil
}

func verifyCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg := config.FromContext(c)
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	ingestor, err := media.NewIngestor(store, blobs, media.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	postID := core.ID(c.Uint64("post"))
	var roles []core.FileRole
	if role := c.String("role"); role != "" {
		roles = []core.FileRole{core.FileRole(role)}
	} else {
		files, err := store.ListFiles(ctx, postID)
		if err != nil {
			return err
		}
		for _, f := range files {
			roles = append(roles, f.Role)
		}
	}
	if len(roles) == 0 {
		return fmt.Errorf("post %d has no stored files", postID)
	}

	mismatches := 0
	for _, role := range roles {
		file, err := ingestor.Verify(ctx, postID, role)
		switch {
		case err == nil:
			fmt.Printf("ok        %-18s %s\n", role, file.Digest)
		case errors.Is(err, core.ErrIntegrityMismatch):
			mismatches++
			fmt.Printf("MISMATCH  %-18s %v\n", role, err)
		default:
			return err
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d files failed verification", mismatches, len(roles))
	}
	return nil
}

func tokenCommand(c *cli.Context) error {
	cfg := config.FromContext(c)
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	auth, err := api.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := auth.Issue(core.UserID(c.Int64("user")), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
