package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/voicevault"
	"github.com/poiesic/voicevault/config"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/media"
	"github.com/urfave/cli/v2"
)

// filesUnder returns an iterator over the regular files below root in
// lexical order.
func filesUnder(root string) (iter.Seq[string], error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	return func(yield func(string) bool) {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("skipping unreadable path", "path", path, "err", err)
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}, nil
}

// titleFromFile turns "2024-05_harbour_walk.mp3" into "2024-05 harbour walk".
func titleFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title := strings.Join(strings.Fields(strings.ReplaceAll(base, "_", " ")), " ")
	if title == "" {
		return filepath.Base(path)
	}
	return title
}

// importFiles submits every file from source as an upload of template's
// user. Unsupported files are skipped. Returns the created posts.
func importFiles(ctx context.Context, archive *voicevault.Archive, source iter.Seq[string], template media.Upload) ([]*core.Post, error) {
	var posts []*core.Post
	for path := range source {
		f, err := os.Open(path)
		if err != nil {
			return posts, err
		}

		up := template
		up.Title = titleFromFile(path)
		up.FileName = filepath.Base(path)
		up.ContentType = mime.TypeByExtension(filepath.Ext(path))
		up.Body = f

		post, err := archive.SubmitUpload(ctx, up)
		f.Close()
		if errors.Is(err, core.ErrUnsupportedMediaType) {
			slog.Warn("skipping unsupported file", "path", path)
			continue
		}
		if err != nil {
			return posts, fmt.Errorf("import %s: %w", path, err)
		}
		slog.Info("imported", "path", path, "post_id", post.Id)
		posts = append(posts, post)
	}
	return posts, nil
}

func importCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() != 1 {
		return errors.New("exactly one directory is required")
	}
	cfg := config.FromContext(c)
	if err := cfg.ValidateService(); err != nil {
		return err
	}

	source, err := filesUnder(c.Args().First())
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	pipeline, err := newPipeline(rt.store, rt.blobs, rt.provider, cfg)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	archive, err := voicevault.New(rt.store, rt.blobs, voicevault.LocalDispatcher(pipeline),
		voicevault.WithLogger(slog.Default()),
		voicevault.WithMaxUploadBytes(cfg.MaxUploadBytes),
		voicevault.WithWholeFileLimit(cfg.AI.MaxRequestBytes))
	if err != nil {
		return err
	}

	posts, err := importFiles(ctx, archive, source, media.Upload{
		UserID:     core.UserID(c.Int64("user")),
		Visibility: core.Visibility(c.String("visibility")),
		Language:   c.String("language"),
	})
	pipeline.Wait()
	if err != nil {
		return err
	}

	ready := 0
	for _, p := range posts {
		current, err := rt.store.GetPost(ctx, p.Id)
		if err != nil {
			return err
		}
		if current.Status == core.StatusReady {
			ready++
		} else {
			fmt.Fprintf(os.Stderr, "post %d (%s): %s %s\n", current.Id, current.Title, current.Status, current.FailureReason)
		}
	}
	fmt.Fprintf(os.Stderr, "Imported %d recordings, %d ready\n", len(posts), ready)
	return nil
}
