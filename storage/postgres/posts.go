package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

const postColumns = `id, user_id, title, description, visibility, status, language, source_name,
	storage_prefix, manifest_hash, bundle_hash, failure_reason, last_run_id, created_at, updated_at`

func scanPost(row pgx.Row) (*core.Post, error) {
	var (
		p          core.Post
		id, userID int64
		visibility string
		status     string
	)
	err := row.Scan(&id, &userID, &p.Title, &p.Description, &visibility, &status, &p.Language, &p.SourceName,
		&p.StoragePrefix, &p.ManifestHash, &p.BundleHash, &p.FailureReason, &p.LastRunID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Id = core.ID(id)
	p.UserID = core.UserID(userID)
	p.Visibility = core.Visibility(visibility)
	p.Status = core.Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func getPost(ctx context.Context, db DBTX, id core.ID, forUpdate bool) (*core.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	post, err := scanPost(db.QueryRow(ctx, query, int64(id)))
	if err != nil {
		return nil, mapError(err)
	}
	return post, nil
}

func savePost(ctx context.Context, db DBTX, p *core.Post) error {
	_, err := db.Exec(ctx, `
		UPDATE posts SET title = $2, description = $3, visibility = $4, status = $5, language = $6,
			manifest_hash = $7, bundle_hash = $8, failure_reason = $9, last_run_id = $10, updated_at = $11
		WHERE id = $1`,
		int64(p.Id), p.Title, p.Description, string(p.Visibility), string(p.Status), p.Language,
		p.ManifestHash, p.BundleHash, p.FailureReason, p.LastRunID, p.UpdatedAt)
	return mapError(err)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// AddPost validates and inserts a new post.
func (s *Store) AddPost(ctx context.Context, post *core.Post) (*core.Post, error) {
	post.Status = core.StatusUploaded
	if err := core.ValidatePost(post); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, func(db DBTX) error {
		var id int64
		if err := db.QueryRow(ctx, `SELECT nextval('posts_id_seq')`).Scan(&id); err != nil {
			return mapError(err)
		}
		post.Id = core.ID(id)
		post.StoragePrefix = strconv.FormatInt(id, 10) + "/"
		post.CreatedAt = now()
		post.UpdatedAt = post.CreatedAt

		_, err := db.Exec(ctx, `INSERT INTO posts (`+postColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			id, int64(post.UserID), post.Title, post.Description, string(post.Visibility),
			string(post.Status), post.Language, post.SourceName, post.StoragePrefix, post.ManifestHash,
			post.BundleHash, post.FailureReason, post.LastRunID, post.CreatedAt, post.UpdatedAt)
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// GetPost retrieves a post by ID.
func (s *Store) GetPost(ctx context.Context, id core.ID) (*core.Post, error) {
	return getPost(ctx, s.db(ctx), id, false)
}

// ListPostsByUser returns a user's posts, newest first.
func (s *Store) ListPostsByUser(ctx context.Context, userID core.UserID, offset, limit int) ([]*core.Post, int, error) {
	db := s.db(ctx)

	var total int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM posts WHERE user_id = $1`, int64(userID)).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	rows, err := db.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		int64(userID), limitArg(limit), max(offset, 0))
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var posts []*core.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, mapError(err)
		}
		posts = append(posts, post)
	}
	return posts, total, mapError(rows.Err())
}

// UpdatePost saves the editable fields of a post.
func (s *Store) UpdatePost(ctx context.Context, post *core.Post) (*core.Post, error) {
	var result *core.Post
	err := s.inTx(ctx, func(db DBTX) error {
		current, err := getPost(ctx, db, post.Id, true)
		if err != nil {
			return err
		}
		current.Title = post.Title
		current.Description = post.Description
		current.Visibility = post.Visibility
		current.Language = post.Language
		if err := core.ValidatePost(current); err != nil {
			return err
		}
		current.UpdatedAt = now()
		result = current
		return savePost(ctx, db, current)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionStatus performs a compare-and-set status change.
func (s *Store) TransitionStatus(ctx context.Context, id core.ID, from, to core.Status, mutate func(*core.Post)) (*core.Post, error) {
	var result *core.Post
	err := s.inTx(ctx, func(db DBTX) error {
		post, err := getPost(ctx, db, id, true)
		if err != nil {
			return err
		}
		if post.Status != from {
			return fmt.Errorf("%w: post %d is %s, expected %s", storage.ErrStatusConflict, id, post.Status, from)
		}
		if err := core.ValidateTransition(from, to); err != nil {
			return err
		}
		if mutate != nil {
			mutate(post)
		}
		post.Status = to
		post.UpdatedAt = now()
		result = post
		return savePost(ctx, db, post)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePost removes a post. Chunks, files and metadata cascade and audit
// entries keep a null post reference.
func (s *Store) DeletePost(ctx context.Context, id core.ID) error {
	tag, err := s.db(ctx).Exec(ctx, `DELETE FROM posts WHERE id = $1`, int64(id))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
