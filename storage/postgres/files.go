package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/poiesic/voicevault/core"
)

const fileColumns = `post_id, role, path, content_type, size, digest, created_at`

func scanFile(row pgx.Row) (*core.ArchiveFile, error) {
	var (
		f      core.ArchiveFile
		postID int64
		role   string
	)
	if err := row.Scan(&postID, &role, &f.Path, &f.ContentType, &f.Size, &f.Digest, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.PostID = core.ID(postID)
	f.Role = core.FileRole(role)
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

func queuePutFile(batch *pgx.Batch, f *core.ArchiveFile) {
	batch.Queue(`INSERT INTO archive_files (`+fileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (post_id, role) DO UPDATE SET path = EXCLUDED.path,
			content_type = EXCLUDED.content_type, size = EXCLUDED.size,
			digest = EXCLUDED.digest, created_at = EXCLUDED.created_at`,
		int64(f.PostID), string(f.Role), f.Path, f.ContentType, f.Size, f.Digest, f.CreatedAt)
}

// PutFile inserts or replaces the ledger row for (PostID, Role).
func (s *Store) PutFile(ctx context.Context, file *core.ArchiveFile) error {
	if err := core.ValidateArchiveFile(file); err != nil {
		return err
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now()
	}
	batch := &pgx.Batch{}
	queuePutFile(batch, file)
	return mapError(s.db(ctx).SendBatch(ctx, batch).Close())
}

// GetFile returns the ledger row for (postID, role).
func (s *Store) GetFile(ctx context.Context, postID core.ID, role core.FileRole) (*core.ArchiveFile, error) {
	file, err := scanFile(s.db(ctx).QueryRow(ctx,
		`SELECT `+fileColumns+` FROM archive_files WHERE post_id = $1 AND role = $2`,
		int64(postID), string(role)))
	if err != nil {
		return nil, mapError(err)
	}
	return file, nil
}

// ListFiles returns every ledger row of a post in role order.
func (s *Store) ListFiles(ctx context.Context, postID core.ID) ([]*core.ArchiveFile, error) {
	rows, err := s.db(ctx).Query(ctx, `SELECT `+fileColumns+` FROM archive_files
		WHERE post_id = $1 ORDER BY array_position($2::text[], role)`,
		int64(postID), roleOrder())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var files []*core.ArchiveFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, mapError(err)
		}
		files = append(files, f)
	}
	return files, mapError(rows.Err())
}

func roleOrder() []string {
	roles := core.FileRoles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
