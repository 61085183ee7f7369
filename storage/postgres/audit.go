package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// AppendAudit stores a new entry.
func (s *Store) AppendAudit(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	var id int64
	err := s.db(ctx).QueryRow(ctx, `INSERT INTO audit_log (action, user_id, post_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		string(entry.Action), nullID(entry.UserID), nullID(entry.PostID), entry.Detail, entry.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, mapError(err)
	}
	entry.Id = core.ID(id)
	return entry, nil
}

// buildAuditWhere builds the WHERE clause for filter.
func buildAuditWhere(filter storage.AuditFilter) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != 0 {
		add("user_id = $%d", int64(filter.UserID))
	}
	if filter.PostID != 0 {
		add("post_id = $%d", int64(filter.PostID))
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// ListAudit returns matching entries newest first.
func (s *Store) ListAudit(ctx context.Context, filter storage.AuditFilter, offset, limit int) ([]*core.AuditEntry, int, error) {
	db := s.db(ctx)
	where, args := buildAuditWhere(filter)

	var total int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM audit_log `+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT id, action, user_id, post_id, detail, created_at FROM audit_log %s
		ORDER BY id DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	rows, err := db.Query(ctx, query, append(args, limitArg(limit), max(offset, 0))...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var entries []*core.AuditEntry
	for rows.Next() {
		var (
			e              core.AuditEntry
			id             int64
			action         string
			userID, postID *int64
		)
		if err := rows.Scan(&id, &action, &userID, &postID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, 0, mapError(err)
		}
		e.Id = core.ID(id)
		e.Action = core.AuditAction(action)
		if userID != nil {
			e.UserID = core.UserID(*userID)
		}
		if postID != nil {
			e.PostID = core.ID(*postID)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}
	return entries, total, mapError(rows.Err())
}
