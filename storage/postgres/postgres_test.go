package postgres

import (
	"errors"
	"math"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
	"github.com/stretchr/testify/assert"
)

func TestChunkKeyPreservesOrder(t *testing.T) {
	ids := []core.ID{0, 1, 1 << 62, math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, chunkKey(ids[i-1]), chunkKey(ids[i]), "ids %d and %d", ids[i-1], ids[i])
	}
	for _, id := range ids {
		assert.Equal(t, id, chunkIDFromKey(chunkKey(id)))
	}
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows), storage.ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "40001"}), storage.ErrStatusConflict)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23514"}), storage.ErrInvalidQuery)
	assert.ErrorIs(t, mapError(errors.New("conn reset")), storage.ErrTransactionFailed)
}

func TestBuildAuditWhere(t *testing.T) {
	where, args := buildAuditWhere(storage.AuditFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildAuditWhere(storage.AuditFilter{UserID: 3, Action: core.AuditSearch})
	assert.Equal(t, "WHERE user_id = $1 AND action = $2", where)
	assert.Equal(t, []any{int64(3), "search"}, args)
}

func TestArgHelpers(t *testing.T) {
	assert.Nil(t, limitArg(0))
	assert.Equal(t, 5, *limitArg(5))
	assert.Nil(t, nullID(core.UserID(0)))
	assert.Equal(t, int64(9), *nullID(core.ID(9)))
	assert.Equal(t, []string{"original_audio", "normalized_audio", "transcript_json", "transcript_txt",
		"metadata", "rights", "manifest", "bundle"}, roleOrder())
}
