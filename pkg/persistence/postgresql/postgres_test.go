package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"identifiers", "drafts", "records", "parent_states", "parents", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("drafts_test"),
			postgres.WithUsername("drafts"),
			postgres.WithPassword("drafts"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx, databaseURL
}

func seedLineage(ctx context.Context, t *testing.T, tx persistence.Transaction, now time.Time) (string, string) {
	t.Helper()

	parentID := uuid.NewString()
	draftID := uuid.NewString()

	require.NoError(t, tx.SaveParent(ctx, models.NewParentRecord(parentID, now)))
	require.NoError(t, tx.SaveParentState(ctx, models.NewParentState(parentID)))
	require.NoError(t, tx.SaveDraft(ctx, &models.Draft{
		ParentRef:    models.ParentRef{ParentID: parentID},
		ID:           draftID,
		VersionIndex: 1,
		CreatedBy:    "alice",
		Data:         map[string]any{"metadata": map[string]any{"title": "hello"}},
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	return parentID, draftID
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestPersistence_DraftLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	var parentID, draftID string

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		parentID, draftID = seedLineage(ctx, t, tx, now)

		return nil
	}))

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		draft, err := tx.DraftByID(ctx, draftID, false)
		require.NoError(t, err)
		assert.Equal(t, parentID, draft.Parent())
		assert.Equal(t, "hello", draft.Data["metadata"].(map[string]any)["title"])
		assert.Nil(t, draft.ForkVersionID)

		draft.SetFork(4)
		draft.SoftDelete(now)

		return tx.SaveDraft(ctx, draft)
	}))

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		_, err := tx.DraftByID(ctx, draftID, false)
		assert.True(t, persistence.IsDraftNotFound(err))

		draft, err := tx.DraftByID(ctx, draftID, true)
		require.NoError(t, err)
		require.NotNil(t, draft.ForkVersionID)
		assert.Equal(t, 4, *draft.ForkVersionID)
		assert.Equal(t, 1, draft.RevisionID)
		assert.True(t, draft.IsDeleted())

		count, err := tx.CountParentReferences(ctx, parentID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		return nil
	}))
}

func TestPersistence_RollbackOnError(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	boom := errors.New("boom")

	var parentID string

	err := p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		parentID, _ = seedLineage(ctx, t, tx, time.Now().UTC())

		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		_, err := tx.ParentByID(ctx, parentID)
		assert.True(t, persistence.IsNotFound(err))

		return nil
	}))
}

func TestPersistence_RecordsAndLineage(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		parentID, draftID := seedLineage(ctx, t, tx, now)

		draft, err := tx.DraftByID(ctx, draftID, false)
		require.NoError(t, err)

		record := models.NewRecordFromDraft(draft, now)
		require.NoError(t, tx.SaveRecord(ctx, record))

		lineage, err := persistence.LoadLineage(ctx, tx, parentID)
		require.NoError(t, err)
		lineage.State.SetLatest(record.ID, record.VersionIndex)
		lineage.Parent.NextVersion(now)
		require.NoError(t, tx.SaveParentState(ctx, lineage.State))
		require.NoError(t, tx.SaveParent(ctx, lineage.Parent))

		reloaded, err := persistence.LoadLineage(ctx, tx, parentID)
		require.NoError(t, err)
		assert.Equal(t, 2, reloaded.Parent.VersionCounter)
		assert.True(t, reloaded.State.IsLatest(record.ID))
		assert.Nil(t, reloaded.State.NextDraftID)
		assert.Equal(t, 1, reloaded.State.Count)

		stored, err := tx.RecordByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.RevisionID)

		_, err = tx.RecordByID(ctx, uuid.NewString())
		assert.True(t, persistence.IsRecordNotFound(err))

		return nil
	}))
}

func TestPersistence_IdentifiersAndCascade(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		parentID, draftID := seedLineage(ctx, t, tx, now)

		require.NoError(t, tx.SaveIdentifier(ctx, &models.PersistentIdentifier{
			Type: models.PIDTypeRecord, Value: "abcde-fghjk", Status: models.PIDStatusNew,
			TargetID: draftID, CreatedAt: now, UpdatedAt: now,
		}))

		pid, err := tx.IdentifierByTarget(ctx, models.PIDTypeRecord, draftID)
		require.NoError(t, err)
		assert.Equal(t, models.PIDStatusNew, pid.Status)

		require.NoError(t, tx.DeleteDraft(ctx, draftID))
		require.NoError(t, tx.DeleteIdentifier(ctx, models.PIDTypeRecord, "abcde-fghjk"))

		count, err := tx.CountParentReferences(ctx, parentID)
		require.NoError(t, err)
		assert.Zero(t, count)

		require.NoError(t, tx.DeleteParentState(ctx, parentID))
		require.NoError(t, tx.DeleteParent(ctx, parentID))

		err = tx.DeleteParent(ctx, parentID)
		assert.True(t, persistence.IsNotFound(err))

		return nil
	}))
}

func TestPersistence_ExpiredDrafts(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, p.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		_, draftID := seedLineage(ctx, t, tx, now)

		draft, err := tx.DraftByID(ctx, draftID, false)
		require.NoError(t, err)

		past := now.Add(-time.Minute)
		draft.ExpiresAt = &past
		require.NoError(t, tx.SaveDraft(ctx, draft))

		expired, err := tx.ExpiredDrafts(ctx, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, draftID, expired[0].ID)

		return nil
	}))
}
