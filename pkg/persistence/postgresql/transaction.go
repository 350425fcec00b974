package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/persistence/sqlbase"
)

type transaction struct {
	tx     *sql.Tx
	logger *slog.Logger
}

func (t *transaction) ParentByID(ctx context.Context, id string) (*models.ParentRecord, error) {
	query := `SELECT id, version_counter, created_at, updated_at FROM parents WHERE id = $1 FOR UPDATE`

	var parent models.ParentRecord

	err := t.tx.QueryRowContext(ctx, query, id).Scan(&parent.ID, &parent.VersionCounter, &parent.CreatedAt, &parent.UpdatedAt)
	if err != nil {
		return nil, t.readError("ParentByID", "parent", id, persistence.ErrParentNotFound, err)
	}

	return &parent, nil
}

func (t *transaction) SaveParent(ctx context.Context, parent *models.ParentRecord) error {
	query := `
		INSERT INTO parents (id, version_counter, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			version_counter = EXCLUDED.version_counter,
			updated_at = EXCLUDED.updated_at`

	_, err := t.tx.ExecContext(ctx, query, parent.ID, parent.VersionCounter, parent.CreatedAt, parent.UpdatedAt)
	if err != nil {
		return persistence.NewEntityError("SaveParent", "parent", parent.ID, err)
	}

	return nil
}

func (t *transaction) DeleteParent(ctx context.Context, id string) error {
	return t.deleteRow(ctx, "DeleteParent", "parent", id, persistence.ErrParentNotFound,
		`DELETE FROM parents WHERE id = $1`, id)
}

func (t *transaction) ParentStateByID(ctx context.Context, parentID string) (*models.ParentState, error) {
	query := `
		SELECT parent_id, latest_id, next_draft_id, count, current_index
		FROM parent_states WHERE parent_id = $1 FOR UPDATE`

	var (
		state       models.ParentState
		latestID    sql.NullString
		nextDraftID sql.NullString
	)

	err := t.tx.QueryRowContext(ctx, query, parentID).Scan(&state.ParentID, &latestID, &nextDraftID, &state.Count, &state.CurrentIndex)
	if err != nil {
		return nil, t.readError("ParentStateByID", "parent state", parentID, persistence.ErrParentStateNotFound, err)
	}

	state.LatestID = sqlbase.StringPtr(latestID)
	state.NextDraftID = sqlbase.StringPtr(nextDraftID)

	return &state, nil
}

func (t *transaction) SaveParentState(ctx context.Context, state *models.ParentState) error {
	query := `
		INSERT INTO parent_states (parent_id, latest_id, next_draft_id, count, current_index)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (parent_id) DO UPDATE SET
			latest_id = EXCLUDED.latest_id,
			next_draft_id = EXCLUDED.next_draft_id,
			count = EXCLUDED.count,
			current_index = EXCLUDED.current_index`

	_, err := t.tx.ExecContext(ctx, query,
		state.ParentID,
		sqlbase.NullString(state.LatestID),
		sqlbase.NullString(state.NextDraftID),
		state.Count,
		state.CurrentIndex,
	)
	if err != nil {
		return persistence.NewEntityError("SaveParentState", "parent state", state.ParentID, err)
	}

	return nil
}

func (t *transaction) DeleteParentState(ctx context.Context, parentID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM parent_states WHERE parent_id = $1`, parentID)
	if err != nil {
		return persistence.NewEntityError("DeleteParentState", "parent state", parentID, err)
	}

	return nil
}

func (t *transaction) CountParentReferences(ctx context.Context, parentID string) (int, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM drafts WHERE parent_id = $1)
		     + (SELECT COUNT(*) FROM records WHERE parent_id = $1)`

	var count int

	err := t.tx.QueryRowContext(ctx, query, parentID).Scan(&count)
	if err != nil {
		return 0, persistence.NewEntityError("CountParentReferences", "parent", parentID, err)
	}

	return count, nil
}

const draftColumns = `id, parent_id, version_index, revision_id, fork_version_id, expires_at,
	created_by, data, created_at, updated_at, deleted_at`

func (t *transaction) DraftByID(ctx context.Context, id string, withDeleted bool) (*models.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}

	query += ` FOR UPDATE`

	draft, err := scanDraft(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, t.readError("DraftByID", "draft", id, persistence.ErrDraftNotFound, err)
	}

	return draft, nil
}

func (t *transaction) SaveDraft(ctx context.Context, draft *models.Draft) error {
	data, err := json.Marshal(draft.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal draft data: %w", err)
	}

	query := `
		INSERT INTO drafts (` + draftColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			version_index = EXCLUDED.version_index,
			revision_id = EXCLUDED.revision_id,
			fork_version_id = EXCLUDED.fork_version_id,
			expires_at = EXCLUDED.expires_at,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`

	_, err = t.tx.ExecContext(ctx, query,
		draft.ID,
		draft.ParentID,
		draft.VersionIndex,
		draft.RevisionID,
		sqlbase.NullInt(draft.ForkVersionID),
		sqlbase.NullTime(draft.ExpiresAt),
		draft.CreatedBy,
		data,
		draft.CreatedAt,
		draft.UpdatedAt,
		sqlbase.NullTime(draft.DeletedAt),
	)
	if err != nil {
		return persistence.NewEntityError("SaveDraft", "draft", draft.ID, err)
	}

	return nil
}

func (t *transaction) DeleteDraft(ctx context.Context, id string) error {
	return t.deleteRow(ctx, "DeleteDraft", "draft", id, persistence.ErrDraftNotFound,
		`DELETE FROM drafts WHERE id = $1`, id)
}

func (t *transaction) ExpiredDrafts(ctx context.Context, now time.Time) ([]*models.Draft, error) {
	query := `
		SELECT ` + draftColumns + ` FROM drafts
		WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		FOR UPDATE SKIP LOCKED`

	rows, err := t.tx.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired drafts: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	drafts := make([]*models.Draft, 0)

	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}

		drafts = append(drafts, draft)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate expired drafts: %w", err)
	}

	return drafts, nil
}

func scanDraft(row sqlbase.Scanner) (*models.Draft, error) {
	var (
		draft         models.Draft
		forkVersionID sql.NullInt64
		expiresAt     sql.NullTime
		deletedAt     sql.NullTime
		data          []byte
	)

	err := row.Scan(
		&draft.ID,
		&draft.ParentID,
		&draft.VersionIndex,
		&draft.RevisionID,
		&forkVersionID,
		&expiresAt,
		&draft.CreatedBy,
		&data,
		&draft.CreatedAt,
		&draft.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(data, &draft.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft data: %w", err)
	}

	draft.ForkVersionID = sqlbase.IntPtr(forkVersionID)
	draft.ExpiresAt = sqlbase.TimePtr(expiresAt)
	draft.DeletedAt = sqlbase.TimePtr(deletedAt)

	return &draft, nil
}

func (t *transaction) RecordByID(ctx context.Context, id string) (*models.Record, error) {
	query := `
		SELECT id, parent_id, version_index, revision_id, created_by, data, created_at, updated_at
		FROM records WHERE id = $1 FOR UPDATE`

	var (
		record models.Record
		data   []byte
	)

	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.ParentID,
		&record.VersionIndex,
		&record.RevisionID,
		&record.CreatedBy,
		&data,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, t.readError("RecordByID", "record", id, persistence.ErrRecordNotFound, err)
	}

	err = json.Unmarshal(data, &record.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
	}

	return &record, nil
}

func (t *transaction) SaveRecord(ctx context.Context, record *models.Record) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	query := `
		INSERT INTO records (id, parent_id, version_index, revision_id, created_by, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			version_index = EXCLUDED.version_index,
			revision_id = EXCLUDED.revision_id,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	_, err = t.tx.ExecContext(ctx, query,
		record.ID,
		record.ParentID,
		record.VersionIndex,
		record.RevisionID,
		record.CreatedBy,
		data,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveRecord", "record", record.ID, err)
	}

	return nil
}

const identifierColumns = `pid_type, pid_value, status, target_id, created_at, updated_at`

func (t *transaction) IdentifierByValue(ctx context.Context, pidType models.PIDType, value string) (*models.PersistentIdentifier, error) {
	query := `SELECT ` + identifierColumns + ` FROM identifiers WHERE pid_type = $1 AND pid_value = $2 FOR UPDATE`

	pid, err := scanIdentifier(t.tx.QueryRowContext(ctx, query, pidType, value))
	if err != nil {
		return nil, t.readError("IdentifierByValue", string(pidType), value, persistence.ErrIdentifierNotFound, err)
	}

	return pid, nil
}

func (t *transaction) IdentifierByTarget(ctx context.Context, pidType models.PIDType, targetID string) (*models.PersistentIdentifier, error) {
	query := `SELECT ` + identifierColumns + ` FROM identifiers WHERE pid_type = $1 AND target_id = $2 LIMIT 1 FOR UPDATE`

	pid, err := scanIdentifier(t.tx.QueryRowContext(ctx, query, pidType, targetID))
	if err != nil {
		return nil, t.readError("IdentifierByTarget", string(pidType), targetID, persistence.ErrIdentifierNotFound, err)
	}

	return pid, nil
}

func (t *transaction) SaveIdentifier(ctx context.Context, pid *models.PersistentIdentifier) error {
	query := `
		INSERT INTO identifiers (` + identifierColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pid_type, pid_value) DO UPDATE SET
			status = EXCLUDED.status,
			target_id = EXCLUDED.target_id,
			updated_at = EXCLUDED.updated_at`

	_, err := t.tx.ExecContext(ctx, query, pid.Type, pid.Value, pid.Status, pid.TargetID, pid.CreatedAt, pid.UpdatedAt)
	if err != nil {
		return persistence.NewEntityError("SaveIdentifier", string(pid.Type), pid.Value, err)
	}

	return nil
}

func (t *transaction) DeleteIdentifier(ctx context.Context, pidType models.PIDType, value string) error {
	return t.deleteRow(ctx, "DeleteIdentifier", string(pidType), value, persistence.ErrIdentifierNotFound,
		`DELETE FROM identifiers WHERE pid_type = $1 AND pid_value = $2`, pidType, value)
}

func scanIdentifier(row sqlbase.Scanner) (*models.PersistentIdentifier, error) {
	var pid models.PersistentIdentifier

	err := row.Scan(&pid.Type, &pid.Value, &pid.Status, &pid.TargetID, &pid.CreatedAt, &pid.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &pid, nil
}

func (t *transaction) deleteRow(ctx context.Context, op, entity, id string, notFound error, query string, args ...any) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewEntityError(op, entity, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError(op, entity, id, notFound)
	}

	return nil
}

func (t *transaction) readError(op, entity, id string, notFound, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewEntityError(op, entity, id, notFound)
	}

	t.logger.Error("query failed", "op", op, "entity", entity, "id", id, "error", err)

	return persistence.NewEntityError(op, entity, id, err)
}
