package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
)

// transaction works on a private copy of the store that replaces it on commit.
// Entities are cloned on the way in and out so callers never alias stored state.
type transaction struct {
	state *snapshot
	dirty bool
}

func (t *transaction) ParentByID(_ context.Context, id string) (*models.ParentRecord, error) {
	parent, ok := t.state.Parents[id]
	if !ok {
		return nil, persistence.NewEntityError("ParentByID", "parent", id, persistence.ErrParentNotFound)
	}

	return parent.Clone(), nil
}

func (t *transaction) SaveParent(_ context.Context, parent *models.ParentRecord) error {
	t.state.Parents[parent.ID] = parent.Clone()

	t.dirty = true

	return nil
}

func (t *transaction) DeleteParent(_ context.Context, id string) error {
	if _, ok := t.state.Parents[id]; !ok {
		return persistence.NewEntityError("DeleteParent", "parent", id, persistence.ErrParentNotFound)
	}

	delete(t.state.Parents, id)

	t.dirty = true

	return nil
}

func (t *transaction) ParentStateByID(_ context.Context, parentID string) (*models.ParentState, error) {
	state, ok := t.state.ParentStates[parentID]
	if !ok {
		return nil, persistence.NewEntityError("ParentStateByID", "parent state", parentID, persistence.ErrParentStateNotFound)
	}

	return state.Clone(), nil
}

func (t *transaction) SaveParentState(_ context.Context, state *models.ParentState) error {
	t.state.ParentStates[state.ParentID] = state.Clone()

	t.dirty = true

	return nil
}

func (t *transaction) DeleteParentState(_ context.Context, parentID string) error {
	delete(t.state.ParentStates, parentID)

	t.dirty = true

	return nil
}

func (t *transaction) CountParentReferences(_ context.Context, parentID string) (int, error) {
	count := 0

	for _, draft := range t.state.Drafts {
		if draft.ParentID == parentID {
			count++
		}
	}

	for _, record := range t.state.Records {
		if record.ParentID == parentID {
			count++
		}
	}

	return count, nil
}

func (t *transaction) DraftByID(_ context.Context, id string, withDeleted bool) (*models.Draft, error) {
	draft, ok := t.state.Drafts[id]
	if !ok || (draft.IsDeleted() && !withDeleted) {
		return nil, persistence.NewEntityError("DraftByID", "draft", id, persistence.ErrDraftNotFound)
	}

	return draft.Clone(), nil
}

func (t *transaction) SaveDraft(_ context.Context, draft *models.Draft) error {
	t.state.Drafts[draft.ID] = draft.Clone()

	t.dirty = true

	return nil
}

func (t *transaction) DeleteDraft(_ context.Context, id string) error {
	if _, ok := t.state.Drafts[id]; !ok {
		return persistence.NewEntityError("DeleteDraft", "draft", id, persistence.ErrDraftNotFound)
	}

	delete(t.state.Drafts, id)

	t.dirty = true

	return nil
}

func (t *transaction) ExpiredDrafts(_ context.Context, now time.Time) ([]*models.Draft, error) {
	expired := make([]*models.Draft, 0)

	for _, draft := range t.state.Drafts {
		if !draft.IsDeleted() && draft.Expired(now) {
			expired = append(expired, draft.Clone())
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt)
	})

	return expired, nil
}

func (t *transaction) RecordByID(_ context.Context, id string) (*models.Record, error) {
	record, ok := t.state.Records[id]
	if !ok {
		return nil, persistence.NewEntityError("RecordByID", "record", id, persistence.ErrRecordNotFound)
	}

	return record.Clone(), nil
}

func (t *transaction) SaveRecord(_ context.Context, record *models.Record) error {
	t.state.Records[record.ID] = record.Clone()

	t.dirty = true

	return nil
}

func (t *transaction) IdentifierByValue(_ context.Context, pidType models.PIDType, value string) (*models.PersistentIdentifier, error) {
	pid, ok := t.state.Identifiers[identifierKey(pidType, value)]
	if !ok {
		return nil, persistence.NewEntityError("IdentifierByValue", string(pidType), value, persistence.ErrIdentifierNotFound)
	}

	return pid.Clone(), nil
}

func (t *transaction) IdentifierByTarget(_ context.Context, pidType models.PIDType, targetID string) (*models.PersistentIdentifier, error) {
	for _, pid := range t.state.Identifiers {
		if pid.Type == pidType && pid.TargetID == targetID {
			return pid.Clone(), nil
		}
	}

	return nil, persistence.NewEntityError("IdentifierByTarget", string(pidType), targetID, persistence.ErrIdentifierNotFound)
}

func (t *transaction) SaveIdentifier(_ context.Context, pid *models.PersistentIdentifier) error {
	t.state.Identifiers[identifierKey(pid.Type, pid.Value)] = pid.Clone()

	t.dirty = true

	return nil
}

func (t *transaction) DeleteIdentifier(_ context.Context, pidType models.PIDType, value string) error {
	key := identifierKey(pidType, value)
	if _, ok := t.state.Identifiers[key]; !ok {
		return persistence.NewEntityError("DeleteIdentifier", string(pidType), value, persistence.ErrIdentifierNotFound)
	}

	delete(t.state.Identifiers, key)

	t.dirty = true

	return nil
}
