// Package persistence defines the transactional store behind the draft and record workflow.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/drafts/pkg/models"
)

// TxFunc runs inside a single store transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Transaction) error

type Persistence interface {
	// RunInTransaction runs fn atomically: every write made through tx is committed
	// together, or none is.
	RunInTransaction(ctx context.Context, fn TxFunc) error

	// HealthCheck verifies the persistence layer is healthy and accessible.
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Transaction gives access to every entity of the workflow within one transaction.
type Transaction interface {
	ParentRepository
	DraftRepository
	RecordRepository
	IdentifierRepository
}

type ParentRepository interface {
	ParentByID(ctx context.Context, id string) (*models.ParentRecord, error)
	SaveParent(ctx context.Context, parent *models.ParentRecord) error
	DeleteParent(ctx context.Context, id string) error

	ParentStateByID(ctx context.Context, parentID string) (*models.ParentState, error)
	SaveParentState(ctx context.Context, state *models.ParentState) error
	DeleteParentState(ctx context.Context, parentID string) error

	// CountParentReferences counts drafts, soft-deleted ones included, and records bound to the parent.
	CountParentReferences(ctx context.Context, parentID string) (int, error)
}

type DraftRepository interface {
	// DraftByID returns the draft with the given ID. Soft-deleted drafts are only
	// returned when withDeleted is set.
	DraftByID(ctx context.Context, id string, withDeleted bool) (*models.Draft, error)
	SaveDraft(ctx context.Context, draft *models.Draft) error
	// DeleteDraft removes the draft row permanently.
	DeleteDraft(ctx context.Context, id string) error
	// ExpiredDrafts lists live drafts whose expiry is at or before now.
	ExpiredDrafts(ctx context.Context, now time.Time) ([]*models.Draft, error)
}

type RecordRepository interface {
	RecordByID(ctx context.Context, id string) (*models.Record, error)
	SaveRecord(ctx context.Context, record *models.Record) error
}

type IdentifierRepository interface {
	IdentifierByValue(ctx context.Context, pidType models.PIDType, value string) (*models.PersistentIdentifier, error)
	IdentifierByTarget(ctx context.Context, pidType models.PIDType, targetID string) (*models.PersistentIdentifier, error)
	SaveIdentifier(ctx context.Context, pid *models.PersistentIdentifier) error
	DeleteIdentifier(ctx context.Context, pidType models.PIDType, value string) error
}
