package persistence

import (
	"context"
	"fmt"

	"github.com/dukex/drafts/pkg/models"
)

// Lineage is a parent record joined with its versioning state.
type Lineage struct {
	Parent *models.ParentRecord
	State  *models.ParentState
}

// LoadLineage loads the parent and the state the entity refers to.
func LoadLineage(ctx context.Context, tx Transaction, parentID string) (*Lineage, error) {
	parent, err := tx.ParentByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent %s: %w", parentID, err)
	}

	state, err := tx.ParentStateByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent state %s: %w", parentID, err)
	}

	return &Lineage{Parent: parent, State: state}, nil
}
