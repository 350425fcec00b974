// Package permissions decides which identities may run which workflow actions.
package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/drafts/pkg/models"
)

type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionReadDraft    Action = "read_draft"
	ActionUpdateDraft  Action = "update_draft"
	ActionDeleteDraft  Action = "delete_draft"
	ActionPublish      Action = "publish"
	ActionEdit         Action = "can_edit"
	ActionNewVersion   Action = "can_new_version"
	ActionSearch       Action = "search"
	ActionSearchDrafts Action = "search_drafts"
)

var ErrPermissionDenied = errors.New("permission denied")

// Resource is anything an action can target. A nil resource means the action is global.
type Resource interface {
	Owner() string
}

// Checker allows or denies an action.
type Checker interface {
	Require(ctx context.Context, identity models.Identity, action Action, resource Resource) error
}

// DeniedError reports which action was refused to whom.
type DeniedError struct {
	Action   Action
	Identity string
}

func (e *DeniedError) Error() string {
	who := e.Identity
	if who == "" {
		who = "anonymous"
	}

	return fmt.Sprintf("%s is not allowed to %s: %v", who, e.Action, ErrPermissionDenied)
}

func (e *DeniedError) Unwrap() error {
	return ErrPermissionDenied
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func deny(identity models.Identity, action Action) error {
	return &DeniedError{Action: action, Identity: identity.ID}
}
