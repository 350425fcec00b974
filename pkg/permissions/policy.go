package permissions

import (
	"context"

	"github.com/dukex/drafts/pkg/models"
)

// OwnerPolicy lets authenticated users create and search, everybody read published
// records, and only the owner or an admin touch a draft.
type OwnerPolicy struct{}

func NewOwnerPolicy() *OwnerPolicy {
	return &OwnerPolicy{}
}

func (p *OwnerPolicy) Require(_ context.Context, identity models.Identity, action Action, resource Resource) error {
	if identity.HasRole(models.RoleAdmin) || identity.HasRole(models.RoleSystem) {
		return nil
	}

	switch action {
	case ActionRead, ActionSearch:
		return nil
	case ActionCreate, ActionSearchDrafts:
		if identity.IsAnonymous() {
			return deny(identity, action)
		}

		return nil
	case ActionReadDraft, ActionUpdateDraft, ActionDeleteDraft, ActionPublish, ActionEdit, ActionNewVersion:
		if identity.IsAnonymous() || resource == nil || resource.Owner() != identity.ID {
			return deny(identity, action)
		}

		return nil
	default:
		return deny(identity, action)
	}
}

// AllowAll grants every action. Meant for tooling and tests.
type AllowAll struct{}

func (AllowAll) Require(context.Context, models.Identity, Action, Resource) error {
	return nil
}
