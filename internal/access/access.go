// Package access decides who may view or edit a quest.
//
// THE RULES:
//
//	CanView = owner
//	       OR (quest.visible_to_institution AND same institution)
//	       OR member of the quest's viewers
//	       OR member of the quest's authors
//
//	CanEdit = owner OR member of the quest's authors
//
// Every editor is also a viewer: each CanEdit branch is a CanView branch.
//
// The rule itself is a pure function over (person, quest, membership) so it
// can be tested exhaustively. Evaluator adds the single membership lookup
// needed to feed it from storage.
package access

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
)

var tracer = otel.Tracer("github.com/mundorum/harena/internal/access")

// IsOwner reports whether the person owns the quest.
func IsOwner(p *model.Person, q *model.Quest) bool {
	return p != nil && q != nil && p.UserID == q.OwnerID
}

// CanView applies the view rule.
func CanView(p *model.Person, q *model.Quest, m model.Membership) bool {
	if p == nil || q == nil {
		return false
	}
	if IsOwner(p, q) {
		return true
	}
	if q.VisibleToInstitution && p.SameInstitution(q.InstitutionID) {
		return true
	}
	return m.Viewer || m.Author
}

// CanEdit applies the edit rule.
func CanEdit(p *model.Person, q *model.Quest, m model.Membership) bool {
	if p == nil || q == nil {
		return false
	}
	return IsOwner(p, q) || m.Author
}

// Permissions is the outcome of evaluating both rules for one pair.
type Permissions struct {
	View bool `json:"can_view"`
	Edit bool `json:"can_edit"`
}

// MembershipReader is the storage the evaluator needs.
type MembershipReader interface {
	Membership(ctx context.Context, questID, personID string) (model.Membership, error)
}

// Evaluator resolves permissions against stored memberships.
type Evaluator struct {
	members MembershipReader
}

func NewEvaluator(members MembershipReader) *Evaluator {
	return &Evaluator{members: members}
}

// Permissions loads the person's membership of the quest and applies both
// rules. Owners skip the lookup.
func (e *Evaluator) Permissions(ctx context.Context, p *model.Person, q *model.Quest) (Permissions, error) {
	ctx, span := tracer.Start(ctx, "access.Permissions",
		trace.WithAttributes(attribute.String("quest.id", q.ID)),
	)
	defer span.End()

	if IsOwner(p, q) {
		return Permissions{View: true, Edit: true}, nil
	}

	var m model.Membership
	if p != nil {
		var err error
		m, err = e.members.Membership(ctx, q.ID, p.UserID)
		if err != nil {
			span.RecordError(err)
			return Permissions{}, fmt.Errorf("access: loading membership: %w", err)
		}
	}

	perms := Permissions{View: CanView(p, q, m), Edit: CanEdit(p, q, m)}
	span.SetAttributes(
		attribute.Bool("access.view", perms.View),
		attribute.Bool("access.edit", perms.Edit),
	)
	return perms, nil
}

// RequireView returns apperror.ErrForbidden unless the person can view q.
func (e *Evaluator) RequireView(ctx context.Context, p *model.Person, q *model.Quest) error {
	perms, err := e.Permissions(ctx, p, q)
	if err != nil {
		return err
	}
	if !perms.View {
		return apperror.Forbidden("you do not have permission to view this quest")
	}
	return nil
}

// RequireEdit returns apperror.ErrForbidden unless the person can edit q.
func (e *Evaluator) RequireEdit(ctx context.Context, p *model.Person, q *model.Quest) error {
	perms, err := e.Permissions(ctx, p, q)
	if err != nil {
		return err
	}
	if !perms.Edit {
		return apperror.Forbidden("you do not have permission to edit this quest")
	}
	return nil
}
