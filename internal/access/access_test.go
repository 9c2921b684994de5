package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
)

func strPtr(s string) *string { return &s }

// TestRules_Exhaustive walks every combination of the inputs that matter
// and checks both rules against their definitions.
func TestRules_Exhaustive(t *testing.T) {
	quest := func(visible bool) *model.Quest {
		return &model.Quest{ID: "q1", OwnerID: "owner", InstitutionID: "unicamp", VisibleToInstitution: visible}
	}
	institutions := []*string{nil, strPtr("unicamp"), strPtr("usp")}

	for _, owner := range []bool{false, true} {
		for _, visible := range []bool{false, true} {
			for _, inst := range institutions {
				for _, viewer := range []bool{false, true} {
					for _, author := range []bool{false, true} {
						p := &model.Person{UserID: "someone", InstitutionID: inst}
						if owner {
							p.UserID = "owner"
						}
						q := quest(visible)
						m := model.Membership{Viewer: viewer, Author: author}

						sameInst := inst != nil && *inst == "unicamp"
						wantView := owner || (visible && sameInst) || viewer || author
						wantEdit := owner || author

						gotView := CanView(p, q, m)
						gotEdit := CanEdit(p, q, m)

						if gotView != wantView {
							t.Errorf("CanView(owner=%v visible=%v inst=%v viewer=%v author=%v) = %v, want %v",
								owner, visible, inst, viewer, author, gotView, wantView)
						}
						if gotEdit != wantEdit {
							t.Errorf("CanEdit(owner=%v author=%v) = %v, want %v", owner, author, gotEdit, wantEdit)
						}
						if gotEdit && !gotView {
							t.Errorf("edit without view for owner=%v visible=%v inst=%v viewer=%v author=%v",
								owner, visible, inst, viewer, author)
						}
					}
				}
			}
		}
	}
}

func TestCanView_PersonWithoutInstitutionNeverMatchesInstitutionBranch(t *testing.T) {
	q := &model.Quest{ID: "q1", OwnerID: "owner", InstitutionID: "unicamp", VisibleToInstitution: true}
	p := &model.Person{UserID: "student"}

	assert.False(t, CanView(p, q, model.Membership{}))
	assert.False(t, CanView(nil, q, model.Membership{Viewer: true}))
}

// =========================================================================
// EVALUATOR TESTS
// =========================================================================

type fakeMembers struct {
	calls int
	m     model.Membership
	err   error
}

func (f *fakeMembers) Membership(ctx context.Context, questID, personID string) (model.Membership, error) {
	f.calls++
	return f.m, f.err
}

func TestEvaluator_OwnerSkipsLookup(t *testing.T) {
	members := &fakeMembers{}
	e := NewEvaluator(members)
	q := &model.Quest{ID: "q1", OwnerID: "owner"}

	perms, err := e.Permissions(context.Background(), &model.Person{UserID: "owner"}, q)
	require.NoError(t, err)
	assert.Equal(t, Permissions{View: true, Edit: true}, perms)
	assert.Equal(t, 0, members.calls)
}

func TestEvaluator_ViewerCannotEdit(t *testing.T) {
	e := NewEvaluator(&fakeMembers{m: model.Membership{Viewer: true}})
	q := &model.Quest{ID: "q1", OwnerID: "owner"}
	p := &model.Person{UserID: "student"}

	require.NoError(t, e.RequireView(context.Background(), p, q))

	err := e.RequireEdit(context.Background(), p, q)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "RequireEdit() error = %v", err)
}

func TestEvaluator_StrangerIsForbidden(t *testing.T) {
	e := NewEvaluator(&fakeMembers{})
	q := &model.Quest{ID: "q1", OwnerID: "owner", InstitutionID: "unicamp"}
	p := &model.Person{UserID: "student", InstitutionID: strPtr("unicamp")}

	err := e.RequireView(context.Background(), p, q)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "RequireView() error = %v", err)
}

func TestEvaluator_LookupErrorIsNotForbidden(t *testing.T) {
	e := NewEvaluator(&fakeMembers{err: errors.New("db down")})
	q := &model.Quest{ID: "q1", OwnerID: "owner"}

	err := e.RequireView(context.Background(), &model.Person{UserID: "x"}, q)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrForbidden))
}
