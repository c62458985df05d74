package usecase

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/ports"
)

func TestStageMachine_Transition(t *testing.T) {
	tests := []struct {
		name    string
		setup   []domain.Action
		action  domain.Action
		actor   string
		want    domain.Stage
		wantErr error
	}{
		{"editor submits", nil, domain.ActionSubmitForReview, editorID, domain.StagePendingReview, nil},
		{"reviewer cannot submit", nil, domain.ActionSubmitForReview, reviewerID, "", domain.ErrPermissionDenied},
		{"approve from draft", nil, domain.ActionApprove, reviewerID, "", domain.ErrInvalidTransition},
		{"viewer approve from draft hits missing edge first", nil, domain.ActionApprove, viewerID, "", domain.ErrInvalidTransition},
		{"reviewer approves", []domain.Action{domain.ActionSubmitForReview}, domain.ActionApprove, reviewerID, domain.StageApproved, nil},
		{"reviewer rejects", []domain.Action{domain.ActionSubmitForReview}, domain.ActionReject, reviewerID, domain.StageRejected, nil},
		{"viewer cannot approve", []domain.Action{domain.ActionSubmitForReview}, domain.ActionApprove, viewerID, "", domain.ErrPermissionDenied},
		{"owner publishes", []domain.Action{domain.ActionSubmitForReview, domain.ActionApprove}, domain.ActionPublish, ownerID, domain.StagePublished, nil},
		{"editor cannot publish", []domain.Action{domain.ActionSubmitForReview, domain.ActionApprove}, domain.ActionPublish, editorID, "", domain.ErrPermissionDenied},
		{"rejected is terminal", []domain.Action{domain.ActionSubmitForReview, domain.ActionReject}, domain.ActionResume, ownerID, "", domain.ErrInvalidTransition},
		{"stranger", nil, domain.ActionSubmitForReview, strangerID, "", domain.ErrNotACollaborator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.newContract(t)
			for _, a := range tt.setup {
				f.transition(t, c.ID, a, ownerID)
			}
			before := f.stage(t, c.ID)
			auditBefore := f.auditLen(t, c.ID)

			got, err := f.engine.Stages.Transition(f.ctx, c.ID, tt.action, tt.actor, "looks good")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, f.stage(t, c.ID))
				assert.Equal(t, auditBefore, f.auditLen(t, c.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.CurrentStage)
			assert.Equal(t, tt.want, f.stage(t, c.ID))
			assert.Equal(t, auditBefore+1, f.auditLen(t, c.ID))
		})
	}
}

func TestStageMachine_ConcurrentApprovals(t *testing.T) {
	f := newFixture(t)
	c := f.newContract(t)
	f.transition(t, c.ID, domain.ActionSubmitForReview, editorID)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Stages.Transition(f.ctx, c.ID, domain.ActionApprove, reviewerID, "")
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, domain.StageApproved, f.stage(t, c.ID))
}

func TestStageMachine_PublishFinalizesDrafts(t *testing.T) {
	f := newFixture(t)
	cache := new(MockBodyCache)
	f.engine = NewEngine(Dependencies{Store: f.store, Cache: cache})
	c := f.newContract(t)
	f.saveDraft(t, c.ID, editorID, "final terms")
	f.transition(t, c.ID, domain.ActionSubmitForReview, editorID)
	f.transition(t, c.ID, domain.ActionApprove, reviewerID)

	cache.On("Invalidate", mock.Anything, c.ID).Return(nil).Once()
	f.transition(t, c.ID, domain.ActionPublish, ownerID)
	cache.AssertExpectations(t)

	current, err := f.engine.Drafts.Current(f.ctx, c.ID, ownerID)
	require.NoError(t, err)
	assert.Empty(t, current.VersionToken)

	_, err = f.engine.Drafts.Save(f.ctx, c.ID, domain.StagePublished, "more", ownerID, "")
	require.ErrorIs(t, err, domain.ErrInvalidStageForWrite)

	versions, err := f.engine.Versions.List(f.ctx, c.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "final terms", versions[0].SnapshotBody)
}

func TestStageMachine_NotifiesAfterCommit(t *testing.T) {
	f := newFixture(t)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	f.engine = NewEngine(Dependencies{Store: f.store, Notifier: notifier})
	c := f.newContract(t)

	f.transition(t, c.ID, domain.ActionSubmitForReview, editorID)
	_, err := f.engine.Stages.Transition(f.ctx, c.ID, domain.ActionPublish, ownerID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(e ports.Event) bool {
		return e.ContractID == c.ID &&
			e.ActorID == editorID &&
			e.Action == domain.TransitionAuditAction(domain.ActionSubmitForReview)
	}))
	for _, call := range notifier.Calls {
		e := call.Arguments.Get(1).(ports.Event)
		assert.NotEqual(t, domain.TransitionAuditAction(domain.ActionPublish), e.Action)
	}
}

func TestStageMachine_NotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("webhook down"))
	f.engine = NewEngine(Dependencies{Store: f.store, Notifier: notifier})
	c := f.newContract(t)

	got, err := f.engine.Stages.Transition(f.ctx, c.ID, domain.ActionSubmitForReview, editorID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StagePendingReview, got.CurrentStage)
}
