package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/ports"
)

func seedContract(t *testing.T, s *Store) *domain.Contract {
	t.Helper()
	c := domain.NewContract("alice", domain.ContractDetails{Title: "Lease"})
	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Contracts().Create(ctx, c)
	})
	require.NoError(t, err)
	return c
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Collaborators().Create(ctx, domain.NewCollaborator(c.ID, "bob", domain.RoleViewer)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		got, err := tx.Collaborators().FindByContractAndUser(ctx, c.ID, "bob")
		assert.Nil(t, got)
		assert.Error(t, err)
		return nil
	})
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStore_DraftTokenCompareAndSwap(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)
	first := &domain.Draft{ContractID: c.ID, Stage: domain.StageDraft, Body: "a", VersionToken: domain.NewVersionToken()}

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, first, "")
	})
	require.NoError(t, err)

	next := &domain.Draft{ContractID: c.ID, Stage: domain.StageDraft, Body: "b", VersionToken: domain.NewVersionToken()}
	err = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, next, "wrong")
	})
	var stale *domain.StaleDraftError
	require.True(t, errors.As(err, &stale))
	require.NotNil(t, stale.Current)
	assert.Equal(t, "a", stale.Current.Body)
	assert.ErrorIs(t, err, domain.ErrStaleDraftConflict)

	err = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, next, first.VersionToken)
	})
	require.NoError(t, err)

	err = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, first, first.VersionToken)
	})
	assert.ErrorIs(t, err, domain.ErrStaleDraftConflict)
}

func TestStore_StageCompareAndSwap(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Contracts().CompareAndSwapStage(ctx, c.ID, domain.StageDraft, domain.StagePendingReview, c.UpdatedAt)
	})
	require.NoError(t, err)

	err = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Contracts().CompareAndSwapStage(ctx, c.ID, domain.StageDraft, domain.StagePendingReview, c.UpdatedAt)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestStore_VersionSequenceIsGapless(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Versions().Create(ctx, domain.NewVersion(c.ID, 1, "body", "", "alice"))
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Versions().Create(ctx, domain.NewVersion(c.ID, 0, "one", "", "alice")); err != nil {
			return err
		}
		seq, err := tx.Versions().LatestSequence(ctx, c.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), seq)
		return tx.Versions().Create(ctx, domain.NewVersion(c.ID, seq, "two", "", "alice"))
	})
	require.NoError(t, err)

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		latest, err := tx.Versions().Latest(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), latest.Sequence)
		assert.Equal(t, "two", latest.SnapshotBody)
		return nil
	})
}

func TestStore_CollaboratorUniquePerContract(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Collaborators().Create(ctx, domain.NewCollaborator(c.ID, "bob", domain.RoleViewer)); err != nil {
			return err
		}
		return tx.Collaborators().Create(ctx, domain.NewCollaborator(c.ID, "bob", domain.RoleEditor))
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCollaborator)

	other := seedContract(t, s)
	err = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Collaborators().Create(ctx, domain.NewCollaborator(c.ID, "bob", domain.RoleViewer)); err != nil {
			return err
		}
		return tx.Collaborators().Create(ctx, domain.NewCollaborator(other.ID, "bob", domain.RoleViewer))
	})
	require.NoError(t, err)

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		list, err := tx.Contracts().ListForUser(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, list, 2)
		return nil
	})
}

func TestStore_ReturnedRowsAreCopies(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		got, err := tx.Contracts().FindByID(ctx, c.ID)
		require.NoError(t, err)
		got.Title = "mutated"
		return nil
	})

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		got, err := tx.Contracts().FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lease", got.Title)
		return nil
	})
}

func TestStore_DraftsAreKeyedByStage(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		for _, stage := range []domain.Stage{domain.StageDraft, domain.StagePendingReview} {
			if err := tx.Drafts().Put(ctx, &domain.Draft{ContractID: c.ID, Stage: stage, Body: string(stage), VersionToken: domain.NewVersionToken()}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		d, err := tx.Drafts().Find(ctx, c.ID, domain.StagePendingReview)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, string(domain.StagePendingReview), d.Body)

		require.NoError(t, tx.Drafts().DeleteByContract(ctx, c.ID))
		d, err = tx.Drafts().Find(ctx, c.ID, domain.StageDraft)
		require.NoError(t, err)
		assert.Nil(t, d)
		return nil
	})
}

func TestStore_AuditChainAndActiveContracts(t *testing.T) {
	s := NewStore()
	c := seedContract(t, s)
	idle := seedContract(t, s)

	err := s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var prev *domain.AuditEntry
		for i := 0; i < 3; i++ {
			e := domain.NewAuditEntry(prev, c.ID, "alice", domain.AuditDraftSaved, map[string]string{"n": "x"}, "")
			if err := tx.Audit().Append(ctx, e); err != nil {
				return err
			}
			prev = e
		}
		return nil
	})
	require.NoError(t, err)

	_ = s.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		chain, err := tx.Audit().Chain(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		for i, e := range chain {
			assert.Equal(t, int64(i+1), e.Sequence)
		}
		chain[0].Details["n"] = "tampered"

		last, err := tx.Audit().Last(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), last.Sequence)

		again, err := tx.Audit().Chain(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "x", again[0].Details["n"])

		page, total, err := tx.Audit().Query(ctx, c.ID, domain.AuditFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, page, 1)

		active, err := tx.Audit().ActiveContracts(ctx, chain[0].Timestamp.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{c.ID}, active)
		assert.NotContains(t, active, idle.ID)
		return nil
	})
}
