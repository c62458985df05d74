package persistence

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/ports"
	"github.com/inkwell/contractflow/internal/usecase"
	"github.com/inkwell/contractflow/migrations"
)

// openTestDB connects to TEST_DATABASE_URL and recreates the schema.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { db.Close() })

	apply := func(suffix string, reverse bool) {
		names, err := fs.Glob(migrations.FS, "*"+suffix)
		require.NoError(t, err)
		sort.Strings(names)
		if reverse {
			sort.Sort(sort.Reverse(sort.StringSlice(names)))
		}
		for _, name := range names {
			b, err := migrations.FS.ReadFile(name)
			require.NoError(t, err)
			_, err = db.Exec(string(b))
			require.NoError(t, err, name)
		}
	}
	apply(".down.sql", true)
	apply(".up.sql", false)
	return db
}

func seedContract(t *testing.T, store ports.Store) *domain.Contract {
	t.Helper()
	c := domain.NewContract("owner", domain.ContractDetails{Title: "Supply", Value: 99.5, Currency: "EUR"})
	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Contracts().Create(ctx, c); err != nil {
			return err
		}
		return tx.Collaborators().Create(ctx, domain.NewCollaborator(c.ID, "owner", domain.RoleOwner))
	})
	require.NoError(t, err)
	return c
}

func TestPostgresStore_ContractRoundTrip(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	ctx := context.Background()
	c := seedContract(t, store)

	err := store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		got, err := tx.Contracts().Lock(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Title, got.Title)
		assert.Equal(t, domain.StageDraft, got.CurrentStage)
		assert.InDelta(t, 99.5, got.Value, 0.001)

		require.NoError(t, tx.Contracts().CompareAndSwapStage(ctx, c.ID, domain.StageDraft, domain.StagePendingReview, c.UpdatedAt))
		err = tx.Contracts().CompareAndSwapStage(ctx, c.ID, domain.StageDraft, domain.StagePendingReview, c.UpdatedAt)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		return nil
	})
	require.NoError(t, err)

	_ = store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.Contracts().FindByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrContractNotFound)
		return nil
	})
}

func TestPostgresStore_DuplicateCollaborator(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	c := seedContract(t, store)

	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Collaborators().Create(ctx, domain.NewCollaborator(c.ID, "owner", domain.RoleViewer))
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCollaborator)
}

func TestPostgresStore_DraftTokenCompareAndSwap(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	ctx := context.Background()
	c := seedContract(t, store)

	first := domain.NextDraft(c.ID, domain.StageDraft, "one", "owner")
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, first, "")
	}))

	second := domain.NextDraft(c.ID, domain.StageDraft, "two", "owner")
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, second, first.VersionToken)
	}))

	err := store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Drafts().Save(ctx, domain.NextDraft(c.ID, domain.StageDraft, "three", "owner"), first.VersionToken)
	})
	var stale *domain.StaleDraftError
	require.ErrorAs(t, err, &stale)
	require.NotNil(t, stale.Current)
	assert.Equal(t, "two", stale.Current.Body)
}

func TestPostgresStore_AuditFailureRollsBack(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	ctx := context.Background()
	c := seedContract(t, store)

	err := store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Contracts().CompareAndSwapStage(ctx, c.ID, domain.StageDraft, domain.StagePendingReview, c.UpdatedAt); err != nil {
			return err
		}
		entry := domain.NewAuditEntry(nil, c.ID, "owner", domain.TransitionAuditAction(domain.ActionSubmitForReview), nil, "")
		entry.Sequence = 0 // violates the sequence check constraint
		return tx.Audit().Append(ctx, entry)
	})
	require.Error(t, err)

	_ = store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		got, err := tx.Contracts().FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageDraft, got.CurrentStage)
		return nil
	})
}

func TestPostgresStore_EngineLifecycle(t *testing.T) {
	store := NewPostgresStore(openTestDB(t))
	engine := usecase.NewEngine(usecase.Dependencies{Store: store})
	ctx := usecase.WithClientIP(context.Background(), "192.0.2.10")

	c, err := engine.Contracts.Create(ctx, "alice", domain.ContractDetails{Title: "Consulting"})
	require.NoError(t, err)
	_, err = engine.Collaborators.Add(ctx, c.ID, "bob", domain.RoleReviewer, "alice")
	require.NoError(t, err)

	current, err := engine.Drafts.Current(ctx, c.ID, "alice")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Drafts.Save(ctx, c.ID, domain.StageDraft, strings.Repeat("x", i+1), "alice", current.VersionToken)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, success)

	_, err = engine.Stages.Transition(ctx, c.ID, domain.ActionSubmitForReview, "alice", "")
	require.NoError(t, err)
	_, err = engine.Stages.Transition(ctx, c.ID, domain.ActionApprove, "bob", "")
	require.NoError(t, err)
	_, err = engine.Stages.Transition(ctx, c.ID, domain.ActionPublish, "alice", "final")
	require.NoError(t, err)

	body, err := engine.Contracts.PublishedBody(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, body)

	report, err := engine.Audit.Verify(ctx, c.ID, "alice")
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)

	entries, _, err := engine.Audit.Query(ctx, c.ID, "alice", domain.AuditFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "192.0.2.10", entries[0].IPAddress)
}
