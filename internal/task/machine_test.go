package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/taskboard/internal/domain"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
)

// hookedStore runs afterGet after every successful GetTask, numbering the
// calls from 1. A non-nil return replaces the result with that error.
type hookedStore struct {
	*store.SQLiteStore

	mu       sync.Mutex
	gets     int
	afterGet func(call int) error
}

func (h *hookedStore) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := h.SQLiteStore.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.gets++
	call := h.gets
	h.mu.Unlock()
	if h.afterGet != nil {
		if err := h.afterGet(call); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func TestUpdate_ExecutorMovesToAtWork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	updated, err := f.svc.Update(context.Background(), alice, created.ID, UpdateRequest{Status: ptr("at work")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAtWork, updated.Status)

	stored, err := f.store.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAtWork, stored.Status)
}

func TestUpdate_UserCannotChangeDetails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	_, err := f.svc.Update(context.Background(), alice, created.ID, UpdateRequest{
		Status:      ptr("at work"),
		Description: ptr("x"),
	})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	stored, err := f.store.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, stored.Status)
	assert.Empty(t, stored.Description)
	assert.Empty(t, f.notifier.deliveries())
}

func TestUpdate_NonExecutorUserDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	mallory := f.user(t, "mallory", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	_, err := f.svc.Update(context.Background(), mallory, created.ID, UpdateRequest{Status: ptr("at work")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestUpdate_StatusOutsideRoleSet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	_, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Status: ptr("at work")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.Update(context.Background(), alice, created.ID, UpdateRequest{Status: ptr("finished")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestUpdate_UnknownStatusIsValidationError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	created := f.task(t, boss)

	_, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Status: ptr("sleeping")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdate_AdminDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	root := f.user(t, "root", domain.RoleAdmin)
	created := f.task(t, boss)

	_, err := f.svc.Update(context.Background(), root, created.ID, UpdateRequest{Description: ptr("x")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestUpdate_TerminalStatusIsFinal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	_, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Status: ptr("finished")})
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), alice, created.ID, UpdateRequest{Status: ptr("at work")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Status: ptr("frozen")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	// Details stay editable.
	updated, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Description: ptr("closed")})
	require.NoError(t, err)
	assert.Equal(t, "closed", updated.Description)
	assert.Equal(t, domain.StatusFinished, updated.Status)
}

func TestUpdate_ManagerAddsExecutorsAsUnion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	bob := f.user(t, "bob", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	updated, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{
		Executors: []domain.UserID{alice.ID, bob.ID},
		Urgency:   ptr(true),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.UserID{alice.ID, bob.ID}, updated.ExecutorIDs())
	assert.True(t, updated.Urgency)
}

func TestUpdate_ExecutorMustBeExistingUserRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	other := f.user(t, "other", domain.RoleManager)
	created := f.task(t, boss)

	_, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Executors: []domain.UserID{999}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{Executors: []domain.UserID{other.ID}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.store.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Executors)
}

func TestUpdate_NotifiesCreatorAndAllExecutorsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	bob := f.user(t, "bob", domain.RoleUser)
	carol := f.user(t, "carol", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	_, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{
		Executors: []domain.UserID{bob.ID},
	})
	require.NoError(t, err)

	calls := f.notifier.deliveries()
	require.Len(t, calls, 1)
	assert.Equal(t, notify.TaskUpdated, calls[0].event.Kind)
	assert.Equal(t, fmt.Sprintf("boss update the task #%d", created.ID), calls[0].event.Message)
	assert.ElementsMatch(t, []domain.UserID{boss.ID, alice.ID, bob.ID}, calls[0].recipients)
	assert.NotContains(t, calls[0].recipients, carol.ID)
}

func TestUpdate_EmptyRequestIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)
	created := f.task(t, boss)

	got, err := f.svc.Update(context.Background(), boss, created.ID, UpdateRequest{})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Empty(t, f.notifier.deliveries())
}

func TestUpdate_UnknownTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boss := f.user(t, "boss", domain.RoleManager)

	_, err := f.svc.Update(context.Background(), boss, 404, UpdateRequest{Status: ptr("frozen")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    domain.Role
		from    domain.Status
		to      domain.Status
		allowed bool
	}{
		{domain.RoleUser, domain.StatusCreated, domain.StatusAtWork, true},
		{domain.RoleUser, domain.StatusAtWork, domain.StatusOnCheck, true},
		{domain.RoleUser, domain.StatusOnCheck, domain.StatusAtWork, true},
		{domain.RoleUser, domain.StatusCreated, domain.StatusFinished, false},
		{domain.RoleManager, domain.StatusOnCheck, domain.StatusFinished, true},
		{domain.RoleManager, domain.StatusCreated, domain.StatusFrozen, true},
		{domain.RoleManager, domain.StatusCreated, domain.StatusOnCheck, false},
		{domain.RoleManager, domain.StatusCancel, domain.StatusFinished, false},
		{domain.RoleUser, domain.StatusFrozen, domain.StatusAtWork, false},
		{domain.RoleAdmin, domain.StatusCreated, domain.StatusFinished, false},
	}
	for _, tt := range tests {
		err := checkTransition(tt.role, tt.from, tt.to)
		if tt.allowed {
			assert.NoError(t, err, "%s: %s -> %s", tt.role, tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, domain.ErrPermissionDenied, "%s: %s -> %s", tt.role, tt.from, tt.to)
		}
	}
}

func TestUpdate_StatusFinishedBetweenReadAndWrite(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	hooked := &hookedStore{SQLiteStore: f.store}
	hooked.afterGet = func(call int) error {
		if call == 1 {
			_, err := f.svc.Update(ctx, boss, created.ID, UpdateRequest{Status: ptr("finished")})
			require.NoError(t, err)
		}
		return nil
	}
	svc := NewService(hooked, f.notifier, f.mailer)

	_, err := svc.Update(ctx, alice, created.ID, UpdateRequest{Status: ptr("at work")})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	stored, err := f.store.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, stored.Status)

	calls := f.notifier.deliveries()
	require.Len(t, calls, 1)
	assert.Equal(t, fmt.Sprintf("boss update the task #%d", created.ID), calls[0].event.Message)
}

func TestUpdate_ConcurrentManagerEditsKeepBothFields(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	boss := f.user(t, "boss", domain.RoleManager)
	lead := f.user(t, "lead", domain.RoleManager)
	created := f.task(t, boss)

	hooked := &hookedStore{SQLiteStore: f.store}
	hooked.afterGet = func(call int) error {
		if call == 1 {
			_, err := f.svc.Update(ctx, lead, created.ID, UpdateRequest{Urgency: ptr(true)})
			require.NoError(t, err)
		}
		return nil
	}
	svc := NewService(hooked, f.notifier, f.mailer)

	updated, err := svc.Update(ctx, boss, created.ID, UpdateRequest{Description: ptr("ship it")})
	require.NoError(t, err)
	assert.Equal(t, "ship it", updated.Description)
	assert.True(t, updated.Urgency)
}

func TestUpdate_ConcurrentFinishAndStartNeverReopens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)

	var ids []int64
	for range 10 {
		ids = append(ids, f.task(t, boss, alice.ID).ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*len(ids))
	for _, id := range ids {
		wg.Go(func() {
			_, err := f.svc.Update(ctx, boss, id, UpdateRequest{Status: ptr("finished")})
			errs <- err
		})
		wg.Go(func() {
			_, err := f.svc.Update(ctx, alice, id, UpdateRequest{Status: ptr("at work")})
			if errors.Is(err, domain.ErrPermissionDenied) {
				err = nil
			}
			errs <- err
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for _, id := range ids {
		stored, err := f.store.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, stored.Status, "task %d", id)
	}
}

func TestUpdate_ReloadFailureStillNotifies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	bob := f.user(t, "bob", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	hooked := &hookedStore{SQLiteStore: f.store}
	hooked.afterGet = func(call int) error {
		if call == 2 {
			return errors.New("database is locked")
		}
		return nil
	}
	svc := NewService(hooked, f.notifier, f.mailer)

	updated, err := svc.Update(ctx, boss, created.ID, UpdateRequest{
		Description: ptr("handover"),
		Executors:   []domain.UserID{bob.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "handover", updated.Description)
	assert.ElementsMatch(t, []domain.UserID{alice.ID, bob.ID}, updated.ExecutorIDs())

	calls := f.notifier.deliveries()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []domain.UserID{boss.ID, alice.ID, bob.ID}, calls[0].recipients)
}

func TestUpdate_ExistingExecutorIsNotRevalidated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	boss := f.user(t, "boss", domain.RoleManager)
	alice := f.user(t, "alice", domain.RoleUser)
	bob := f.user(t, "bob", domain.RoleUser)
	created := f.task(t, boss, alice.ID)

	alice.Role = domain.RoleManager
	require.NoError(t, f.store.UpdateUser(ctx, alice))

	updated, err := f.svc.Update(ctx, boss, created.ID, UpdateRequest{
		Description: ptr("reassigned"),
		Executors:   []domain.UserID{alice.ID, bob.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "reassigned", updated.Description)
	assert.ElementsMatch(t, []domain.UserID{alice.ID, bob.ID}, updated.ExecutorIDs())
}
