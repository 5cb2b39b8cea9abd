package routine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

var repoStub = NewRepositoryStub()
var clock = &utils.MockClock{FixedNow: time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)}

var service Service

func setup(t *testing.T) func() {
	service = NewService(repoStub, clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Reset()
	}
}

func strPtr(s string) *string {
	return &s
}

func TestServiceImpl_Create(t *testing.T) {
	t.Run("should create a routine with parsed phases", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		r, err := service.Create(ctx, "  Morning ", "## Wake\n- Water\n- Stretch 10min *2", "teal", "")

		// then
		require.NoError(t, err)
		assert.Equal(t, "Morning", r.Name)
		assert.Equal(t, clock.Now(), r.CreatedAt)
		assert.Len(t, r.Items(), 2)
		stored, err := service.List(ctx)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, r.Id, stored[0].Id)
	})

	t.Run("should reject an empty name", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.Create(ctx, "   ", "- Water", "", "")

		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("should surface storage failures", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		repoStub.FailSaves(errors.New("disk full"))

		_, err := service.Create(ctx, "Morning", "- Water", "", "")

		assert.Error(t, err)
	})
}

func TestServiceImpl_Update(t *testing.T) {
	t.Run("should regenerate phases together with the text", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		r, err := service.Create(ctx, "Morning", "- Water", "", "")
		require.NoError(t, err)
		clock.Advance(time.Hour)

		// when
		updated, err := service.Update(ctx, r.Id, Update{Text: strPtr("- Water\n- Coffee *3"), Memo: strPtr("weekdays")})

		// then
		require.NoError(t, err)
		assert.Len(t, updated.Items(), 2)
		assert.Equal(t, 3, updated.Items()[1].Weight)
		assert.Equal(t, "weekdays", updated.Memo)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
		assert.True(t, SameStructure(updated.Phases(), Parse(updated.Text())))
	})

	t.Run("should keep item ids when only the name changes", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		r, _ := service.Create(ctx, "Morning", "- Water", "", "")

		updated, err := service.Update(ctx, r.Id, Update{Name: strPtr("Dawn")})

		require.NoError(t, err)
		assert.Equal(t, "Dawn", updated.Name)
		assert.Equal(t, r.Items()[0].Id, updated.Items()[0].Id)
	})

	t.Run("should fail for unknown routines", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.Update(ctx, "missing", Update{Name: strPtr("x")})

		assert.ErrorIs(t, err, ErrRoutineNotFound)
	})
}

func TestServiceImpl_DeleteAndFind(t *testing.T) {
	t.Run("should delete a routine", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		a, _ := service.Create(ctx, "A", "- One", "", "")
		b, _ := service.Create(ctx, "B", "- Two", "", "")

		require.NoError(t, service.Delete(ctx, a.Id))

		routines, _ := service.List(ctx)
		require.Len(t, routines, 1)
		assert.Equal(t, b.Id, routines[0].Id)
		assert.ErrorIs(t, service.Delete(ctx, a.Id), ErrRoutineNotFound)
	})

	t.Run("should find an item with its phase", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		r, _ := service.Create(ctx, "A", "## Wake\n- One", "", "")

		_, item, phase, err := service.FindItem(ctx, r.Id, r.Items()[0].Id)

		require.NoError(t, err)
		assert.Equal(t, "One", item.Title)
		assert.Equal(t, "Wake", phase.Title)

		_, _, _, err = service.FindItem(ctx, r.Id, "missing")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}

func TestRepository(t *testing.T) {
	t.Run("should persist routines with stable item ids", func(t *testing.T) {
		// given
		store := storage.NewStore(storage.NewMemoryBackend(), nil)
		repo := NewRepository(store)
		r := FromText("Morning", "- Water\n- Stretch")

		// when
		require.NoError(t, repo.SaveAll(ctx, []Routine{r}))
		loaded, err := repo.List(ctx)

		// then
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, r.Items()[1].Id, loaded[0].Items()[1].Id)
	})

	t.Run("should return an empty list when nothing is stored", func(t *testing.T) {
		repo := NewRepository(storage.NewStore(storage.NewMemoryBackend(), nil))

		loaded, err := repo.List(ctx)

		require.NoError(t, err)
		assert.NotNil(t, loaded)
		assert.Empty(t, loaded)
	})

	t.Run("should keep the list empty after deleting the last routine", func(t *testing.T) {
		// given
		store := storage.NewStore(storage.NewMemoryBackend(), nil)
		routines := NewService(NewRepository(store), clock)
		r, err := routines.Create(ctx, "Only", "- Water", "", "")
		require.NoError(t, err)

		// when
		err = routines.Delete(ctx, r.Id)

		// then
		require.NoError(t, err)
		loaded, err := routines.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)
		_, err = routines.Get(ctx, r.Id)
		assert.ErrorIs(t, err, ErrRoutineNotFound)
		_, found := store.GetRaw(ctx, storage.ShadowKey(storage.RoutinesKey))
		assert.False(t, found)
	})
}
