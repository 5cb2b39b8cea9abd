package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentUser(t *testing.T) {
	t.Run("should return the user stored in the context", func(t *testing.T) {
		ctx := WithUser(context.Background(), User{Uid: "u-1", Email: "a@b.c"})

		uid, err := CurrentUid(ctx)

		require.NoError(t, err)
		assert.Equal(t, "u-1", uid)
	})

	t.Run("should fail without a user", func(t *testing.T) {
		_, err := CurrentUid(context.Background())

		assert.ErrorIs(t, err, ErrNoUser)
	})

	t.Run("should treat a user without uid as missing", func(t *testing.T) {
		_, err := CurrentUser(WithUser(context.Background(), User{Email: "a@b.c"}))

		assert.ErrorIs(t, err, ErrNoUser)
	})
}
