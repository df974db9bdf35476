package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniteams/uniteams/core/profile"
)

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProfileRepository()

	_, err := repo.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	saved, err := repo.UpsertProfile(ctx, profile.Profile{
		ID: "u1", Email: "ana@uni.test", FirstName: "Ana", Role: profile.RoleMember,
	})
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FirstName)

	// upsert keeps the original creation time
	saved2, err := repo.UpsertProfile(ctx, profile.Profile{ID: "u1", Email: "ana@uni.test", FirstName: "Anita"})
	require.NoError(t, err)
	assert.Equal(t, saved.CreatedAt, saved2.CreatedAt)

	bio := "Math tutor"
	require.NoError(t, repo.UpdateOwnProfile(ctx, "u1", profile.Update{Bio: &bio}))
	got, err = repo.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Anita", got.FirstName)
	assert.Equal(t, "Math tutor", got.Bio)

	assert.ErrorIs(t, repo.UpdateOwnProfile(ctx, "nope", profile.Update{Bio: &bio}), profile.ErrNotFound)
}
