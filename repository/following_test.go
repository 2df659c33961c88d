package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ao3/models"
)

func newFollowingRepo(t *testing.T, source *fakeSource) (*FollowingRepository, *WorkRepository) {
	t.Helper()
	conn := openTestDB(t)
	works := NewWorkRepository(conn, source)
	return NewFollowingRepository(conn, works, source), works
}

func TestFollowUnfollow(t *testing.T) {
	repo, _ := newFollowingRepo(t, newFakeSource())
	ctx := context.Background()

	require.NoError(t, repo.FollowWork(ctx, "999", "Sample Work", 3))
	require.NoError(t, repo.FollowAuthor(ctx, "alice", "alice"))

	following, err := repo.IsFollowing(ctx, "999")
	require.NoError(t, err)
	assert.True(t, following)

	workFollows, err := repo.ByType(ctx, models.FollowWork)
	require.NoError(t, err)
	require.Len(t, workFollows, 1)
	assert.Equal(t, 3, workFollows[0].LastKnownChapters)

	authorFollows, err := repo.ByType(ctx, models.FollowAuthor)
	require.NoError(t, err)
	assert.Len(t, authorFollows, 1)

	require.NoError(t, repo.Unfollow(ctx, "999"))
	following, err = repo.IsFollowing(ctx, "999")
	require.NoError(t, err)
	assert.False(t, following)
}

func TestFollowWorkTwiceKeepsBaseline(t *testing.T) {
	repo, _ := newFollowingRepo(t, newFakeSource())
	ctx := context.Background()

	require.NoError(t, repo.FollowWork(ctx, "999", "Sample Work", 3))
	require.NoError(t, repo.FollowWork(ctx, "999", "Sample Work", 9))

	followed, err := repo.ByType(ctx, models.FollowWork)
	require.NoError(t, err)
	require.Len(t, followed, 1)
	assert.Equal(t, 3, followed[0].LastKnownChapters, "second follow is a no-op")
}

func TestCheckForUpdatesCountsGains(t *testing.T) {
	source := newFakeSource()
	repo, works := newFollowingRepo(t, source)
	ctx := context.Background()

	grown := sampleWork("1")
	grown.CurrentChapters = 5
	source.works["1"] = grown
	unchanged := sampleWork("3")
	unchanged.CurrentChapters = 3
	source.works["3"] = unchanged
	source.errByWork["2"] = errors.New("HTTP 503: down")

	require.NoError(t, repo.FollowWork(ctx, "1", "Grown", 3))
	require.NoError(t, repo.FollowWork(ctx, "2", "Broken", 3))
	require.NoError(t, repo.FollowWork(ctx, "3", "Unchanged", 3))

	count, err := repo.CheckForUpdates(ctx)
	require.NoError(t, err, "one broken item must not fail the batch")
	assert.Equal(t, 1, count)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	byID := make(map[string]models.Following)
	for _, f := range all {
		byID[f.ID] = f
	}

	assert.True(t, byID["1"].HasUpdate)
	assert.Equal(t, 5, byID["1"].LastKnownChapters)
	require.NotNil(t, byID["1"].LastChecked)

	assert.False(t, byID["2"].HasUpdate)
	assert.Nil(t, byID["2"].LastChecked, "failed item keeps its old state")
	assert.Equal(t, 3, byID["2"].LastKnownChapters)

	assert.False(t, byID["3"].HasUpdate)
	require.NotNil(t, byID["3"].LastChecked)

	// The refreshed work landed in the cache.
	cached, err := works.WorkOnce(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 5, cached.CurrentChapters)
}

func TestCheckForUpdatesFlagStaysUntilRead(t *testing.T) {
	source := newFakeSource()
	repo, _ := newFollowingRepo(t, source)
	ctx := context.Background()

	grown := sampleWork("1")
	grown.CurrentChapters = 5
	source.works["1"] = grown
	require.NoError(t, repo.FollowWork(ctx, "1", "Grown", 3))

	count, err := repo.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A second check with no further growth must not clear the flag.
	count, err = repo.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	withUpdates, err := repo.WithUpdates(ctx)
	require.NoError(t, err)
	require.Len(t, withUpdates, 1)

	n, err := repo.UpdateCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, repo.MarkUpdateRead(ctx, "1"))
	n, err = repo.UpdateCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckForUpdatesSkipsAuthors(t *testing.T) {
	source := newFakeSource()
	repo, _ := newFollowingRepo(t, source)
	ctx := context.Background()

	require.NoError(t, repo.FollowAuthor(ctx, "alice", "alice"))

	count, err := repo.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, source.getWorkCalls)
}
