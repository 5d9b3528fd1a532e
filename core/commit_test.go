package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/filter"
	"github.com/nasdf/geocapy/storage"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitNothingToCommit(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())
	head := repo.Head()

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	res, err := tx.Commit(ctx, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, NothingToCommit, res.Status)
	assert.ErrorIs(t, res.Status.Err(), ErrNothingToCommit)
	assert.Equal(t, head, repo.Head())

	// changes that cancel out leave nothing to commit
	tx, err = repo.Begin(ctx)
	require.NoError(t, err)
	ids, err := tx.Insert(ctx, roadName, []*feature.Feature{newRoad("Main St", 2, nil)}, false)
	require.NoError(t, err)
	_, err = tx.Delete(ctx, roadName, filter.IDs(ids...))
	require.NoError(t, err)
	res, err = tx.Commit(ctx, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, NothingToCommit, res.Status)
	assert.Equal(t, head, repo.Head())
}

func TestCommitMetadataDefaults(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, roadName, []*feature.Feature{newRoad("Main St", 2, nil)}, false)
	require.NoError(t, err)
	res, err := tx.Commit(ctx, Metadata{})
	require.NoError(t, err)
	assert.Equal(t, Committed, res.Status)
	assert.Equal(t, res.Commit, repo.Head())
	assert.Equal(t, []string{roadName.String()}, []string{res.Types[0].String()})

	commit, err := repo.Commit(ctx, res.Commit)
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthor, commit.Author)
	assert.Equal(t, DefaultAuthor, commit.Committer)
	assert.Equal(t, "Commit from transaction "+tx.ID(), commit.Message)
	assert.Equal(t, testClock, commit.Timestamp)
	assert.Equal(t, res.Root, commit.Root)
	require.Len(t, commit.Parents, 1)
}

func TestCommitMetadataExplicit(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.Author = "config-author"
	repo, err := Init(ctx, storage.NewMemory(), opts)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSchema(ctx, roadType()))

	schemaCommit, err := repo.Commit(ctx, repo.Head())
	require.NoError(t, err)
	assert.Equal(t, "config-author", schemaCommit.Author)

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, roadName, []*feature.Feature{newRoad("Main St", 2, nil)}, false)
	require.NoError(t, err)

	timestamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := tx.Commit(ctx, Metadata{Author: "alice", Message: "add main st", Timestamp: timestamp})
	require.NoError(t, err)

	commit, err := repo.Commit(ctx, res.Commit)
	require.NoError(t, err)
	assert.Equal(t, "alice", commit.Author)
	assert.Equal(t, "alice", commit.Committer)
	assert.Equal(t, "add main st", commit.Message)
	assert.Equal(t, timestamp, commit.Timestamp)
}

func TestCommitConcurrentModification(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())

	t1, err := repo.Begin(ctx)
	require.NoError(t, err)
	t2, err := repo.Begin(ctx)
	require.NoError(t, err)

	_, err = t1.Insert(ctx, roadName, []*feature.Feature{newRoad("Main St", 2, nil)}, false)
	require.NoError(t, err)
	_, err = t2.Insert(ctx, roadName, []*feature.Feature{newRoad("Elm St", 1, nil)}, false)
	require.NoError(t, err)

	_, err = t1.Commit(ctx, Metadata{})
	require.NoError(t, err)
	head := repo.Head()

	_, err = t2.Commit(ctx, Metadata{})
	require.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, head, repo.Head())

	// the rejected transaction keeps its changes
	count, err := repo.Count(ctx, roadName, Query{}, InTransaction(t2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, t2.Rebase(ctx))
	count, err = repo.Count(ctx, roadName, Query{}, InTransaction(t2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	res, err := t2.Commit(ctx, Metadata{})
	require.NoError(t, err)
	commit, err := repo.Commit(ctx, res.Commit)
	require.NoError(t, err)
	assert.Equal(t, head, commit.Parents[0])

	count, err = repo.Count(ctx, roadName, Query{}, AutoCommit())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCommitRebaseStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())
	ids := insertRoads(t, repo, newRoad("Main St", 2, nil))

	read := func(scope Scope) *feature.Feature {
		source, err := repo.Query(ctx, roadName, Query{Filter: filter.IDs(ids[0])}, scope)
		require.NoError(t, err)
		features, err := source.Features(ctx).All(ctx)
		require.NoError(t, err)
		require.Len(t, features, 1)
		return features[0]
	}
	pinned := filter.ResourceID{IDs: []filter.FeatureID{{ID: ids[0], Version: read(AutoCommit()).Version}}}

	t1, err := repo.Begin(ctx)
	require.NoError(t, err)
	t2, err := repo.Begin(ctx)
	require.NoError(t, err)

	_, err = t2.Update(ctx, roadName, []string{"name"}, []any{"High St"}, pinned)
	require.NoError(t, err)
	_, err = t1.Update(ctx, roadName, []string{"lanes"}, []any{9}, pinned)
	require.NoError(t, err)
	_, err = t1.Commit(ctx, Metadata{})
	require.NoError(t, err)
	head := repo.Head()

	base := t2.Base()
	_, err = t2.Commit(ctx, Metadata{})
	require.ErrorIs(t, err, ErrConcurrentModification)

	err = t2.Rebase(ctx)
	require.ErrorIs(t, err, ErrStaleVersion)
	var stale *StaleVersionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, roadName, stale.Type)
	assert.Equal(t, []string{ids[0]}, stale.IDs)

	// the transaction keeps its base and its changes
	assert.Equal(t, base, t2.Base())
	assert.Equal(t, "High St", read(InTransaction(t2)).Get("name"))
	_, err = t2.Commit(ctx, Metadata{})
	require.ErrorIs(t, err, ErrConcurrentModification)

	assert.Equal(t, head, repo.Head())
	current := read(AutoCommit())
	assert.Equal(t, "Main St", current.Get("name"))
	assert.Equal(t, int64(9), current.Get("lanes"))
}

func TestCommitRebaseUnpinnedConflict(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())
	ids := insertRoads(t, repo, newRoad("Main St", 2, nil), newRoad("Elm St", 1, nil))

	t1, err := repo.Begin(ctx)
	require.NoError(t, err)
	t2, err := repo.Begin(ctx)
	require.NoError(t, err)

	_, err = t1.Update(ctx, roadName, []string{"lanes"}, []any{4}, filter.IDs(ids[0]))
	require.NoError(t, err)
	_, err = t1.Commit(ctx, Metadata{})
	require.NoError(t, err)

	_, err = t2.Delete(ctx, roadName, filter.IDs(ids...))
	require.NoError(t, err)
	_, err = t2.Commit(ctx, Metadata{})
	require.ErrorIs(t, err, ErrConcurrentModification)

	var stale *StaleVersionError
	require.ErrorAs(t, t2.Rebase(ctx), &stale)
	assert.Equal(t, []string{ids[0]}, stale.IDs)

	count, err := repo.Count(ctx, roadName, Query{}, AutoCommit())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCommitRebaseForcedIDCollision(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())

	t1, err := repo.Begin(ctx)
	require.NoError(t, err)
	t2, err := repo.Begin(ctx)
	require.NoError(t, err)

	first := newRoad("Main St", 2, nil)
	first.ID = "Road.main"
	second := newRoad("Main Street", 3, nil)
	second.ID = "Road.main"

	_, err = t1.Insert(ctx, roadName, []*feature.Feature{first}, true)
	require.NoError(t, err)
	_, err = t2.Insert(ctx, roadName, []*feature.Feature{second}, true)
	require.NoError(t, err)

	_, err = t1.Commit(ctx, Metadata{})
	require.NoError(t, err)
	_, err = t2.Commit(ctx, Metadata{})
	require.ErrorIs(t, err, ErrConcurrentModification)

	err = t2.Rebase(ctx)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorContains(t, err, "Road.main")

	source, err := repo.Query(ctx, roadName, Query{Filter: filter.IDs("Road.main")}, AutoCommit())
	require.NoError(t, err)
	features, err := source.Features(ctx).All(ctx)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "Main St", features[0].Get("name"))
}

func TestCommitAtomicity(t *testing.T) {
	ctx := context.Background()
	repo := newRoadRepository(t, storage.NewMemory())

	const writers = 4
	const commits = 5
	const batch = 3

	commitBatch := func(w int) error {
		tx, err := repo.Begin(ctx)
		if err != nil {
			return err
		}
		features := make([]*feature.Feature, batch)
		for i := range features {
			features[i] = newRoad("road", w, orb.LineString{{float64(w), 0}, {float64(w), 1}})
		}
		if _, err := tx.Insert(ctx, roadName, features, false); err != nil {
			return err
		}
		for {
			_, err := tx.Commit(ctx, Metadata{})
			if !errors.Is(err, ErrConcurrentModification) {
				return err
			}
			if err := tx.Rebase(ctx); err != nil {
				return err
			}
		}
	}

	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				source, err := repo.Source(ctx, roadName, Query{})
				if !assert.NoError(t, err) {
					return
				}
				features, err := source.Features(ctx).All(ctx)
				if !assert.NoError(t, err) {
					return
				}
				assert.Zero(t, len(features)%batch, "reader observed a partial commit")
			}
		}()
	}

	var writersGroup sync.WaitGroup
	for w := 0; w < writers; w++ {
		writersGroup.Add(1)
		go func(w int) {
			defer writersGroup.Done()
			for c := 0; c < commits; c++ {
				assert.NoError(t, commitBatch(w))
			}
		}(w)
	}
	writersGroup.Wait()
	close(done)
	readers.Wait()

	count, err := repo.Count(ctx, roadName, Query{}, AutoCommit())
	require.NoError(t, err)
	assert.Equal(t, int64(writers*commits*batch), count)
	assert.Equal(t, uint64(1+writers*commits), repo.Version())
}
