package core

import (
	"context"
	"testing"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/filter"
	"github.com/nasdf/geocapy/schema"
	"github.com/nasdf/geocapy/storage"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roadSDL = `
type Road {
	name: String!
	geom: LineString @crs(code: "EPSG:4326")
}
`

func TestScenarioRoad(t *testing.T) {
	ctx := context.Background()
	repo, err := Init(ctx, storage.NewMemory(), testOptions())
	require.NoError(t, err)

	types, err := repo.CreateSchemaSDL(ctx, "ns", roadSDL)
	require.NoError(t, err)
	require.Len(t, types, 1)
	name := schema.Name{Namespace: "ns", Local: "Road"}
	assert.Equal(t, name, types[0].Name)
	registered, err := repo.Schema(ctx, name)
	require.NoError(t, err)

	tx, err := repo.Begin(ctx)
	require.NoError(t, err)

	f := feature.New(registered)
	f.Set("name", "Main St")
	f.Set("geom", orb.LineString{{0, 0}, {1, 1}})
	ids, err := repo.Insert(ctx, InTransaction(tx), name, []*feature.Feature{f}, false)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	count, err := repo.Count(ctx, name, Query{}, InTransaction(tx))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.Count(ctx, name, Query{}, AutoCommit())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	res, err := tx.Commit(ctx, Metadata{Message: "add main street"})
	require.NoError(t, err)
	assert.Equal(t, Committed, res.Status)

	count, err = repo.Count(ctx, name, Query{}, AutoCommit())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	source, err := repo.Query(ctx, name, Query{Filter: filter.Compare{Attribute: "name", Op: filter.Equal, Value: "Main St"}}, AutoCommit())
	require.NoError(t, err)
	features, err := source.Features(ctx).All(ctx)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, ids[0], features[0].ID)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, features[0].Get("geom"))

	after, err := repo.Schema(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, registered, after)
}
