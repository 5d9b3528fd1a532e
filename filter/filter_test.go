package filter

import (
	"testing"
	"time"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/geom"
	"github.com/nasdf/geocapy/schema"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeature(t *testing.T) *feature.Feature {
	geomType := schema.TypeOf(schema.BindingLineString)
	geomType.CRS = geom.WGS84
	ft := &schema.FeatureType{
		Name: schema.Name{Namespace: "topp", Local: "Road"},
		Attributes: []schema.Attribute{
			{Name: "name", Type: schema.TypeOf(schema.BindingString), Nillable: true, MaxOccurs: 1},
			{Name: "lanes", Type: schema.TypeOf(schema.BindingInt), Nillable: true, MaxOccurs: 1},
			{Name: "speed", Type: schema.TypeOf(schema.BindingFloat), Nillable: true, MaxOccurs: 1},
			{Name: "paved", Type: schema.TypeOf(schema.BindingBool), Nillable: true, MaxOccurs: 1},
			{Name: "opened", Type: schema.TypeOf(schema.BindingTime), Nillable: true, MaxOccurs: 1},
			{Name: "geom", Type: geomType, Nillable: true, MaxOccurs: 1},
		},
	}
	f := feature.New(ft)
	f.ID = "Road.1"
	f.Set("name", "Main St")
	f.Set("lanes", int64(2))
	f.Set("speed", 50.5)
	f.Set("paved", true)
	f.Set("opened", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	f.Set("geom", orb.LineString{{0, 0}, {10, 10}})
	return f
}

func TestCompare(t *testing.T) {
	f := testFeature(t)
	cases := []struct {
		filter Filter
		want   bool
	}{
		{Compare{"name", Equal, "Main St"}, true},
		{Compare{"name", NotEqual, "Main St"}, false},
		{Compare{"lanes", Greater, int64(1)}, true},
		{Compare{"lanes", GreaterOrEqual, 2.0}, true},
		{Compare{"lanes", Less, int64(2)}, false},
		{Compare{"speed", LessOrEqual, int64(51)}, true},
		{Compare{"paved", Equal, true}, true},
		{Compare{"opened", Less, "2021-01-01T00:00:00Z"}, true},
		{Compare{"missing", Equal, nil}, true},
		{Compare{"missing", NotEqual, "x"}, true},
		{Compare{"missing", Greater, int64(1)}, false},
		{In{"lanes", []any{int64(1), int64(2)}}, true},
		{In{"name", []any{"Elm St"}}, false},
		{And{Include, Compare{"lanes", Equal, int64(2)}}, true},
		{And{Include, Exclude}, false},
		{Or{Exclude, Compare{"name", Equal, "Main St"}}, true},
		{Or{}, false},
		{Not{Exclude}, true},
		{IDs("Road.1"), true},
		{IDs("Road.2"), false},
	}
	for _, c := range cases {
		match, err := c.filter.Evaluate(f)
		require.NoError(t, err)
		assert.Equal(t, c.want, match, "%#v", c.filter)
	}
}

func TestCompareTypeMismatch(t *testing.T) {
	_, err := Compare{"name", Greater, int64(1)}.Evaluate(testFeature(t))
	assert.Error(t, err)
}

func TestSpatial(t *testing.T) {
	f := testFeature(t)
	cases := []struct {
		filter Filter
		want   bool
	}{
		{BBox{Bound: orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{20, 20}}}, true},
		{BBox{Attribute: "geom", Bound: orb.Bound{Min: orb.Point{11, 11}, Max: orb.Point{20, 20}}}, false},
		{BBox{Bound: orb.Bound{Min: orb.Point{6, 0}, Max: orb.Point{10, 4}}}, true},
		{Intersects{Geometry: orb.Bound{Min: orb.Point{6, 0}, Max: orb.Point{10, 4}}}, false},
		{Intersects{Geometry: orb.LineString{{0, 10}, {10, 0}}}, true},
	}
	for _, c := range cases {
		match, err := c.filter.Evaluate(f)
		require.NoError(t, err)
		assert.Equal(t, c.want, match, "%#v", c.filter)
	}
}

func TestSpatialReprojectsQuery(t *testing.T) {
	f := testFeature(t)
	bound, err := geom.TransformBound(orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{20, 20}}, geom.Code(geom.WGS84), geom.Code(geom.WebMercator))
	require.NoError(t, err)

	match, err := BBox{Bound: bound, CRS: geom.Code(geom.WebMercator)}.Evaluate(f)
	require.NoError(t, err)
	assert.True(t, match)

	_, err = BBox{Bound: bound, CRS: geom.Code("EPSG:27700")}.Evaluate(f)
	assert.ErrorIs(t, err, geom.ErrUnsupportedTransform)
}
