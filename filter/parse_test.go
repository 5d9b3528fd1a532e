package filter

import (
	"testing"

	"github.com/nasdf/geocapy/geom"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseYAML(t *testing.T, src string) Filter {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	f, err := Parse(doc)
	require.NoError(t, err)
	return f
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Include, f)
}

func TestParseAttribute(t *testing.T) {
	f := parseYAML(t, `lanes: {gte: 2}`)
	assert.Equal(t, Compare{Attribute: "lanes", Op: GreaterOrEqual, Value: int64(2)}, f)

	f = parseYAML(t, `name: Main St`)
	assert.Equal(t, Compare{Attribute: "name", Op: Equal, Value: "Main St"}, f)

	f = parseYAML(t, `lanes: {nin: [1, 2]}`)
	assert.Equal(t, Not{Filter: In{Attribute: "lanes", Values: []any{int64(1), int64(2)}}}, f)
}

func TestParseLogic(t *testing.T) {
	f := parseYAML(t, `
or:
  - name: {eq: Main St}
  - not: {lanes: {lt: 2}}
`)
	assert.Equal(t, Or{
		Compare{Attribute: "name", Op: Equal, Value: "Main St"},
		Not{Filter: Compare{Attribute: "lanes", Op: Less, Value: int64(2)}},
	}, f)

	f = parseYAML(t, `{lanes: {eq: 1}, name: {eq: x}}`)
	assert.Equal(t, And{
		Compare{Attribute: "lanes", Op: Equal, Value: int64(1)},
		Compare{Attribute: "name", Op: Equal, Value: "x"},
	}, f)
}

func TestParseSpatial(t *testing.T) {
	f := parseYAML(t, `bbox: {bounds: [0, 1, 2, 3.5], crs: "EPSG:4326"}`)
	assert.Equal(t, BBox{
		Bound: orb.Bound{Min: orb.Point{0, 1}, Max: orb.Point{2, 3.5}},
		CRS:   geom.Code("EPSG:4326"),
	}, f)

	f = parseYAML(t, `intersects: {attribute: geom, wkt: "POINT(1 2)"}`)
	assert.Equal(t, Intersects{Attribute: "geom", Geometry: orb.Point{1, 2}}, f)
}

func TestParseIDs(t *testing.T) {
	f := parseYAML(t, `ids: [Road.1, {id: Road.2, version: abc}]`)
	assert.Equal(t, ResourceID{IDs: []FeatureID{{ID: "Road.1"}, {ID: "Road.2", Version: "abc"}}}, f)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(map[string]any{"lanes": map[string]any{"like": "x"}})
	assert.ErrorContains(t, err, "invalid filter operator like")

	_, err = Parse(map[string]any{"bbox": map[string]any{"bounds": []any{1}}})
	assert.Error(t, err)

	_, err = Parse(map[string]any{"intersects": map[string]any{"wkt": "NOT WKT"}})
	assert.Error(t, err)
}
