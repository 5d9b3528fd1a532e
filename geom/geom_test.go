package geom

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualIgnoresNamingVariants(t *testing.T) {
	variants := []string{
		"EPSG:4326",
		"epsg:4326",
		"urn:ogc:def:crs:EPSG::4326",
		"urn:x-ogc:def:crs:EPSG:4326",
		"http://www.opengis.net/gml/srs/epsg.xml#4326",
		"http://www.opengis.net/def/crs/EPSG/0/4326",
		"CRS:84",
	}
	for _, v := range variants {
		assert.True(t, Equal(Code(WGS84), Code(v)), v)
	}
	assert.True(t, Equal(Code("EPSG:900913"), Code(WebMercator)))
	assert.False(t, Equal(Code(WGS84), Code(WebMercator)))
}

func TestEqualWKT(t *testing.T) {
	wkt := `GEOGCS["WGS 84", DATUM["WGS_1984", SPHEROID["WGS 84",6378137,298.257223563]], AUTHORITY["EPSG","4326"]]`
	assert.True(t, Equal(Parse(wkt), Code(WGS84)))

	custom := `LOCAL_CS["local",   UNIT["metre",1]]`
	assert.True(t, Equal(Parse(custom), Parse(`LOCAL_CS["local", UNIT["metre",1]]`)))
	assert.False(t, Equal(Parse(custom), Code(WGS84)))
}

func TestParse(t *testing.T) {
	assert.Equal(t, CRS{Code: "EPSG:4326"}, Parse(" EPSG:4326 "))
	assert.Equal(t, CRS{WKT: `LOCAL_CS["x"]`}, Parse(`LOCAL_CS["x"]`))
	assert.True(t, CRS{}.IsZero())
}

func TestTransformRoundTrip(t *testing.T) {
	line := orb.LineString{{-122.4, 37.7}, {-122.3, 37.8}}

	merc, err := Transform(line, Code(WGS84), Code(WebMercator))
	require.NoError(t, err)
	assert.NotEqual(t, line, merc)
	assert.Equal(t, orb.LineString{{-122.4, 37.7}, {-122.3, 37.8}}, line, "input must not be modified")

	back, err := Transform(merc, Code(WebMercator), Code(WGS84))
	require.NoError(t, err)
	for i, p := range back.(orb.LineString) {
		assert.InDelta(t, line[i][0], p[0], 1e-9)
		assert.InDelta(t, line[i][1], p[1], 1e-9)
	}
}

func TestTransformNoop(t *testing.T) {
	point := orb.Point{1, 2}

	out, err := Transform(point, Code("urn:ogc:def:crs:EPSG::4326"), Code(WGS84))
	require.NoError(t, err)
	assert.Equal(t, point, out)

	out, err = Transform(point, CRS{}, Code(WGS84))
	require.NoError(t, err)
	assert.Equal(t, point, out)
}

func TestTransformUnsupported(t *testing.T) {
	_, err := Transform(orb.Point{1, 2}, Code(WGS84), Code("EPSG:27700"))
	assert.ErrorIs(t, err, ErrUnsupportedTransform)
	assert.False(t, Supported(Code(WGS84), Code("EPSG:27700")))
	assert.True(t, Supported(Code(WGS84), Code(WebMercator)))
}

func TestTransformBound(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}

	merc, err := TransformBound(bound, Code(WGS84), Code(WebMercator))
	require.NoError(t, err)
	assert.Less(t, merc.Min[0], -1e6)
	assert.Greater(t, merc.Max[1], 1e6)

	back, err := TransformBound(merc, Code(WebMercator), Code(WGS84))
	require.NoError(t, err)
	assert.InDelta(t, -10, back.Min[0], 1e-9)
	assert.InDelta(t, 10, back.Max[1], 1e-9)
}

func TestSeparable(t *testing.T) {
	assert.True(t, Separable(Code(WGS84), Code(WebMercator)))
	assert.True(t, Separable(Code("EPSG:900913"), Code(WGS84)))
	assert.True(t, Separable(Code(WGS84), CRS{}))
	assert.True(t, Separable(Code("EPSG:27700"), Code("EPSG:27700")))
	assert.False(t, Separable(Code(WGS84), Code("EPSG:27700")))

	a := orb.Bound{Min: orb.Point{-20, -5}, Max: orb.Point{0, 30}}
	b := orb.Bound{Min: orb.Point{5, -60}, Max: orb.Point{40, 10}}

	whole, err := TransformBound(a.Union(b), Code(WGS84), Code(WebMercator))
	require.NoError(t, err)
	ta, err := TransformBound(a, Code(WGS84), Code(WebMercator))
	require.NoError(t, err)
	tb, err := TransformBound(b, Code(WGS84), Code(WebMercator))
	require.NoError(t, err)
	union := ta.Union(tb)
	for i := 0; i < 2; i++ {
		assert.InDelta(t, union.Min[i], whole.Min[i], 1e-6)
		assert.InDelta(t, union.Max[i], whole.Max[i], 1e-6)
	}
}
