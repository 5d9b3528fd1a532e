package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSDL(t *testing.T) {
	types, err := ParseSDL("topp", `
type Road {
	name: String
	lanes: Int!
	geom: LineString @crs(code: "EPSG:3857")
}

type Park @namespace(uri: "http://geocapy.org/parks") {
	name: String!
	area: Float
	opened: DateTime
	boundary: Polygon
}
`)
	require.NoError(t, err)
	require.Len(t, types, 2)

	road := types[0]
	assert.Equal(t, Name{Namespace: "topp", Local: "Road"}, road.Name)
	require.Len(t, road.Attributes, 3)
	assert.Equal(t, Attribute{
		Namespace: "topp",
		Name:      "name",
		Type:      TypeOf(BindingString),
		Nillable:  true,
		MaxOccurs: 1,
	}, road.Attributes[0])
	assert.False(t, road.Attributes[1].Nillable)
	assert.Equal(t, int64(1), road.Attributes[1].MinOccurs)
	assert.Equal(t, "EPSG:3857", road.Attributes[2].Type.CRS)

	park := types[1]
	assert.Equal(t, Name{Namespace: "http://geocapy.org/parks", Local: "Park"}, park.Name)
	assert.Equal(t, BindingTime, park.Attributes[2].Type.Binding)
	assert.Equal(t, DefaultCRS, park.DefaultGeometry().Type.CRS)
}

func TestParseSDLErrors(t *testing.T) {
	_, err := ParseSDL("topp", `type Road { names: [String] }`)
	assert.ErrorContains(t, err, "list attributes are not supported")

	_, err = ParseSDL("topp", `type Road { owner: Person } type Person { name: String }`)
	assert.ErrorContains(t, err, "unsupported attribute type Person")

	_, err = ParseSDL("topp", `type Road {`)
	assert.Error(t, err)
}
