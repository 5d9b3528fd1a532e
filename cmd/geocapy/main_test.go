package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nasdf/geocapy/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roadsSDL = `
type Road {
	name: String!
	lanes: Int
	geom: LineString
}
`

const roadsGeoJSON = `{
	"type": "FeatureCollection",
	"features": [{
		"type": "Feature",
		"properties": {"name": "Main St", "lanes": 2, "surface": "asphalt"},
		"geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]}
	}, {
		"type": "Feature",
		"properties": {"name": "High St", "lanes": 4},
		"geometry": {"type": "LineString", "coordinates": [[10, 10], [20, 20]]}
	}]
}`

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Setenv("GEOCAPY_CONFIG", "")
	dir := t.TempDir()
	c := &cli{t: t, dir: dir, config: filepath.Join(dir, "geocapy.yaml")}
	c.write("geocapy.yaml", "storage:\n  backend: badger\n  path: "+filepath.Join(dir, "db")+"\nlog:\n  level: error\ncommit:\n  author: alice\n")
	return c
}

func (c *cli) write(name, content string) string {
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (c *cli) run(args ...string) (string, error) {
	var out bytes.Buffer
	args = append(args, "--config", c.config)
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	out, err := c.run(args...)
	require.NoError(c.t, err, "geocapy %v", args)
	return out
}

func TestCLI(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("init")
	assert.Contains(t, out, "initialized repository at ")
	_, err := c.run("init")
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	sdl := c.write("roads.graphql", roadsSDL)
	out = c.mustRun("schema", "create", sdl, "--namespace", "topp")
	assert.Equal(t, "created topp:Road\n", out)

	out = c.mustRun("schema", "list")
	assert.Contains(t, out, `"FeatureType"`)
	assert.Contains(t, out, `"Road"`)

	data := c.write("roads.geojson", roadsGeoJSON)
	out = c.mustRun("import", "topp:Road", data)
	assert.Contains(t, out, "imported 2 features in ")

	assert.Equal(t, "2\n", c.mustRun("count", "topp:Road"))
	assert.Equal(t, "1\n", c.mustRun("count", "topp:Road", "--bbox=9,9,21,21"))
	assert.Equal(t, "1\n", c.mustRun("count", "topp:Road", "--filter", "lanes: {gte: 3}"))
	assert.Equal(t, "0\n", c.mustRun("count", "topp:Road", "--bbox=9,9,21,21", "--filter", "name: Main St"))
	assert.Equal(t, "0 0 20 20\n", c.mustRun("bounds", "topp:Road"))
	assert.Equal(t, "empty\n", c.mustRun("bounds", "topp:Road", "--bbox=50,50,60,60"))

	out = c.mustRun("log")
	assert.Contains(t, out, "import roads.geojson")
	assert.Contains(t, out, "create schema topp:Road")
	assert.Contains(t, out, "initial commit")
	assert.Contains(t, out, "Author: alice")

	car := filepath.Join(c.dir, "repo.car")
	assert.Regexp(t, `^exported \d+ objects\n$`, c.mustRun("export", car))
	info, err := os.Stat(car)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	c.mustRun("schema", "drop", "topp:Road")
	_, err = c.run("count", "topp:Road")
	assert.ErrorIs(t, err, core.ErrSchemaNotFound)
}

func TestCLIErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("frobnicate")
	assert.ErrorContains(t, err, `unknown command "frobnicate"`)

	_, err = c.run("count")
	assert.ErrorContains(t, err, "expected 1 argument(s)")

	_, err = c.run("count", "topp:Road", "--bbox=1,2,3")
	assert.ErrorContains(t, err, "bbox requires four values")

	_, err = c.run("bounds", "topp:Road", "--bbox=1,2,3,4,5")
	assert.ErrorContains(t, err, "bbox requires four values")

	_, err = c.run("count", "topp:Road", "--bbox=1,2,east,4")
	assert.ErrorContains(t, err, `invalid argument "1,2,east,4" for "--bbox" flag`)

	out, err := c.run("schema")
	require.NoError(t, err)
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "list")
}
