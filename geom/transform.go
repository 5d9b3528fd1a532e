package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

var ErrUnsupportedTransform = errors.New("unsupported coordinate transform")

type pair struct {
	from string
	to   string
}

var projections = map[pair]orb.Projection{
	{WGS84, WebMercator}: project.WGS84.ToMercator,
	{WebMercator, WGS84}: project.Mercator.ToWGS84,
}

// separable lists the projections that map x and y independently and
// monotonically, so the envelope of a union equals the union of the envelopes.
var separable = map[pair]bool{
	{WGS84, WebMercator}: true,
	{WebMercator, WGS84}: true,
}

// Separable returns true if transforming the union of envelopes gives the same
// result as the union of the transformed envelopes.
func Separable(from, to CRS) bool {
	proj, err := projection(from, to)
	if err != nil {
		return false
	}
	return proj == nil || separable[pair{from.Identity(), to.Identity()}]
}

// Supported returns true if geometries can be transformed between the two reference systems.
func Supported(from, to CRS) bool {
	_, err := projection(from, to)
	return err == nil
}

// projection returns the projection between two reference systems or nil if they are equal.
func projection(from, to CRS) (orb.Projection, error) {
	if from.IsZero() || to.IsZero() || Equal(from, to) {
		return nil, nil
	}
	proj, ok := projections[pair{from.Identity(), to.Identity()}]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedTransform, from, to)
	}
	return proj, nil
}

// Transform returns the given geometry transformed from one reference system to another.
//
// The input geometry is never modified. A zero CRS on either side is treated as unknown
// and the geometry is returned unchanged.
func Transform(g orb.Geometry, from, to CRS) (orb.Geometry, error) {
	proj, err := projection(from, to)
	if err != nil || proj == nil || g == nil {
		return g, err
	}
	return project.Geometry(orb.Clone(g), proj), nil
}

// TransformBound returns the envelope of the given bound transformed from one reference
// system to another.
func TransformBound(b orb.Bound, from, to CRS) (orb.Bound, error) {
	proj, err := projection(from, to)
	if err != nil || proj == nil {
		return b, err
	}
	return project.Geometry(b.ToRing(), proj).Bound(), nil
}
