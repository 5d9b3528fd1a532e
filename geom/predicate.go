package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// parts is a geometry decomposed into its points, segments and polygons.
type parts struct {
	points   []orb.Point
	segments [][2]orb.Point
	polygons []orb.Polygon
}

func (p *parts) addLine(line []orb.Point) {
	if len(line) == 1 {
		p.points = append(p.points, line[0])
	}
	for i := 1; i < len(line); i++ {
		p.segments = append(p.segments, [2]orb.Point{line[i-1], line[i]})
	}
}

func (p *parts) add(g orb.Geometry) {
	switch v := g.(type) {
	case orb.Point:
		p.points = append(p.points, v)
	case orb.MultiPoint:
		p.points = append(p.points, v...)
	case orb.LineString:
		p.addLine(v)
	case orb.MultiLineString:
		for _, ls := range v {
			p.addLine(ls)
		}
	case orb.Ring:
		p.add(orb.Polygon{v})
	case orb.Bound:
		p.add(v.ToPolygon())
	case orb.Polygon:
		for _, r := range v {
			p.addLine(r)
		}
		p.polygons = append(p.polygons, v)
	case orb.MultiPolygon:
		for _, poly := range v {
			p.add(poly)
		}
	case orb.Collection:
		for _, c := range v {
			p.add(c)
		}
	}
}

// vertices returns a representative point of every component.
func (p *parts) vertices() []orb.Point {
	out := make([]orb.Point, 0, len(p.points)+len(p.segments))
	out = append(out, p.points...)
	for _, s := range p.segments {
		out = append(out, s[0])
	}
	return out
}

func decompose(g orb.Geometry) *parts {
	var p parts
	p.add(g)
	return &p
}

// Intersects returns true if the two planar geometries share at least one point.
func Intersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	pa, pb := decompose(a), decompose(b)
	return touches(pa, pb) || touches(pb, pa) || crosses(pa, pb)
}

// touches returns true if any point of a lies on b or any component of a lies inside a polygon of b.
func touches(a, b *parts) bool {
	for _, p := range a.points {
		for _, q := range b.points {
			if p.Equal(q) {
				return true
			}
		}
		for _, s := range b.segments {
			if onSegment(p, s[0], s[1]) {
				return true
			}
		}
	}
	for _, v := range a.vertices() {
		for _, poly := range b.polygons {
			if planar.PolygonContains(poly, v) {
				return true
			}
		}
	}
	return false
}

func crosses(a, b *parts) bool {
	for _, s := range a.segments {
		for _, t := range b.segments {
			if segmentsIntersect(s[0], s[1], t[0], t[1]) {
				return true
			}
		}
	}
	return false
}

func orientation(p, q, r orb.Point) int {
	v := (q[1]-p[1])*(r[0]-q[0]) - (q[0]-p[0])*(r[1]-q[1])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment returns true if p lies on the segment from a to b.
func onSegment(p, a, b orb.Point) bool {
	if orientation(a, b, p) != 0 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

func segmentsIntersect(p1, q1, p2, q2 orb.Point) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)
	if o1 != o2 && o3 != o4 {
		return true
	}
	return (o1 == 0 && onSegment(p2, p1, q1)) ||
		(o2 == 0 && onSegment(q2, p1, q1)) ||
		(o3 == 0 && onSegment(p1, p2, q2)) ||
		(o4 == 0 && onSegment(q1, p2, q2))
}
