package main

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Coordinates in scene and deployment geometry are local metric [x, y] pairs.

// geometryCenter averages the vertices of a geometry into a single point.
// Point geometry returns itself; an empty geometry returns the origin.
func geometryCenter(coords [][]float64) (float64, float64) {
	if len(coords) == 0 {
		return 0, 0
	}
	var sx, sy float64
	n := 0
	for _, pt := range coords {
		if len(pt) < 2 {
			continue
		}
		sx += pt[0]
		sy += pt[1]
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sx / float64(n), sy / float64(n)
}

// pointDistance is the Euclidean distance between two points.
func pointDistance(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

// polygonFromCoords builds a validated polygon from a vertex list, closing
// the ring when the input leaves it open.
func polygonFromCoords(coords [][]float64) (geom.Polygon, bool) {
	pts := make([][]float64, 0, len(coords)+1)
	for _, pt := range coords {
		if len(pt) >= 2 {
			pts = append(pts, pt[:2])
		}
	}
	if len(pts) < 3 {
		return geom.Polygon{}, false
	}
	first, last := pts[0], pts[len(pts)-1]
	if first[0] != last[0] || first[1] != last[1] {
		pts = append(pts, first)
	}
	flat := make([]float64, 0, len(pts)*2)
	for _, pt := range pts {
		flat = append(flat, pt[0], pt[1])
	}
	ring, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, false
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Polygon{}, false
	}
	return poly, true
}

// polygonArea returns the planar area of a vertex list, or 0 when the
// vertices do not form a valid polygon.
func polygonArea(coords [][]float64) float64 {
	poly, ok := polygonFromCoords(coords)
	if !ok {
		return 0
	}
	return poly.Area()
}

// polygonContains reports whether the point lies inside (or on) the polygon.
func polygonContains(coords [][]float64, x, y float64) bool {
	poly, ok := polygonFromCoords(coords)
	if !ok {
		return false
	}
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}})
	if err != nil {
		return false
	}
	return geom.Intersects(poly.AsGeometry(), pt.AsGeometry())
}
