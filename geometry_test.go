package main

import (
	"math"
	"testing"
)

func TestPolygonAreaClosesOpenRing(t *testing.T) {
	// 10x10 square given without the closing vertex.
	square := [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if got := polygonArea(square); math.Abs(got-100) > 1e-9 {
		t.Fatalf("expected area 100, got %v", got)
	}
	if got := polygonArea([][]float64{{0, 0}, {1, 1}}); got != 0 {
		t.Fatalf("degenerate ring must have zero area, got %v", got)
	}
}

func TestPolygonContains(t *testing.T) {
	square := [][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !polygonContains(square, 5, 5) {
		t.Fatalf("center point must be inside")
	}
	if !polygonContains(square, 10, 5) {
		t.Fatalf("boundary point counts as inside")
	}
	if polygonContains(square, 15, 5) {
		t.Fatalf("outside point reported as inside")
	}
	if polygonContains([][]float64{{0, 0}}, 0, 0) {
		t.Fatalf("single vertex cannot contain anything")
	}
}

func TestGeometryCenter(t *testing.T) {
	x, y := geometryCenter([][]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
	if x != 5 || y != 5 {
		t.Fatalf("expected (5,5), got (%v,%v)", x, y)
	}
	x, y = geometryCenter(nil)
	if x != 0 || y != 0 {
		t.Fatalf("empty geometry centers on the origin, got (%v,%v)", x, y)
	}
}
