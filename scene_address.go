package main

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SceneBuilder resolves a street address into map coordinates. The built-in
// implementation is deterministic and offline; deployments can plug a real
// geocoder.
type SceneBuilder interface {
	ResolveAddress(query string) (lat, lon float64, ok bool)
}

// offlineSceneBuilder derives a stable pseudo-location from the address text
// so the same query always lands on the same map center.
type offlineSceneBuilder struct{}

func (offlineSceneBuilder) ResolveAddress(query string) (float64, float64, bool) {
	lat, lon := stableCenterFromAddress(query)
	return lat, lon, false
}

// webMercatorToWGS84 converts EPSG:3857 metres to latitude/longitude.
func webMercatorToWGS84(xM, yM float64) (lat, lon float64) {
	const earthRadius = 6378137.0
	lon = (xM / earthRadius) * (180 / math.Pi)
	lat = (2*math.Atan(math.Exp(yM/earthRadius)) - math.Pi/2) * (180 / math.Pi)
	return lat, lon
}

// parseCenterFromKarta01URL extracts a map center from a karta01 share link.
// The fragment carries lat/lon either as degrees or as EPSG:3857 metres.
func parseCenterFromKarta01URL(raw string) (float64, float64, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Fragment == "" {
		return 0, 0, false
	}
	values, err := url.ParseQuery(parsed.Fragment)
	if err != nil {
		return 0, 0, false
	}
	rawLat, rawLon := values.Get("lat"), values.Get("lon")
	if rawLat == "" || rawLon == "" {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return 0, 0, false
	}
	if math.Abs(lat) <= 90 && math.Abs(lon) <= 180 {
		return lat, lon, true
	}
	lat, lon = webMercatorToWGS84(lon, lat)
	return lat, lon, true
}

// stableCenterFromAddress hashes the address text into a repeatable location
// inside the demo map region.
func stableCenterFromAddress(address string) (float64, float64) {
	normalized := strings.ToLower(strings.TrimSpace(address))
	if normalized == "" {
		return 55.751244, 37.618423
	}
	digest := sha256.Sum256([]byte(normalized))
	hexDigest := hex.EncodeToString(digest[:])
	seedA := binary.BigEndian.Uint32(mustDecodeHex(hexDigest[:8]))
	seedB := binary.BigEndian.Uint32(mustDecodeHex(hexDigest[8:16]))
	lat := 55.0 + float64(seedA%2000)/10000.0
	lon := 37.0 + float64(seedB%3000)/10000.0
	return lat, lon
}

func mustDecodeHex(s string) []byte {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return []byte{0, 0, 0, 0}
	}
	return raw
}

func siteEntityID() string {
	return fmt.Sprintf("site_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func sceneObjectID() string {
	return fmt.Sprintf("obj_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// generateSiteEntities lays out a building contour, road access, two
// hydrants and a water source scaled to the requested radius.
func generateSiteEntities(radiusM float64) []SceneObject {
	halfWidth := math.Max(20.0, math.Min(radiusM*0.28, 55.0))
	halfHeight := math.Max(14.0, math.Min(radiusM*0.18, 38.0))
	roadOffset := math.Min(radiusM*0.45, 90.0)
	hydrantOffset := halfWidth + 12.0

	return []SceneObject{
		{
			ID:           siteEntityID(),
			Kind:         SceneBuildingContour,
			GeometryType: GeometryPolygon,
			Geometry: [][]float64{
				{-halfWidth, -halfHeight},
				{halfWidth, -halfHeight},
				{halfWidth, halfHeight},
				{-halfWidth, halfHeight},
			},
			Label: "Контур здания",
		},
		{
			ID:           siteEntityID(),
			Kind:         SceneRoadAccess,
			GeometryType: GeometryLineString,
			Geometry: [][]float64{
				{-roadOffset, -halfHeight - 10},
				{roadOffset, -halfHeight - 10},
			},
			Label: "Подъезд",
		},
		{
			ID:           siteEntityID(),
			Kind:         SceneHydrant,
			GeometryType: GeometryPoint,
			Geometry:     [][]float64{{-hydrantOffset, 0}},
			Label:        "Гидрант 1",
		},
		{
			ID:           siteEntityID(),
			Kind:         SceneHydrant,
			GeometryType: GeometryPoint,
			Geometry:     [][]float64{{hydrantOffset, 0}},
			Label:        "Гидрант 2",
		},
		{
			ID:           siteEntityID(),
			Kind:         SceneWaterSource,
			GeometryType: GeometryPoint,
			Geometry:     [][]float64{{halfWidth + 20, halfHeight + 15}},
			Label:        "Водоисточник",
		},
	}
}

// seedFloorLayout fills an empty floor with the building contour walls and
// two exits. Floors that already hold objects are left alone.
func seedFloorLayout(floor *Floor, siteEntities []SceneObject) {
	if len(floor.Objects) > 0 {
		return
	}

	var points [][]float64
	for _, entity := range siteEntities {
		if entity.Kind == SceneBuildingContour && entity.GeometryType == GeometryPolygon {
			points = entity.Geometry
			break
		}
	}
	if len(points) < 4 {
		points = [][]float64{{-30, -18}, {30, -18}, {30, 18}, {-30, 18}}
	}

	walls := [][2][]float64{
		{points[0], points[1]},
		{points[1], points[2]},
		{points[2], points[3]},
		{points[3], points[0]},
	}
	for _, wall := range walls {
		floor.Objects = append(floor.Objects, SceneObject{
			ID:           sceneObjectID(),
			Kind:         SceneWall,
			GeometryType: GeometryLineString,
			Geometry:     [][]float64{wall[0], wall[1]},
			Label:        "Стена",
			Props:        map[string]any{"thickness_m": 0.3},
		})
	}

	midTop := []float64{(points[0][0] + points[1][0]) / 2.0, points[0][1]}
	midBottom := []float64{(points[2][0] + points[3][0]) / 2.0, points[2][1]}
	floor.Objects = append(floor.Objects,
		SceneObject{
			ID:           sceneObjectID(),
			Kind:         SceneExit,
			GeometryType: GeometryPoint,
			Geometry:     [][]float64{midTop},
			Label:        "Выход 1",
		},
		SceneObject{
			ID:           sceneObjectID(),
			Kind:         SceneExit,
			GeometryType: GeometryPoint,
			Geometry:     [][]float64{midBottom},
			Label:        "Выход 2",
		},
	)
}
