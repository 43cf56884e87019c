package main

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"

	"firedrill/server/physics"
)

// environmentInputs are the decoded weather values feeding one tick.
type environmentInputs struct {
	windSpeedMS  float64
	windDirDeg   float64
	temperatureC float64
	humidityPct  float64
	precip       string
}

// environmentFromWeather applies the model defaults for missing weather.
func environmentFromWeather(weather *WeatherSnapshot) environmentInputs {
	env := environmentInputs{
		windSpeedMS:  5.0,
		windDirDeg:   90.0,
		temperatureC: 20.0,
		humidityPct:  45.0,
	}
	if weather != nil {
		env.windSpeedMS = math.Max(0, weather.WindSpeedMS)
		env.windDirDeg = math.Mod(weather.WindDirDeg, 360.0)
		if env.windDirDeg < 0 {
			env.windDirDeg += 360
		}
		env.temperatureC = weather.TemperatureC
		env.humidityPct = physics.Clamp(weather.HumidityPct, 0, 100)
		env.precip = weather.Precipitation
	}
	return env
}

// containmentPolygon pairs a polygon with its area, smallest first.
type containmentPolygon struct {
	coords [][]float64
	area   float64
}

// containmentPolygonsFromScene collects every polygon drawn in the scene,
// site entities and floor objects alike, sorted by area ascending so a fire
// is bounded by the tightest polygon containing its center.
func containmentPolygonsFromScene(scene *Scene) []containmentPolygon {
	if scene == nil {
		return nil
	}
	var candidates []SceneObject
	candidates = append(candidates, scene.SiteEntities...)
	for i := range scene.Floors {
		candidates = append(candidates, scene.Floors[i].Objects...)
	}

	var polygons []containmentPolygon
	for _, obj := range candidates {
		if obj.GeometryType != GeometryPolygon || len(obj.Geometry) < 3 {
			continue
		}
		area := polygonArea(obj.Geometry)
		if area > 0 {
			polygons = append(polygons, containmentPolygon{coords: obj.Geometry, area: area})
		}
	}
	for i := 1; i < len(polygons); i++ {
		for j := i; j > 0 && polygons[j].area < polygons[j-1].area; j-- {
			polygons[j], polygons[j-1] = polygons[j-1], polygons[j]
		}
	}
	return polygons
}

// fireExtraOf decodes the Extra column of a hazard.
func fireExtraOf(obj *FireObject) propMap {
	extra := propMap{}
	if len(obj.Extra) > 0 {
		_ = json.Unmarshal(obj.Extra, &extra)
	}
	return extra
}

func setFireExtra(obj *FireObject, extra propMap) {
	raw, err := json.Marshal(extra)
	if err != nil {
		return
	}
	obj.Extra = datatypes.JSON(raw)
}

func decodeFireGeometry(obj *FireObject) [][]float64 {
	var coords [][]float64
	if len(obj.Geometry) > 0 {
		_ = json.Unmarshal(obj.Geometry, &coords)
	}
	return coords
}

func fireRankOf(extra propMap) int {
	return physics.ClampRank(int(extra.float("fire_rank", 1)))
}

func firePowerOf(extra propMap) float64 {
	return physics.ClampPower(extra.float("fire_power", 1.0))
}

func fireSpreadSpeedOf(extra propMap, kind FireZoneKind) float64 {
	fallback := physics.FireZoneDefaultSpeed
	if kind == FireSeat {
		fallback = physics.FireSeatDefaultSpeed
	}
	return math.Max(0.25, extra.float("spread_speed_m_min", fallback))
}

// fireDynamicsResult summarizes one fire tick for the runtime block.
type fireDynamicsResult struct {
	fireDirections     map[string]float64
	qRequiredLS        float64
	suppressionRatio   float64
	forecast           string
	activeFireObjects  int
	activeSmokeObjects int
	newSmoke           []*FireObject
	weatherGrowth      float64
}

// applyFireDynamics advances every hazard of the session by dtGameSec
// simulated seconds, mutating the rows in place. The graph supplies the
// suppression water computed for this tick.
func applyFireDynamics(
	fires []*FireObject,
	graph *resolvedGraph,
	env environmentInputs,
	scene *Scene,
	sessionUID string,
	dtGameSec int64,
	tickTime time.Time,
) *fireDynamicsResult {
	result := &fireDynamicsResult{
		fireDirections: make(map[string]float64),
		forecast:       "stable",
	}

	var activeFires, smokes []*FireObject
	for _, fire := range fires {
		if !fire.IsActive {
			continue
		}
		switch fire.Kind {
		case FireSeat, FireZone:
			activeFires = append(activeFires, fire)
		case SmokeZone:
			smokes = append(smokes, fire)
		}
	}

	// A burning session without smoke gets an auto-spawned smoke zone
	// seeded from the first fire.
	if len(activeFires) > 0 && len(smokes) == 0 {
		source := activeFires[0]
		sourceExtra := fireExtraOf(source)
		smoke := &FireObject{
			SessionUID:   sessionUID,
			Kind:         SmokeZone,
			Name:         truncate(fmt.Sprintf("Дым от %s", source.Name), maxLabelLength),
			GeometryType: source.GeometryType,
			Geometry:     source.Geometry,
			AreaM2:       math.Max(25.0, source.AreaM2*1.2),
			IsActive:     true,
		}
		setFireExtra(smoke, propMap{
			"source":             "ws:runtime_auto_smoke",
			"generated_at":       tickTime.Format(time.RFC3339),
			"spread_speed_m_min": math.Max(0.8, fireSpreadSpeedOf(sourceExtra, source.Kind)*0.65),
		})
		result.newSmoke = append(result.newSmoke, smoke)
		smokes = append(smokes, smoke)
	}

	tempFactor := physics.TemperatureFactor(env.temperatureC)
	humidityFactor := physics.HumidityFactor(env.humidityPct)
	weatherGrowth := physics.WeatherGrowthFactor(env.windSpeedMS, env.temperatureC, env.humidityPct, env.precip)
	suppressionBoost := physics.PrecipitationSuppressionBoost(env.precip)
	result.weatherGrowth = weatherGrowth

	containment := containmentPolygonsFromScene(scene)
	suppressionBudget := graph.suppressionEffectiveFlowLS * physics.SuppressionFlowCoeff *
		float64(dtGameSec) * suppressionBoost

	// Weight fires for budget distribution by size, nozzle proximity,
	// rank and power.
	weights := make(map[string]float64, len(activeFires))
	totalWeight := 0.0
	for _, fire := range activeFires {
		extra := fireExtraOf(fire)
		area := math.Max(5.0, fire.AreaM2)
		coords := decodeFireGeometry(fire)
		proximity := 1.0
		if len(coords) > 0 && len(graph.wetNozzleCenters) > 0 {
			cx, cy := geometryCenter(coords)
			distances := make([]float64, 0, len(graph.wetNozzleCenters))
			for _, center := range graph.wetNozzleCenters {
				distances = append(distances, pointDistance(cx, cy, center[0], center[1]))
			}
			proximity = physics.ProximityBoost(distances)
		}
		weight := physics.FireWeight(area, proximity, fireRankOf(extra), firePowerOf(extra))
		weights[fire.UID] = weight
		totalWeight += weight
	}

	postFireAreaSum := 0.0
	for _, fire := range activeFires {
		extra := fireExtraOf(fire)
		currentArea := math.Max(physics.FireMinArea, fire.AreaM2)
		rank := fireRankOf(extra)
		power := firePowerOf(extra)
		spreadSpeed := fireSpreadSpeedOf(extra, fire.Kind)

		maxArea := extra.float("max_area_m2", 0)
		coords := decodeFireGeometry(fire)
		if len(coords) > 0 && len(containment) > 0 {
			cx, cy := geometryCenter(coords)
			for _, poly := range containment {
				if polygonContains(poly.coords, cx, cy) {
					if maxArea > 0 {
						maxArea = math.Min(maxArea, poly.area)
					} else {
						maxArea = poly.area
					}
					break
				}
			}
		}
		if maxArea > 0 {
			maxArea = physics.Clamp(maxArea, physics.ContainmentAreaMin, physics.ContainmentAreaMax)
		} else {
			maxArea = math.Max(physics.FireMinArea,
				math.Min(physics.BuildingAreaFallbackGlobal, currentArea+physics.BuildingAreaFallbackPer))
		}

		spreadAzimuth := extra.float("spread_azimuth", env.windDirDeg)
		azimuthDelta := math.Abs(math.Mod(spreadAzimuth-env.windDirDeg+180.0, 360.0) - 180.0)
		growthFactor := physics.Clamp(
			weatherGrowth*
				physics.WindAlignmentFactor(azimuthDelta)*
				physics.RankGrowthFactor(rank)*
				physics.PowerGrowthFactor(power),
			physics.GrowthFactorMin, physics.GrowthFactorMax)

		areaGrowth := spreadSpeed * physics.GrowthRate(string(fire.Kind)) * float64(dtGameSec) * growthFactor

		share := 0.0
		if totalWeight > 0 && suppressionBudget > 0 {
			share = suppressionBudget * (weights[fire.UID] / totalWeight)
		}
		effectiveSuppression := share / math.Max(physics.ResistMin, physics.SuppressionResistance(rank, power))

		nextArea := math.Max(0, currentArea+areaGrowth-effectiveSuppression)
		nextArea = math.Min(nextArea, maxArea)
		fire.AreaM2 = round2(nextArea)
		fire.IsActive = nextArea > physics.FireActiveAreaThreshold

		extra["max_area_m2"] = round2(maxArea)
		extra["perimeter_m"] = round2(physics.Perimeter(nextArea))
		extra["spread_azimuth"] = math.Mod(spreadAzimuth, 360.0)
		extra["spread_speed_m_min"] = round3(math.Max(0.2,
			spreadSpeed+env.windSpeedMS*0.01+float64(rank-1)*0.03+(power-1.0)*0.08-effectiveSuppression*0.015))
		extra["runtime"] = map[string]any{
			"updated_at":            tickTime.Format(time.RFC3339),
			"suppression_area_m2":   round2(effectiveSuppression),
			"growth_area_m2":        round2(areaGrowth),
			"growth_factor":         round3(growthFactor),
			"fire_rank":             rank,
			"fire_power":            round3(power),
			"weather_growth_factor": round3(weatherGrowth),
		}
		setFireExtra(fire, extra)
		result.fireDirections[fire.UID] = round2(math.Mod(spreadAzimuth, 360.0))

		if fire.IsActive {
			postFireAreaSum += nextArea
		}
	}

	for _, smoke := range smokes {
		extra := fireExtraOf(smoke)
		currentArea := math.Max(physics.SmokeMinArea, smoke.AreaM2)
		maxArea := extra.float("max_area_m2", 0)
		if maxArea <= 0 && postFireAreaSum > 0 {
			maxArea = postFireAreaSum * physics.SmokeMaxAreaPerFire
		}
		if maxArea > 0 {
			maxArea = physics.Clamp(maxArea, physics.SmokeMaxAreaFloor, physics.SmokeMaxAreaCeil)
		}
		spreadSpeed := math.Max(physics.SmokeMinSpeed, extra.float("spread_speed_m_min", 1.2))

		smokeWeather := physics.SmokeWeatherFactor(env.windSpeedMS, tempFactor, humidityFactor)
		growth := (postFireAreaSum*physics.SmokeGrowthCoeff +
			spreadSpeed*physics.SmokeDriftCoeff +
			env.windSpeedMS*physics.SmokeWindCoeff) * float64(dtGameSec) * smokeWeather
		dissipation := suppressionBudget * physics.SmokeSuppressionCoeff
		if physics.PrecipitationGrowthFactor(env.precip) < 1.0 {
			dissipation *= 1.15
		}

		nextArea := math.Max(physics.SmokeMinArea, currentArea+growth-dissipation)
		if maxArea > 0 {
			nextArea = math.Min(nextArea, maxArea)
		}
		smoke.AreaM2 = round2(nextArea)
		smoke.IsActive = postFireAreaSum > physics.SmokeActiveFireThreshold ||
			nextArea > physics.SmokeActiveAreaThreshold

		extra["perimeter_m"] = round2(physics.Perimeter(nextArea))
		extra["spread_speed_m_min"] = round3(math.Max(physics.SmokeMinSpeed, spreadSpeed+env.windSpeedMS*0.006))
		extra["runtime"] = map[string]any{
			"updated_at":           tickTime.Format(time.RFC3339),
			"growth_area_m2":       round2(growth),
			"dissipation_area_m2":  round2(dissipation),
			"smoke_weather_factor": round3(smokeWeather),
		}
		setFireExtra(smoke, extra)
	}

	// Forecast from normative demand vs effective water on target.
	qRequired := 0.0
	for _, fire := range activeFires {
		if !fire.IsActive {
			continue
		}
		qRequired += physics.QNorm(string(fire.Kind)) * math.Max(0, fire.AreaM2)
	}
	ratio := 0.0
	if qRequired > 0 {
		ratio = graph.effectiveFlowLS / qRequired
	}
	switch {
	case qRequired <= 0:
		// Nothing left burning. If there were fires this tick they were
		// just knocked down.
		if len(activeFires) > 0 {
			result.forecast = "suppressed"
		} else {
			result.forecast = "stable"
		}
	case ratio < physics.ForecastGrowingThreshold:
		result.forecast = "growing"
	case ratio < physics.ForecastStableThreshold:
		result.forecast = "stable"
	default:
		result.forecast = "suppressed"
	}
	result.qRequiredLS = round3(qRequired)
	result.suppressionRatio = round3(ratio)

	for _, fire := range fires {
		if !fire.IsActive {
			continue
		}
		switch fire.Kind {
		case FireSeat, FireZone:
			result.activeFireObjects++
		case SmokeZone:
			result.activeSmokeObjects++
		}
	}
	for _, smoke := range result.newSmoke {
		if smoke.IsActive {
			result.activeSmokeObjects++
		}
	}
	return result
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
