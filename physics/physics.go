// Package physics holds the tuned constants and pure formulas behind the
// fire, smoke, and hydraulic models. Everything here is deterministic and
// side-effect free so the simulation code stays testable in isolation.
package physics

import (
	"math"
	"strings"
)

// Growth rates per fire kind, in m²/s per unit of spread speed.
const (
	GrowthRateFireSeat = 0.17
	GrowthRateFireZone = 0.12
	GrowthRateDefault  = 0.12
)

// Suppression and smoke coupling coefficients.
const (
	SuppressionFlowCoeff  = 0.34 // l/s of effective water into m²/s suppressed
	SmokeGrowthCoeff      = 0.007
	SmokeDriftCoeff       = 0.18
	SmokeWindCoeff        = 0.16
	SmokeSuppressionCoeff = 0.12
)

// Temperature factor: clamp(1 + (T - base) * perC, min, max).
const (
	TempBaseC        = 20.0
	TempFactorPerC   = 0.014
	TempFactorMin    = 0.68
	TempFactorMax    = 1.45
	HumidityBasePct  = 40.0
	HumidityPerPct   = 0.0045
	HumidityMin      = 0.72
	HumidityMax      = 1.22
	WindNormalizeMS  = 18.0
	WindFactorCap    = 0.9
	PrecipHeavyGrow  = 0.72
	PrecipLightGrow  = 0.9
	PrecipHeavyBoost = 1.18
)

// Rank and power multipliers feeding the growth factor.
const (
	RankGrowthBase     = 0.82
	RankGrowthPerRank  = 0.19
	PowerGrowthBase    = 0.75
	PowerGrowthPerUnit = 0.55
	WindAlignMin       = 0.82
	WindAlignRange     = 0.36
	GrowthFactorMin    = 0.45
	GrowthFactorMax    = 4.2
)

// Suppression weighting and resistance.
const (
	FireWeightRankBase   = 0.85
	FireWeightRankCoeff  = 0.22
	FireWeightPowerBase  = 0.75
	FireWeightPowerCoeff = 0.35
	ProximityDenom       = 12.0
	ProximityScale       = 10.0

	ResistRankBase   = 1.0
	ResistRankPer    = 0.16
	ResistPowerBase  = 0.8
	ResistPowerCoeff = 0.25
	ResistMin        = 0.35
)

// Normative specific water demand, l/s per m².
const (
	QNormFireSeat = 0.08
	QNormFireZone = 0.05
	QNormDefault  = 0.06

	ForecastGrowingThreshold = 0.85
	ForecastStableThreshold  = 1.05
)

// Fire defaults and activity thresholds.
const (
	FireSeatDefaultSpeed    = 3.0 // m/min
	FireZoneDefaultSpeed    = 2.0
	FireMinArea             = 3.0
	FireActiveAreaThreshold = 0.8
	FireRankMin             = 1
	FireRankMax             = 5
	FirePowerMin            = 0.35
	FirePowerMax            = 4.0

	BuildingAreaFallbackPer    = 800.0
	BuildingAreaFallbackGlobal = 2000.0
	ContainmentAreaMin         = 4.0
	ContainmentAreaMax         = 20000.0
)

// Smoke model bounds.
const (
	SmokeMinArea             = 4.0
	SmokeMinSpeed            = 0.55
	SmokeActiveFireThreshold = 0.5
	SmokeActiveAreaThreshold = 12.0
	SmokeMaxAreaPerFire      = 1.6
	SmokeMaxAreaFloor        = 8.0
	SmokeMaxAreaCeil         = 26000.0
)

// Hydraulics: nozzle operating envelope.
const (
	NozzlePressureMin     = 20.0
	NozzlePressureMax     = 100.0
	NozzlePressureDefault = 60.0
	NozzleSprayAngleMin   = 0.0
	NozzleSprayAngleMax   = 90.0
	NozzleFlowMin         = 1.0
	NozzleFlowMax         = 12.0
	PressureFactorCutoff  = 0.12
)

// NozzleSpec describes the flow envelope of a handheld or monitor nozzle.
type NozzleSpec struct {
	MinFlow     float64
	MaxFlow     float64
	DefaultFlow float64
	Efficiency  float64
}

// NozzleSpecs maps nozzle type codes to their reference characteristics.
var NozzleSpecs = map[string]NozzleSpec{
	"RS50":    {1.5, 4.0, 2.8, 1.00},
	"RS70":    {3.0, 7.5, 5.5, 1.10},
	"DELTA":   {5.0, 10.0, 7.0, 1.15},
	"GPS600":  {2.5, 6.0, 4.0, 1.05},
	"DEFAULT": {1.0, 12.0, 3.5, 1.00},
}

// NozzleSpecFor returns the spec for a nozzle type code, falling back to the
// DEFAULT envelope for unknown or empty codes.
func NozzleSpecFor(code string) NozzleSpec {
	if spec, ok := NozzleSpecs[code]; ok {
		return spec
	}
	return NozzleSpecs["DEFAULT"]
}

// Hose friction coefficients at 20 m reference length, indexed by diameter in
// millimetres. Loss over a line is k * q² * max(0.5, length/20).
var HoseLossCoeff = map[int]float64{
	51:  0.030,
	66:  0.014,
	77:  0.009,
	150: 0.0015,
}

// HoseDiameters maps hose type codes to diameter in millimetres.
var HoseDiameters = map[string]int{
	"H51":  51,
	"H66":  66,
	"H77":  77,
	"H150": 150,
}

// Default onboard water tank volume by vehicle type, litres.
var VehicleWaterDefaults = map[string]float64{
	"AC":  3200,
	"AL":  1000,
	"ASA": 1000,
}

// Clamp bounds v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TemperatureFactor converts air temperature into a growth multiplier.
func TemperatureFactor(tempC float64) float64 {
	return Clamp(1.0+(tempC-TempBaseC)*TempFactorPerC, TempFactorMin, TempFactorMax)
}

// HumidityFactor converts relative humidity into a growth multiplier.
// Drier air burns faster.
func HumidityFactor(humidityPct float64) float64 {
	return Clamp(1.0-(humidityPct-HumidityBasePct)*HumidityPerPct, HumidityMin, HumidityMax)
}

// WindFactor converts wind speed (m/s) into a growth multiplier.
func WindFactor(windMS float64) float64 {
	if windMS < 0 {
		windMS = 0
	}
	return 1.0 + math.Min(WindFactorCap, windMS/WindNormalizeMS)
}

// PrecipitationGrowthFactor dampens growth under wet precipitation (heavy)
// and reduced-visibility conditions like mist or fog (light).
func PrecipitationGrowthFactor(precip string) float64 {
	switch strings.ToLower(strings.TrimSpace(precip)) {
	case "rain", "drizzle", "snow", "hail", "storm":
		return PrecipHeavyGrow
	case "mist", "fog":
		return PrecipLightGrow
	default:
		return 1.0
	}
}

// PrecipitationSuppressionBoost accelerates extinguishing under wet
// precipitation.
func PrecipitationSuppressionBoost(precip string) float64 {
	switch strings.ToLower(strings.TrimSpace(precip)) {
	case "rain", "drizzle", "snow", "hail", "storm":
		return PrecipHeavyBoost
	default:
		return 1.0
	}
}

// WeatherGrowthFactor combines all weather multipliers, clamped to the
// global growth envelope.
func WeatherGrowthFactor(windMS, tempC, humidityPct float64, precip string) float64 {
	f := WindFactor(windMS) * TemperatureFactor(tempC) * HumidityFactor(humidityPct) * PrecipitationGrowthFactor(precip)
	return Clamp(f, GrowthFactorMin, GrowthFactorMax)
}

// WindAlignmentFactor rewards fires spreading with the wind. deltaAz is the
// absolute azimuth difference between wind direction and spread direction.
func WindAlignmentFactor(deltaAzDeg float64) float64 {
	deltaAzDeg = math.Abs(deltaAzDeg)
	if deltaAzDeg > 180 {
		deltaAzDeg = 360 - deltaAzDeg
	}
	return WindAlignMin + WindAlignRange*(1.0-deltaAzDeg/180.0)
}

// RankGrowthFactor scales growth by the fire rank (1..5).
func RankGrowthFactor(rank int) float64 {
	return RankGrowthBase + float64(rank)*RankGrowthPerRank
}

// PowerGrowthFactor scales growth by the fire power multiplier.
func PowerGrowthFactor(power float64) float64 {
	return PowerGrowthBase + power*PowerGrowthPerUnit
}

// GrowthRate returns the base areal growth rate for a fire kind.
func GrowthRate(kind string) float64 {
	switch kind {
	case "FIRE_SEAT":
		return GrowthRateFireSeat
	case "FIRE_ZONE":
		return GrowthRateFireZone
	default:
		return GrowthRateDefault
	}
}

// QNorm returns the normative specific extinguishing demand for a fire kind.
func QNorm(kind string) float64 {
	switch kind {
	case "FIRE_SEAT":
		return QNormFireSeat
	case "FIRE_ZONE":
		return QNormFireZone
	default:
		return QNormDefault
	}
}

// SuppressionResistance models how hard a fire resists extinguishing.
func SuppressionResistance(rank int, power float64) float64 {
	r := (ResistRankBase + float64(rank-1)*ResistRankPer) * (ResistPowerBase + power*ResistPowerCoeff)
	if r < ResistMin {
		r = ResistMin
	}
	return r
}

// FireWeight ranks a fire for suppression budget distribution. proximityBoost
// comes from nozzle distances and is >= 1.
func FireWeight(area float64, proximityBoost float64, rank int, power float64) float64 {
	base := math.Max(5.0, area)
	return base * proximityBoost * (FireWeightRankBase + float64(rank)*FireWeightRankCoeff) *
		(FireWeightPowerBase + power*FireWeightPowerCoeff)
}

// ProximityBoost accumulates nearness of attacking nozzles to a fire center.
func ProximityBoost(distances []float64) float64 {
	sum := 0.0
	for _, d := range distances {
		if d < 0 {
			d = 0
		}
		sum += 1.0 / (ProximityDenom + d)
	}
	return 1.0 + sum*ProximityScale
}

// HoseLoss returns pressure loss in metres of head for a hose segment.
func HoseLoss(diameterMM int, flowLS, lengthM float64) float64 {
	k, ok := HoseLossCoeff[diameterMM]
	if !ok {
		k = HoseLossCoeff[51]
	}
	return k * flowLS * flowLS * math.Max(0.5, lengthM/20.0)
}

// NozzleFlow derives the working flow (l/s) from pressure, spray angle and
// nozzle type, clamped first to the type envelope and then globally.
func NozzleFlow(typeCode string, pressure, sprayAngle float64) float64 {
	spec := NozzleSpecFor(typeCode)
	flow := spec.DefaultFlow
	if _, ok := NozzleSpecs[typeCode]; !ok {
		flow = 2.4 + pressure*0.045
	}
	flow *= 1.0 + sprayAngle/140.0
	flow = Clamp(flow, spec.MinFlow, spec.MaxFlow)
	return Clamp(flow, NozzleFlowMin, NozzleFlowMax)
}

// SuppressionFactor expresses how effectively a nozzle converts flow into
// extinguishing work given pressure and spray pattern.
func SuppressionFactor(typeCode string, pressure, sprayAngle float64) float64 {
	spec := NozzleSpecFor(typeCode)
	f := (pressure / NozzlePressureDefault) * (1.25 - sprayAngle/140.0) * spec.Efficiency
	return Clamp(f, 0.5, 1.8)
}

// BranchPressureFactor divides pump pressure among nozzles sharing a splitter.
func BranchPressureFactor(branches int) float64 {
	if branches < 1 {
		branches = 1
	}
	return 1.0 / math.Sqrt(float64(branches))
}

// Perimeter approximates the fire front length for a circular fire of the
// given area.
func Perimeter(area float64) float64 {
	if area <= 0 {
		return 0
	}
	return 2.0 * math.Sqrt(math.Pi*area)
}

// SmokeWeatherFactor modulates smoke growth by wind, temperature and humidity
// factors already computed for the fire model.
func SmokeWeatherFactor(windMS, tempFactor, humidityFactor float64) float64 {
	f := (0.85 + math.Min(0.5, windMS/16.0)) * (0.9 + (tempFactor-1.0)*0.6) * (0.95 + (1.0-humidityFactor)*0.4)
	return Clamp(f, 0.55, 1.9)
}

// RankSeatArea maps fire rank to the default seat area (m²) used when a
// scene fire source carries no explicit area.
var RankSeatArea = map[int]float64{
	1: 16,
	2: 26,
	3: 40,
	4: 58,
	5: 78,
}

// DefaultSeatArea derives the starting area for a synced fire source.
func DefaultSeatArea(rank int, power float64) float64 {
	area, ok := RankSeatArea[ClampRank(rank)]
	if !ok {
		area = RankSeatArea[1]
	}
	return area * math.Max(0.7, power)
}

// DefaultSmokeArea derives the starting area for a synced smoke zone.
func DefaultSmokeArea(power float64) float64 {
	return 24.0 * math.Max(0.7, power)
}

// ClampRank bounds a fire rank into the supported range.
func ClampRank(rank int) int {
	if rank < FireRankMin {
		return FireRankMin
	}
	if rank > FireRankMax {
		return FireRankMax
	}
	return rank
}

// ClampPower bounds the fire power multiplier.
func ClampPower(power float64) float64 {
	return Clamp(power, FirePowerMin, FirePowerMax)
}
