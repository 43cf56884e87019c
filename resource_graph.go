package main

import (
	"encoding/json"
	"math"
	"sort"

	"firedrill/server/physics"
)

// propMap is the decoded Props blob of a deployment.
type propMap map[string]any

func decodeProps(row *ResourceDeployment) propMap {
	props := propMap{}
	if len(row.Props) > 0 {
		_ = json.Unmarshal(row.Props, &props)
	}
	return props
}

func decodeDeployGeometry(row *ResourceDeployment) [][]float64 {
	var coords [][]float64
	if len(row.Geometry) > 0 {
		_ = json.Unmarshal(row.Geometry, &coords)
	}
	return coords
}

func (p propMap) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p propMap) firstStr(keys ...string) string {
	for _, key := range keys {
		if v := p.str(key); v != "" {
			return v
		}
	}
	return ""
}

func (p propMap) float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

func (p propMap) boolVal(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p propMap) has(key string) bool {
	_, ok := p[key]
	return ok
}

// geometryLengthM measures a hose line. Non-linestring geometry falls back
// to a nominal 20 m segment.
func geometryLengthM(geometryType GeometryType, coords [][]float64) float64 {
	if geometryType == GeometryLineString && len(coords) >= 2 {
		total := 0.0
		for i := 1; i < len(coords); i++ {
			if len(coords[i-1]) < 2 || len(coords[i]) < 2 {
				continue
			}
			total += pointDistance(coords[i-1][0], coords[i-1][1], coords[i][0], coords[i][1])
		}
		if total > 0 {
			return math.Max(1.0, total)
		}
	}
	return 20.0
}

func normalizeHoseType(raw string) string {
	if _, ok := physics.HoseDiameters[raw]; ok {
		return raw
	}
	return "H51"
}

type vehicleEntry struct {
	vehicleUID      string
	roleTag         string
	hasCenter       bool
	cx, cy          float64
	capacityL       float64
	waterRemainingL float64
	callsign        string
	vehicleType     string
}

type hoseEntry struct {
	deploymentUID    string
	chainID          string
	roleTag          string
	hasCenter        bool
	cx, cy           float64
	linkedVehicleUID string
	linkedSplitterID string
	strictChain      bool
	hoseType         string
	lengthM          float64
}

type splitterEntry struct {
	deploymentUID    string
	linkedVehicleUID string
	maxBranches      int
}

type nozzleEntry struct {
	deploymentUID     string
	roleTag           string
	flowLS            float64
	hasCenter         bool
	cx, cy            float64
	strictChain       bool
	linkedHoseUID     string
	linkedHoseChainID string
	linkedVehicleUID  string
	pressure          float64
	sprayAngle        float64
	nozzleType        string
	suppressionFactor float64
}

// resolvedGraph is the outcome of one hydraulic resolution pass.
type resolvedGraph struct {
	vehicleEntries             []*vehicleEntry
	activeNozzles              int
	consumedWaterL             float64
	effectiveFlowLS            float64
	suppressionEffectiveFlowLS float64
	wetNozzleCenters           [][2]float64
	hoseRuntime                map[string]*HoseRuntime
	nozzleRuntime              map[string]*NozzleRuntime
	vehicleRuntime             map[string]*VehicleRuntime
}

// resolveResourceGraph walks vehicle, splitter, hose and nozzle deployments
// and computes which nozzles receive water this tick, at what effective
// flow, and how much onboard water the vehicles lose.
//
// Strict-chain nozzles must resolve nozzle -> hose -> (splitter) -> vehicle
// by explicit links and get a coded blocked_reason when any hop is missing.
// Loose nozzles draw from the nearest role-matching vehicle with water.
func resolveResourceGraph(
	deployments []ResourceDeployment,
	vehicleSpecs map[string]VehicleSpec,
	prior *FireRuntime,
	dtGameSec int64,
) *resolvedGraph {
	out := &resolvedGraph{
		hoseRuntime:    make(map[string]*HoseRuntime),
		nozzleRuntime:  make(map[string]*NozzleRuntime),
		vehicleRuntime: make(map[string]*VehicleRuntime),
	}

	deploymentByUID := make(map[string]*ResourceDeployment, len(deployments))
	for i := range deployments {
		deploymentByUID[deployments[i].UID] = &deployments[i]
	}

	// Latest deployment per dictionary vehicle wins.
	latestVehicle := make(map[string]*ResourceDeployment)
	for i := range deployments {
		row := &deployments[i]
		if row.Kind != ResourceVehicle || row.VehicleDictionaryUID == "" {
			continue
		}
		prev := latestVehicle[row.VehicleDictionaryUID]
		if prev == nil || !row.CreatedAt.Before(prev.CreatedAt) {
			latestVehicle[row.VehicleDictionaryUID] = row
		}
	}

	splitters := make(map[string]*splitterEntry)
	for i := range deployments {
		row := &deployments[i]
		if row.Kind != ResourceHoseSplitter || row.Status == DeploymentCompleted {
			continue
		}
		props := decodeProps(row)
		if props.boolVal("plan_only") {
			continue
		}
		maxBranches := int(props.float("max_branches", 3))
		if maxBranches < 1 {
			maxBranches = 3
		}
		splitters[row.UID] = &splitterEntry{
			deploymentUID:    row.UID,
			linkedVehicleUID: props.str("linked_vehicle_id"),
			maxBranches:      maxBranches,
		}
	}

	hosesByUID := make(map[string]*hoseEntry)
	hosesByChain := make(map[string]*hoseEntry)
	for i := range deployments {
		row := &deployments[i]
		if row.Kind != ResourceHoseLine || row.Status == DeploymentCompleted {
			continue
		}
		props := decodeProps(row)
		if props.boolVal("plan_only") {
			continue
		}
		coords := decodeDeployGeometry(row)
		cx, cy := geometryCenter(coords)
		chainID := props.firstStr("chain_id", "linked_hose_line_chain_id")
		if chainID == "" {
			chainID = row.UID
		}
		linkedVehicle := props.str("linked_vehicle_id")
		if linkedVehicle == "" {
			// A hose may point at the vehicle deployment instead of the
			// dictionary entry.
			if depUID := props.firstStr("linked_vehicle_deployment_id", "vehicle_deployment_id"); depUID != "" {
				if dep, ok := deploymentByUID[depUID]; ok && dep.Kind == ResourceVehicle {
					linkedVehicle = dep.VehicleDictionaryUID
				}
			}
		}
		strict := props.boolVal("strict_chain")
		entry := &hoseEntry{
			deploymentUID:    row.UID,
			chainID:          chainID,
			roleTag:          row.RoleTag,
			hasCenter:        len(coords) > 0,
			cx:               cx,
			cy:               cy,
			linkedVehicleUID: linkedVehicle,
			linkedSplitterID: props.str("linked_splitter_id"),
			strictChain:      strict,
			hoseType:         normalizeHoseType(props.str("hose_type")),
			lengthM:          geometryLengthM(row.GeometryType, coords),
		}
		hosesByUID[row.UID] = entry
		hosesByChain[chainID] = entry

		blocked := ""
		if strict && linkedVehicle == "" && entry.linkedSplitterID == "" {
			blocked = "NO_LINKED_VEHICLE"
		}
		out.hoseRuntime[row.UID] = &HoseRuntime{
			DiameterMM:    physics.HoseDiameters[entry.hoseType],
			LengthM:       round2(entry.lengthM),
			VehicleUID:    linkedVehicle,
			HasWater:      false,
			BlockedReason: blocked,
		}
	}

	var priorVehicles map[string]*VehicleRuntime
	if prior != nil {
		priorVehicles = prior.VehicleRuntime
	}
	for vehicleUID, row := range latestVehicle {
		if row.Status != DeploymentDeployed && row.Status != DeploymentActive {
			continue
		}
		props := decodeProps(row)
		if props.boolVal("failure_active") {
			continue
		}
		coords := decodeDeployGeometry(row)
		cx, cy := geometryCenter(coords)

		spec, hasSpec := vehicleSpecs[vehicleUID]
		capacity := physics.VehicleWaterDefaults["AC"]
		callsign, vehicleType := "", ""
		if hasSpec {
			callsign = spec.Callsign
			vehicleType = string(spec.Type)
			if spec.WaterCapacityL > 0 {
				capacity = spec.WaterCapacityL
			} else if fallback, ok := physics.VehicleWaterDefaults[vehicleType]; ok {
				capacity = fallback
			}
		}
		remaining := capacity
		if priorVehicles != nil {
			if rt, ok := priorVehicles[vehicleUID]; ok {
				remaining = rt.WaterRemainingL
			}
		}
		remaining = physics.Clamp(remaining, 0, capacity)

		out.vehicleEntries = append(out.vehicleEntries, &vehicleEntry{
			vehicleUID:      vehicleUID,
			roleTag:         row.RoleTag,
			hasCenter:       len(coords) > 0,
			cx:              cx,
			cy:              cy,
			capacityL:       capacity,
			waterRemainingL: remaining,
			callsign:        callsign,
			vehicleType:     vehicleType,
		})
	}
	sort.Slice(out.vehicleEntries, func(i, j int) bool {
		return out.vehicleEntries[i].vehicleUID < out.vehicleEntries[j].vehicleUID
	})

	var nozzles []*nozzleEntry
	for i := range deployments {
		row := &deployments[i]
		if row.Kind != ResourceNozzle || row.Status != DeploymentActive {
			continue
		}
		props := decodeProps(row)
		if props.boolVal("plan_only") {
			continue
		}
		pressure := physics.Clamp(props.float("pressure", physics.NozzlePressureDefault),
			physics.NozzlePressureMin, physics.NozzlePressureMax)
		spray := physics.Clamp(props.float("spray_angle", 0),
			physics.NozzleSprayAngleMin, physics.NozzleSprayAngleMax)
		nozzleType := props.str("nozzle_type")
		if nozzleType == "" {
			nozzleType = "DEFAULT"
		}
		spec := physics.NozzleSpecFor(nozzleType)

		flow := spec.DefaultFlow
		if props.has("nozzle_flow_l_s") {
			flow = props.float("nozzle_flow_l_s", spec.DefaultFlow)
		} else if props.has("intensity_l_s") {
			flow = props.float("intensity_l_s", spec.DefaultFlow)
		} else if props.has("flow_l_s") {
			flow = props.float("flow_l_s", spec.DefaultFlow)
		} else {
			flow = 2.4 + pressure*0.045
		}
		flow *= 1.0 + spray/140.0
		flow = physics.Clamp(flow, spec.MinFlow, spec.MaxFlow)
		flow = physics.Clamp(flow, physics.NozzleFlowMin, physics.NozzleFlowMax)

		coords := decodeDeployGeometry(row)
		cx, cy := geometryCenter(coords)

		entry := &nozzleEntry{
			deploymentUID:     row.UID,
			roleTag:           row.RoleTag,
			flowLS:            flow,
			hasCenter:         len(coords) > 0,
			cx:                cx,
			cy:                cy,
			strictChain:       props.boolVal("strict_chain"),
			linkedHoseUID:     props.firstStr("linked_hose_line_id", "hose_line_deployment_id"),
			linkedHoseChainID: props.firstStr("linked_hose_line_chain_id", "hose_line_chain_id"),
			linkedVehicleUID:  props.str("linked_vehicle_id"),
			pressure:          pressure,
			sprayAngle:        spray,
			nozzleType:        nozzleType,
			suppressionFactor: physics.SuppressionFactor(nozzleType, pressure, spray),
		}
		nozzles = append(nozzles, entry)
		out.nozzleRuntime[row.UID] = &NozzleRuntime{
			NozzleType: nozzleType,
			FlowLS:     round3(flow),
			X:          cx,
			Y:          cy,
		}
	}
	out.activeNozzles = len(nozzles)

	// Count nozzles per splitter to split pump pressure among branches.
	splitterNozzleCount := make(map[string]int)
	for _, nozzle := range nozzles {
		hose := hosesByUID[nozzle.linkedHoseUID]
		if hose == nil && nozzle.linkedHoseChainID != "" {
			hose = hosesByChain[nozzle.linkedHoseChainID]
		}
		if hose == nil || hose.linkedSplitterID == "" {
			continue
		}
		splitterNozzleCount[hose.linkedSplitterID]++
	}

	vehicleByUID := make(map[string]*vehicleEntry, len(out.vehicleEntries))
	for _, entry := range out.vehicleEntries {
		vehicleByUID[entry.vehicleUID] = entry
	}
	vehicleTotalFlow := make(map[string]float64)

	for _, nozzle := range nozzles {
		runtime := out.nozzleRuntime[nozzle.deploymentUID]
		branchPressureFactor := 1.0
		var linkedHose *hoseEntry
		targetVehicleUID := nozzle.linkedVehicleUID

		var candidates []*vehicleEntry
		if nozzle.strictChain {
			if nozzle.linkedHoseUID != "" {
				linkedHose = hosesByUID[nozzle.linkedHoseUID]
			}
			if linkedHose == nil && nozzle.linkedHoseChainID != "" {
				linkedHose = hosesByChain[nozzle.linkedHoseChainID]
			}
			if linkedHose == nil {
				runtime.BlockedReason = "NO_LINKED_HOSE"
				continue
			}
			if targetVehicleUID == "" {
				targetVehicleUID = linkedHose.linkedVehicleUID
			}
			// A hose behind a splitter borrows the splitter's vehicle link, so
			// the splitter resolves before the missing-vehicle verdict.
			if linkedHose.linkedSplitterID != "" {
				splitter := splitters[linkedHose.linkedSplitterID]
				if splitter == nil {
					runtime.BlockedReason = "NO_LINKED_SPLITTER"
					continue
				}
				if splitter.linkedVehicleUID != "" {
					targetVehicleUID = splitter.linkedVehicleUID
				}
				branches := splitterNozzleCount[linkedHose.linkedSplitterID]
				branchPressureFactor = physics.BranchPressureFactor(branches)
			}
			if targetVehicleUID == "" {
				runtime.BlockedReason = "NO_LINKED_VEHICLE"
				continue
			}
			if entry, ok := vehicleByUID[targetVehicleUID]; ok && entry.waterRemainingL > 0 {
				candidates = []*vehicleEntry{entry}
			}
		} else {
			for _, entry := range out.vehicleEntries {
				if nozzle.roleTag != "" && entry.roleTag != nozzle.roleTag {
					continue
				}
				if entry.waterRemainingL <= 0 {
					continue
				}
				candidates = append(candidates, entry)
			}
		}

		if len(candidates) == 0 {
			runtime.BlockedReason = "NO_WATER_SOURCE"
			continue
		}

		if nozzle.hasCenter {
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidateDistance(nozzle, candidates[i]) < candidateDistance(nozzle, candidates[j])
			})
		}
		target := candidates[0]

		demandL := nozzle.flowLS * float64(dtGameSec)
		if demandL <= 0 {
			continue
		}

		lineLoss, lineLength := 0.0, 0.0
		if linkedHose != nil {
			lineLength = linkedHose.lengthM
			lineLoss = physics.HoseLoss(physics.HoseDiameters[linkedHose.hoseType], nozzle.flowLS, lineLength)
		}
		availablePressure := math.Max(0, nozzle.pressure*branchPressureFactor-lineLoss)
		pressureFactor := 0.0
		if nozzle.pressure > 0 {
			pressureFactor = availablePressure / nozzle.pressure
		}
		if pressureFactor < physics.PressureFactorCutoff {
			runtime.BlockedReason = "NO_PRESSURE"
			runtime.AvailablePressure = round3(availablePressure)
			continue
		}

		actualL := math.Min(target.waterRemainingL, demandL)
		if actualL <= 0 {
			runtime.BlockedReason = "NO_WATER_SOURCE"
			continue
		}
		target.waterRemainingL = math.Max(0, target.waterRemainingL-actualL)
		out.consumedWaterL += actualL

		effectiveRatio := actualL / demandL
		effectiveFlow := nozzle.flowLS * effectiveRatio * pressureFactor
		out.effectiveFlowLS += effectiveFlow
		out.suppressionEffectiveFlowLS += effectiveFlow * nozzle.suppressionFactor
		if nozzle.hasCenter {
			out.wetNozzleCenters = append(out.wetNozzleCenters, [2]float64{nozzle.cx, nozzle.cy})
		}
		vehicleTotalFlow[target.vehicleUID] += effectiveFlow

		runtime.BlockedReason = ""
		runtime.HasWater = true
		runtime.EffectiveFlowLS = round3(effectiveFlow)
		runtime.SuppressionFactor = round3(nozzle.suppressionFactor)
		runtime.AvailablePressure = round3(availablePressure)
		runtime.VehicleUID = target.vehicleUID
		if linkedHose != nil {
			runtime.HoseUID = linkedHose.deploymentUID
			if hr, ok := out.hoseRuntime[linkedHose.deploymentUID]; ok {
				hr.HasWater = true
				hr.BlockedReason = ""
				hr.VehicleUID = target.vehicleUID
				hr.FlowLS = round3(hr.FlowLS + effectiveFlow)
				hr.PressureLossM = round3(lineLoss)
			}
		}
	}

	for _, entry := range out.vehicleEntries {
		remaining := math.Max(0, entry.waterRemainingL)
		flow := vehicleTotalFlow[entry.vehicleUID]
		minutes := 0.0
		if flow > 0 && remaining > 0 {
			minutes = round1((remaining / flow) / 60.0)
		}
		out.vehicleRuntime[entry.vehicleUID] = &VehicleRuntime{
			Callsign:          entry.callsign,
			VehicleType:       entry.vehicleType,
			WaterCapacityL:    round2(entry.capacityL),
			WaterRemainingL:   round2(remaining),
			IsEmpty:           remaining <= 0.01,
			MinutesUntilEmpty: minutes,
		}
	}

	return out
}

func candidateDistance(nozzle *nozzleEntry, entry *vehicleEntry) float64 {
	if !entry.hasCenter {
		return 999999.0
	}
	return pointDistance(nozzle.cx, nozzle.cy, entry.cx, entry.cy)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
