package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

type createDeploymentPayload struct {
	Kind                 ResourceKind     `json:"kind"`
	Status               DeploymentStatus `json:"status"`
	RoleTag              string           `json:"role_tag,omitempty"`
	VehicleDictionaryUID string           `json:"vehicle_dictionary_id,omitempty"`
	GeometryType         GeometryType     `json:"geometry_type"`
	Geometry             [][]float64      `json:"geometry"`
	Props                map[string]any   `json:"props,omitempty"`
}

var deploymentStatuses = map[DeploymentStatus]struct{}{
	DeploymentPlanned: {}, DeploymentEnRoute: {}, DeploymentDeployed: {},
	DeploymentActive: {}, DeploymentCompleted: {},
}

var resourceKinds = map[ResourceKind]struct{}{
	ResourceVehicle: {}, ResourceHoseLine: {}, ResourceHoseSplitter: {},
	ResourceNozzle: {}, ResourceWaterSource: {}, ResourceCrew: {}, ResourceMarker: {},
}

// Kinds each planning role may place.
var hqPlanKinds = map[ResourceKind]struct{}{
	ResourceMarker: {}, ResourceHoseLine: {}, ResourceHoseSplitter: {},
	ResourceNozzle: {}, ResourceWaterSource: {},
}

var combatAreaKinds = map[ResourceKind]struct{}{
	ResourceHoseLine: {}, ResourceHoseSplitter: {}, ResourceNozzle: {},
	ResourceCrew: {}, ResourceMarker: {},
}

var rtpCommandPoints = map[string]struct{}{
	"HQ": {}, "BU1": {}, "BU2": {},
}

// handleCreateResourceDeployment applies the tactical workflow: leads place
// anything, dispatchers send vehicles, HQ plans, the incident commander sets
// command points, and combat areas work their own sector once their command
// point stands.
func handleCreateResourceDeployment(ctx *commandContext, payload json.RawMessage) error {
	var p createDeploymentPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if _, ok := resourceKinds[p.Kind]; !ok {
		return errValidation("Unknown resource kind %q", p.Kind)
	}
	if p.Status == "" {
		p.Status = DeploymentPlanned
	}
	if _, ok := deploymentStatuses[p.Status]; !ok {
		return errValidation("Unknown deployment status %q", p.Status)
	}
	switch p.GeometryType {
	case GeometryPoint, GeometryLineString, GeometryPolygon:
	default:
		return errValidation("Unknown geometry type %q", p.GeometryType)
	}
	if len(p.Geometry) == 0 {
		return errValidation("geometry must not be empty")
	}
	if p.Props == nil {
		p.Props = map[string]any{}
	}

	if p.Kind == ResourceVehicle {
		if p.VehicleDictionaryUID == "" {
			return errValidation("vehicle_dictionary_id is required for vehicle deployments")
		}
		if _, err := ctx.store.VehicleSpecByUID(p.VehicleDictionaryUID); err != nil {
			return err
		}
	}

	if !hasRole(ctx.roles, RoleAdmin, RoleTrainingLead) {
		if err := applyDeploymentWorkflow(ctx, &p); err != nil {
			return err
		}
	}

	geometry, err := json.Marshal(p.Geometry)
	if err != nil {
		return errValidation("Malformed geometry: %v", err)
	}
	props, err := json.Marshal(p.Props)
	if err != nil {
		return errValidation("Malformed props: %v", err)
	}
	return ctx.store.CreateDeployment(&ResourceDeployment{
		SessionUID:           ctx.session.UID,
		Kind:                 p.Kind,
		Status:               p.Status,
		RoleTag:              p.RoleTag,
		CreatedByUID:         ctx.user.UID,
		VehicleDictionaryUID: p.VehicleDictionaryUID,
		GeometryType:         p.GeometryType,
		Geometry:             datatypes.JSON(geometry),
		Props:                datatypes.JSON(props),
	})
}

// applyDeploymentWorkflow enforces the per-role placement rules for
// non-lead actors. The first matching role wins.
func applyDeploymentWorkflow(ctx *commandContext, p *createDeploymentPayload) error {
	props := propMap(p.Props)
	switch {
	case hasRole(ctx.roles, RoleDispatcher):
		if p.Kind != ResourceVehicle || p.Status != DeploymentEnRoute {
			return errForbidden("Dispatchers may only send vehicles en route")
		}
		code, err := parseDispatchCode(props.str("dispatch_code"))
		if err != nil {
			return err
		}
		eta := props.float("dispatch_eta_sec", 0)
		if eta == 0 {
			// Older consoles send minutes.
			eta = props.float("dispatch_eta_min", 0) * 60
		}
		if eta < dispatchETAMinSec || eta > dispatchETAMaxSec {
			return errValidation("dispatch_eta_sec must be between %d and %d", dispatchETAMinSec, dispatchETAMaxSec)
		}
		p.Props["dispatch_code"] = code
		p.Props["dispatch_eta_sec"] = eta
		return nil

	case hasRole(ctx.roles, RoleHQ):
		if _, ok := hqPlanKinds[p.Kind]; !ok {
			return errForbidden("HQ may only place planning resources")
		}
		if p.Status != DeploymentPlanned && p.Status != DeploymentDeployed {
			return errForbidden("HQ placements must be planned or deployed")
		}
		p.Props["plan_only"] = true
		return nil

	case hasRole(ctx.roles, RoleRTP):
		if p.Kind != ResourceMarker {
			return errForbidden("The incident commander may only place command markers")
		}
		point := props.str("command_point")
		if _, ok := rtpCommandPoints[point]; !ok {
			return errValidation("command_point must be HQ, BU1 or BU2")
		}
		p.RoleTag = string(RoleRTP)
		return nil

	case hasRole(ctx.roles, RoleCombatArea1):
		return applyCombatAreaWorkflow(ctx, p, RoleCombatArea1, 1)

	case hasRole(ctx.roles, RoleCombatArea2):
		return applyCombatAreaWorkflow(ctx, p, RoleCombatArea2, 2)
	}
	return errForbidden("Your roles cannot place resource deployments")
}

// applyCombatAreaWorkflow gates a combat area behind its command point: the
// incident commander must have marked BUn before the sector may act.
func applyCombatAreaWorkflow(ctx *commandContext, p *createDeploymentPayload, role Role, area int) error {
	if _, ok := combatAreaKinds[p.Kind]; !ok {
		return errForbidden("Combat areas may only place line resources")
	}
	deployments, err := ctx.store.Deployments(ctx.session.UID)
	if err != nil {
		return err
	}
	point := fmt.Sprintf("BU%d", area)
	placed := false
	for i := range deployments {
		row := &deployments[i]
		if row.Kind != ResourceMarker || row.Status == DeploymentCompleted {
			continue
		}
		// Only the incident commander's own marker opens the sector. An HQ
		// plan marker on the same point does not count.
		if row.RoleTag != string(RoleRTP) {
			continue
		}
		if decodeProps(row).str("command_point") == point {
			placed = true
			break
		}
	}
	if !placed {
		return errConflict(
			"БУ-%d ожидает постановки РТП. РТП должен разместить командную точку %s", area, point)
	}
	p.RoleTag = string(role)
	return nil
}

// parseDispatchCode checks the confirmation code the dispatcher read back
// over the phone: fixed length, drawn from an alphabet without lookalike
// characters.
func parseDispatchCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != dispatchCodeLength {
		return "", errValidation("dispatch_code must be exactly %d characters", dispatchCodeLength)
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(dispatchCodeAlphabet, rune(code[i])) {
			return "", errValidation("dispatch_code contains an invalid character %q", code[i])
		}
	}
	return code, nil
}
