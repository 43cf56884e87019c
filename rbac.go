package main

// Permission names the coarse capabilities checked before command dispatch.
type Permission string

const (
	PermSessionsRead  Permission = "sessions:read"
	PermSessionsWrite Permission = "sessions:write"
	PermStateRead     Permission = "state:read"
	PermStateWrite    Permission = "state:write"
	PermSceneWrite    Permission = "scene:write"
	PermVehiclesRead  Permission = "vehicles:read"
	PermVehiclesWrite Permission = "vehicles:write"
	PermUsersManage   Permission = "users:manage"
	PermAdminManage   Permission = "admin:manage"
)

var allRoles = []Role{
	RoleAdmin, RoleCombatArea1, RoleCombatArea2, RoleDispatcher,
	RoleHQ, RoleRTP, RoleTrainingLead,
}

// rolePermissions is the capability matrix. Every connected trainee can read
// everything and push state commands; structural writes stay with the leads.
var rolePermissions = map[Permission][]Role{
	PermSessionsRead:  allRoles,
	PermSessionsWrite: {RoleAdmin, RoleDispatcher, RoleTrainingLead},
	PermStateRead:     allRoles,
	PermStateWrite:    allRoles,
	PermSceneWrite:    {RoleAdmin, RoleTrainingLead},
	PermVehiclesRead:  allRoles,
	PermVehiclesWrite: {RoleAdmin, RoleTrainingLead},
	PermUsersManage:   {RoleAdmin},
	PermAdminManage:   {RoleAdmin},
}

// globalScopeRoles may act in any session, not only their own.
var globalScopeRoles = map[Role]struct{}{
	RoleAdmin:        {},
	RoleDispatcher:   {},
	RoleTrainingLead: {},
}

// hasRole reports membership in a role list.
func hasRole(roles []Role, wanted ...Role) bool {
	for _, role := range roles {
		for _, w := range wanted {
			if role == w {
				return true
			}
		}
	}
	return false
}

// hasPermission checks the capability matrix against the actor's roles.
func hasPermission(roles []Role, perm Permission) bool {
	allowed, ok := rolePermissions[perm]
	if !ok {
		return false
	}
	return hasRole(roles, allowed...)
}

// requirePermission turns a missing capability into a command error.
func requirePermission(roles []Role, perm Permission) error {
	if !hasPermission(roles, perm) {
		return errForbidden("Missing permission %s", perm)
	}
	return nil
}

// assertSessionScope verifies the actor may touch the given session. Roles
// with global scope pass unconditionally, everyone else must act in a session
// they participate in, which for this deployment means the session they
// authenticated into.
func assertSessionScope(roles []Role, authorizedSessionUID, targetSessionUID string) error {
	for _, role := range roles {
		if _, ok := globalScopeRoles[role]; ok {
			return nil
		}
	}
	if authorizedSessionUID != targetSessionUID {
		return errForbidden("Session %s is outside your scope", targetSessionUID)
	}
	return nil
}
