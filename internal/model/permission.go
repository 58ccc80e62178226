package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionReportsRead allows viewing results, item analysis and score
	// distributions.
	PermissionReportsRead Permission = "reports:read"

	// PermissionActivityRead allows viewing the proctoring activity log.
	PermissionActivityRead Permission = "activity:read"

	// PermissionMonitorRead allows following an exam's live progress.
	PermissionMonitorRead Permission = "monitor:read"

	// PermissionParticipantsReset allows wiping a participant's attempt so
	// the exam can be retaken.
	PermissionParticipantsReset Permission = "participants:reset"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionReportsRead,
	PermissionActivityRead,
	PermissionMonitorRead,
	PermissionParticipantsReset,
}

// PermissionCodes returns the permissions as plain strings, the form they
// take inside a token.
func PermissionCodes(perms []Permission) []string {
	codes := make([]string, len(perms))
	for i, p := range perms {
		codes[i] = string(p)
	}
	return codes
}
