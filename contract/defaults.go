package contract

// Deployment defaults shared by config and the packages that fall back to them.
const (
	// DefaultAdminClaim is the custom claim that marks a Firebase user as an admin.
	DefaultAdminClaim = "admin"
	DefaultAuditLogID = "admin-audit"

	DirectoryModeIndex  = "index"
	DirectoryModeRescan = "rescan"
)
