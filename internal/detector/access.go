package detector

import (
	"context"
	"regexp"

	"github.com/joshsymonds/certify/internal/models"
)

// Access control signal types.
const (
	SignalRBAC            = "rbac"
	SignalPermissionCheck = "permission_check"
	SignalTenantIsolation = "tenant_isolation"
)

var accessControlRules = []Rule{
	{
		Type:       SignalRBAC,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(requireRole\(|hasRole\(|checkRole\(|@Roles\(|casbin\.NewEnforcer|authorize\(\s*\[?\s*['"](admin|owner))`),
		Paths:      isSource,
		Details:    "Role-based authorization check",
	},
	{
		Type:       SignalRBAC,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)(ROLE_ADMIN|user\.role\b|\brole_id\b|\broles\s*:\s*\[)`),
		Details:    "Role model or configuration",
	},
	{
		Type:       SignalPermissionCheck,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(requirePermission\(|checkPermission\(|hasPermission\(|enforcer\.Enforce\(|@PreAuthorize|permission_required)`),
		Paths:      isSource,
		Details:    "Permission enforcement call",
	},
	{
		Type:       SignalPermissionCheck,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\bpermissions?\s*[:=]`),
		Details:    "Permission definitions",
	},
	{
		Type:       SignalTenantIsolation,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(WHERE\s+(\w+\.)?(org|organization|tenant)_id\s*=|(organizationId|tenantId)\s*:\s*(req|ctx|user|session)\.|withTenant\()`),
		Paths:      isSource,
		Details:    "Queries scoped to the caller's tenant",
	},
	{
		Type:       SignalTenantIsolation,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`\b(organizationId|organization_id|tenantId|tenant_id)\b`),
		Paths:      isSource,
		Details:    "Tenant identifiers in data model",
	},
}

// ScanForAccessControl detects authorization and tenant isolation.
func ScanForAccessControl(ctx context.Context, set *FileSet) ([]models.Signal, error) {
	return scan(ctx, set, models.CategoryAccessControl, accessControlRules)
}
