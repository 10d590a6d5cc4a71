package detector

import (
	"context"
	"regexp"

	"github.com/joshsymonds/certify/internal/models"
)

// Logging signal types.
const (
	SignalAuditLog          = "audit_log"
	SignalStructuredLogging = "structured_logging"
	SignalSecurityEvents    = "security_events"
	SignalLogMonitoring     = "log_monitoring"
)

var loggingRules = []Rule{
	{
		Type:       SignalAuditLog,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(auditLog(ger)?\.(log|record|write|info)\(|audit\.(log|record|Record)\(|createAuditEvent\(|logAuditEvent\(|recordAudit\(|AuditService)`),
		Paths:      isSource,
		Details:    "Audit trail call site",
	},
	{
		Type:       SignalAuditLog,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(AUDIT_LOG|audit_events|audit_log|auditTrail)\b`),
		Details:    "Audit log storage or configuration",
	},
	{
		Type:       SignalStructuredLogging,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(winston\.createLogger\(|pino\(|bunyan\.createLogger\(|slog\.New\(|zap\.New(Production|Development)\(|zerolog\.New\(|logrus\.New\(|structlog\.)`),
		Paths:      isSource,
		Details:    "Structured logger construction",
	},
	{
		Type:       SignalStructuredLogging,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`\b(LOG_LEVEL|LOG_FORMAT)\b`),
		Details:    "Logging configuration",
	},
	{
		Type:       SignalStructuredLogging,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(console\.(log|error)\(|\bprint\(|log\.Print(f|ln)?\()`),
		Paths:      isSource,
		Details:    "Unstructured logging only",
	},
	{
		Type:       SignalSecurityEvents,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(logSecurityEvent\(|securityLogger\.|log(ger)?\.\w+\(.*(login failed|failed login|unauthorized|access denied|authentication failed))`),
		Paths:      isSource,
		Details:    "Security events are logged",
	},
	{
		Type:       SignalSecurityEvents,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(SECURITY_LOG|security_events|failed_login_attempts)\b`),
		Details:    "Security event configuration",
	},
	{
		Type:       SignalLogMonitoring,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(Sentry\.init\(|sentry\.Init\(|dd-trace|newrelic\.|prometheus\.(NewCounter|MustRegister)|promhttp\.Handler\()`),
		Paths:      isSource,
		Details:    "Error tracking or metrics instrumentation",
	},
	{
		Type:       SignalLogMonitoring,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`\b(SENTRY_DSN|DD_API_KEY|NEW_RELIC_LICENSE_KEY|CLOUDWATCH_LOG_GROUP)\b`),
		Details:    "Monitoring configuration",
	},
}

// ScanForLogging detects audit, structured and security logging.
func ScanForLogging(ctx context.Context, set *FileSet) ([]models.Signal, error) {
	return scan(ctx, set, models.CategoryLogging, loggingRules)
}
