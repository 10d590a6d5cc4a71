package detector

import (
	"context"
	"regexp"
	"strings"

	"github.com/joshsymonds/certify/internal/models"
)

// Secret signal types, most severe first.
const (
	SignalPrivateKey    = "private_key"
	SignalAPIKey        = "api_key"
	SignalGenericToken  = "generic_token"
	SignalCredentialURL = "credential_url"
)

var placeholderMarkers = []string{
	"example", "changeme", "change_me", "placeholder", "your", "xxxx", "dummy", "sample",
	"redacted", "<", "${", "{{", "process.env", "getenv", "env(", "****",
}

// isRealSecret rejects values that are obviously placeholders or references.
func isRealSecret(value string) bool {
	lower := strings.ToLower(value)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	return strings.Trim(value, value[:1]) != ""
}

const credentialKeys = `api[_-]?key|secret[_-]?key|encryption[_-]?key|signing[_-]?key|private[_-]?key|client[_-]?secret|secret|auth[_-]?token|access[_-]?token|token|passwd|password|pwd`

var secretRules = []Rule{
	{
		Type:           SignalPrivateKey,
		Confidence:     models.ConfidenceHigh,
		Severity:       models.SeverityCritical,
		Pattern:        regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY( BLOCK)?-----`),
		// Only the header is kept as the snippet; inline key material must not be copied.
		Accept:         func(string) bool { return true },
		Details:        "Private key material committed to the repository",
		Recommendation: "Remove the private key from the repository, rotate it, and load it from a secrets manager at runtime.",
	},
	{
		Type:           SignalAPIKey,
		Confidence:     models.ConfidenceHigh,
		Severity:       models.SeverityHigh,
		Pattern:        regexp.MustCompile(`\b(AKIA[0-9A-Z]{16}|(sk|rk)_live_[0-9a-zA-Z]{24,}|sk-(proj-)?[A-Za-z0-9_\-]{32,}|ghp_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{60,}|xox[baprs]-[A-Za-z0-9\-]{10,}|AIza[0-9A-Za-z_\-]{35})`),
		Accept:         isRealSecret,
		Redact:         true,
		Details:        "Provider API key committed to the repository",
		Recommendation: "Revoke the exposed API key, remove it from history, and inject it through environment configuration.",
	},
	{
		Type:       SignalGenericToken,
		Confidence: models.ConfidenceMedium,
		Severity:   models.SeverityMedium,
		Pattern: regexp.MustCompile(
			`(?i)\b[a-z0-9_.\-]*?(` + credentialKeys + `)["']?\s*[:=]\s*["']([^"'\s]{8,})["']`),
		ValueGroup:     2,
		Accept:         isRealSecret,
		Redact:         true,
		Details:        "Hard-coded credential assignment",
		Recommendation: "Move the credential to a secrets manager or environment variable and rotate the committed value.",
	},
	{
		Type:       SignalGenericToken,
		Confidence: models.ConfidenceMedium,
		Severity:   models.SeverityMedium,
		// Dotenv and YAML values are usually unquoted.
		Pattern: regexp.MustCompile(
			`(?im)^\s*(?:export\s+)?["']?[a-z0-9_.\-]*?(` + credentialKeys + `)["']?\s*[:=]\s*["']?([^"'\s#]{8,})["']?\s*(?:#.*)?$`),
		Paths:          isConfig,
		ValueGroup:     2,
		Accept:         isRealSecret,
		Redact:         true,
		Details:        "Hard-coded credential in configuration",
		Recommendation: "Move the credential to a secrets manager or environment variable and rotate the committed value.",
	},
	{
		Type:           SignalCredentialURL,
		Confidence:     models.ConfidenceMedium,
		Severity:       models.SeverityLow,
		Pattern:        regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.\-]*://[^\s:/@"']+:([^\s:/@"']+)@[^\s"']+`),
		ValueGroup:     1,
		Accept:         isRealSecret,
		Redact:         true,
		Details:        "Connection URL with an embedded password",
		Recommendation: "Remove credentials from connection strings and supply them separately from configuration.",
	},
}

// ScanForSecrets detects committed secrets. Snippets are redacted; secret
// values never leave this function.
func ScanForSecrets(ctx context.Context, set *FileSet) ([]models.Signal, error) {
	return scan(ctx, set, models.CategorySecrets, secretRules)
}
