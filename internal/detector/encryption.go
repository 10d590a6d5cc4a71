package detector

import (
	"context"
	"regexp"

	"github.com/joshsymonds/certify/internal/models"
)

// Encryption signal types.
const (
	SignalAtRest        = "at_rest"
	SignalInTransit     = "in_transit"
	SignalKeyManagement = "key_management"
)

var encryptionRules = []Rule{
	{
		Type:       SignalAtRest,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(createCipheriv\(\s*['"]aes-(128|192|256)-(gcm|cbc|ctr)|aes\.NewCipher\(|cipher\.NewGCM\(|crypto\.subtle\.encrypt|Fernet\(|AESGCM\(|kms\.Encrypt|ServerSideEncryption)`),
		Paths:      isSource,
		Details:    "Symmetric encryption of stored data",
	},
	{
		Type:       SignalAtRest,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(ENCRYPTION_KEY|DATA_ENCRYPTION_KEY|encrypt_at_rest|storage_encrypted|kms_key_id)\b|encrypted\s*[:=]\s*true`),
		Details:    "Encryption-at-rest configuration",
	},
	{
		Type:       SignalAtRest,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(?i)\b(encrypt|decrypt|aes)\b`),
		Paths:      isSource,
		Details:    "Encryption mentioned in code",
	},
	{
		Type:       SignalInTransit,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(https\.createServer\(|tls\.Config\{|ListenAndServeTLS\(|ssl_context|helmet\.hsts|Strict-Transport-Security|sslmode=(require|verify-full)|minVersion\s*:\s*['"]TLSv1\.[23])`),
		Details:    "TLS termination or HSTS enforcement",
	},
	{
		Type:       SignalInTransit,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(FORCE_HTTPS|HTTPS_ONLY|SSL_CERT|TLS_CERT|TLS_KEY)\b|\b(tls|ssl)\s*:\s*true`),
		Details:    "TLS configuration",
	},
	{
		Type:       SignalInTransit,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(?i)\b(tls|ssl)\b`),
		Paths:      isSource,
		Details:    "TLS mentioned in code",
	},
	{
		Type:       SignalKeyManagement,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(KMSClient|kms\.NewFromConfig|client-kms|@google-cloud/kms|azure-keyvault|vault\.NewClient|hvac\.Client|SecretManagerServiceClient|secretsmanager\.)`),
		Paths:      isSource,
		Details:    "Managed key or secret store client",
	},
	{
		Type:       SignalKeyManagement,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(KMS_KEY_ID|VAULT_ADDR|KEY_ROTATION|key_rotation_days|enable_key_rotation)\b`),
		Details:    "Key management configuration",
	},
}

// ScanForEncryption detects encryption at rest, in transit and key management.
func ScanForEncryption(ctx context.Context, set *FileSet) ([]models.Signal, error) {
	return scan(ctx, set, models.CategoryEncryption, encryptionRules)
}
