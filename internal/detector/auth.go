package detector

import (
	"context"
	"regexp"

	"github.com/joshsymonds/certify/internal/models"
)

// Authentication signal types.
const (
	SignalMFA             = "mfa"
	SignalJWT             = "jwt"
	SignalSession         = "session"
	SignalOAuth           = "oauth"
	SignalPasswordHashing = "password_hashing"
	SignalAPIKeyAuth      = "api_key_auth"
)

var authRules = []Rule{
	{
		Type:       SignalMFA,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(speakeasy\.(totp|verify)|otplib\.(authenticator|totp)|pyotp\.TOTP|totp\.(Validate|GenerateCode)|webauthn\.|verifyTotp\(|verifyMfa\(|mfa\.verify\()`),
		Paths:      isSource,
		Details:    "TOTP or WebAuthn verification call",
	},
	{
		Type:       SignalMFA,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(MFA_ENABLED|REQUIRE_MFA|mfa_required|mfaRequired|mfaVerified|two_factor_enabled|otp_secret)\b`),
		Details:    "MFA configuration or session flag",
	},
	{
		Type:       SignalMFA,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(?i)\b(mfa|2fa|two[-_ ]factor)\b`),
		Paths:      isSource,
		Details:    "MFA mentioned in code",
	},
	{
		Type:       SignalJWT,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)\bjwt\.(sign|verify|Parse|ParseWithClaims|NewWithClaims|encode|decode)\(`),
		Paths:      isSource,
		Details:    "JWT signing or verification call",
	},
	{
		Type:       SignalJWT,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`\b(JWT_SECRET|JWT_PUBLIC_KEY|JWT_PRIVATE_KEY|JWT_EXPIRES_IN|jwt_secret)\b`),
		Details:    "JWT key configuration",
	},
	{
		Type:       SignalJWT,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(?i)(jsonwebtoken|golang-jwt|pyjwt|bearer token)`),
		Details:    "JWT library referenced",
	},
	{
		Type:       SignalSession,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(express-session|cookie-session|sessions\.NewCookieStore|SessionMiddleware|gorilla/sessions|session\(\{)`),
		Paths:      isSource,
		Details:    "Server-side session middleware",
	},
	{
		Type:       SignalSession,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)\b(SESSION_SECRET|SESSION_TTL|session_timeout|sessionTimeout)\b|httpOnly\s*:\s*true`),
		Details:    "Session configuration",
	},
	{
		Type:       SignalOAuth,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(passport\.use\(|oauth2\.Config\{|OAuth2Client\(|openid-client|next-auth|golang\.org/x/oauth2|authlib\.)`),
		Paths:      isSource,
		Details:    "OAuth or OpenID Connect client",
	},
	{
		Type:       SignalOAuth,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`\b(OAUTH_CLIENT_ID|OAUTH_CLIENT_SECRET|GOOGLE_CLIENT_ID|GITHUB_CLIENT_ID|OIDC_ISSUER|AUTH0_DOMAIN)\b`),
		Details:    "OAuth client configuration",
	},
	{
		Type:       SignalPasswordHashing,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(bcrypt\.(hash|compare|hashSync|compareSync|GenerateFromPassword|CompareHashAndPassword)|argon2\.(hash|verify|IDKey)|scrypt\.Key\(|pbkdf2\.Key\(|passlib\.)`),
		Paths:      isSource,
		Details:    "Password hashing with an adaptive algorithm",
	},
	{
		Type:       SignalPasswordHashing,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(?i)\b(bcrypt|argon2|scrypt)\b`),
		Details:    "Password hashing library referenced",
	},
	{
		Type:       SignalAPIKeyAuth,
		Confidence: models.ConfidenceMedium,
		Pattern:    regexp.MustCompile(`(?i)(x-api-key|apiKeyAuth|validateApiKey\(|verifyApiKey\(|API_KEY_HEADER)`),
		Paths:      isSource,
		Details:    "API key authentication",
	},
}

// ScanForAuth detects authentication mechanisms.
func ScanForAuth(ctx context.Context, set *FileSet) ([]models.Signal, error) {
	return scan(ctx, set, models.CategoryAuth, authRules)
}
