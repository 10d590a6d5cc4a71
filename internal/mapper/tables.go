package mapper

import (
	"github.com/joshsymonds/certify/internal/detector"
	"github.com/joshsymonds/certify/internal/models"
)

func anyAuth() Requirement {
	return Requirement{Category: models.CategoryAuth}
}

func authTypes(types ...string) Requirement {
	return Requirement{Category: models.CategoryAuth, Types: types}
}

func access(types ...string) Requirement {
	return Requirement{Category: models.CategoryAccessControl, Types: types}
}

func encryption(types ...string) Requirement {
	return Requirement{Category: models.CategoryEncryption, Types: types}
}

func logging(types ...string) Requirement {
	return Requirement{Category: models.CategoryLogging, Types: types}
}

func cicd(types ...string) Requirement {
	return Requirement{Category: models.CategoryCICD, Types: types}
}

const (
	recAuthentication = "Implement an authentication mechanism such as signed JWTs or server-side sessions backed by adaptively hashed passwords."
	recMFA            = "Implement multi-factor authentication (TOTP or WebAuthn) for user sign-in and privileged actions."
	recAccess         = "Implement role- or permission-based authorization checks on every protected route and scope data access to the caller's organization."
	recEncryption     = "Implement encryption for sensitive data at rest (AES-GCM or a managed KMS) and enforce TLS for data in transit."
	recTransit        = "Implement TLS for all external and internal traffic and enable HSTS on web endpoints."
	recAtRest         = "Implement encryption at rest for sensitive records using AES-256-GCM or a managed key service."
	recKeys           = "Implement managed key storage (KMS, Vault or a cloud secret manager) with documented rotation."
	recLogging        = "Implement structured application logging with audit events for security-relevant actions."
	recAuditLog       = "Implement an append-only audit log recording who performed privileged actions and when."
	recVulnScanning   = "Implement dependency and static analysis scanning in the CI pipeline and fail builds on high-severity issues."
	recChangeControl  = "Implement a CI pipeline with required code review (CODEOWNERS or branch protection) before changes reach production."
	recSecrets        = "Implement secret scanning and move committed credentials to a secrets manager."
)

func soc2Table() RuleTable {
	return RuleTable{
		Framework: models.FrameworkSOC2,
		Controls: []Control{
			{
				ID:             "CC6.1",
				Title:          "Logical access security",
				Requires:       []Requirement{anyAuth()},
				Violations:     true,
				Recommendation: recAuthentication,
			},
			{
				ID:             "CC6.2",
				Title:          "User authentication and credential management",
				Requires:       []Requirement{authTypes(detector.SignalMFA, detector.SignalSession, detector.SignalOAuth)},
				Recommendation: recMFA,
			},
			{
				ID:             "CC6.3",
				Title:          "Role-based access and least privilege",
				Requires:       []Requirement{access()},
				Recommendation: recAccess,
			},
			{
				ID:             "CC6.7",
				Title:          "Protection of data in transmission and storage",
				Requires:       []Requirement{encryption(detector.SignalInTransit, detector.SignalAtRest)},
				Recommendation: recEncryption,
			},
			{
				ID:             "CC7.1",
				Title:          "Vulnerability and configuration monitoring",
				Requires:       []Requirement{cicd(detector.SignalDependencyScanning, detector.SignalStaticAnalysis, detector.SignalSecretScanning)},
				Recommendation: recVulnScanning,
			},
			{
				ID:             "CC7.2",
				Title:          "Security event monitoring",
				Requires:       []Requirement{logging()},
				Recommendation: recLogging,
			},
			{
				ID:             "CC8.1",
				Title:          "Change management",
				Requires:       []Requirement{cicd(detector.SignalGitHubActions, detector.SignalGitLabCI, detector.SignalCodeReview)},
				Recommendation: recChangeControl,
			},
		},
	}
}

func iso27001Table() RuleTable {
	return RuleTable{
		Framework: models.FrameworkISO27001,
		Controls: []Control{
			{
				ID:             "A.9.2.1",
				Title:          "User registration and de-registration",
				Requires:       []Requirement{anyAuth()},
				Recommendation: recAuthentication,
			},
			{
				ID:             "A.9.2.4",
				Title:          "Management of secret authentication information",
				Recommendation: recSecrets,
			},
			{
				ID:             "A.9.4.1",
				Title:          "Information access restriction",
				Requires:       []Requirement{access()},
				Recommendation: recAccess,
			},
			{
				ID:             "A.9.4.2",
				Title:          "Secure log-on procedures",
				Requires:       []Requirement{authTypes(detector.SignalMFA, detector.SignalPasswordHashing, detector.SignalSession)},
				Recommendation: recMFA,
			},
			{
				ID:             "A.10.1.1",
				Title:          "Policy on the use of cryptographic controls",
				Requires:       []Requirement{encryption()},
				Recommendation: recEncryption,
			},
			{
				ID:             "A.10.1.2",
				Title:          "Key management",
				Requires:       []Requirement{encryption(detector.SignalKeyManagement)},
				Recommendation: recKeys,
			},
			{
				ID:             "A.12.4.1",
				Title:          "Event logging",
				Requires:       []Requirement{logging()},
				Recommendation: recLogging,
			},
			{
				ID:             "A.12.4.3",
				Title:          "Administrator and operator logs",
				Requires:       []Requirement{logging(detector.SignalAuditLog)},
				Recommendation: recAuditLog,
			},
			{
				ID:             "A.12.6.1",
				Title:          "Management of technical vulnerabilities",
				Requires:       []Requirement{cicd(detector.SignalDependencyScanning, detector.SignalStaticAnalysis)},
				Recommendation: recVulnScanning,
			},
			{
				ID:             "A.14.2.2",
				Title:          "System change control procedures",
				Requires:       []Requirement{cicd(detector.SignalGitHubActions, detector.SignalGitLabCI, detector.SignalCodeReview)},
				Recommendation: recChangeControl,
			},
		},
	}
}

func nist80053Table() RuleTable {
	return RuleTable{
		Framework: models.FrameworkNIST80053,
		Controls: []Control{
			{
				ID:             "IA-2",
				Title:          "Identification and authentication (organizational users)",
				Requires:       []Requirement{anyAuth()},
				Violations:     true,
				Recommendation: recAuthentication,
			},
			{
				ID:             "IA-2(1)",
				Title:          "Multi-factor authentication to privileged accounts",
				Requires:       []Requirement{authTypes(detector.SignalMFA)},
				Recommendation: recMFA,
			},
			{
				ID:             "IA-5",
				Title:          "Authenticator management",
				Recommendation: recSecrets,
			},
			{
				ID:             "AC-2",
				Title:          "Account management",
				Requires:       []Requirement{access(detector.SignalRBAC), authTypes(detector.SignalOAuth, detector.SignalSession)},
				Recommendation: recAccess,
			},
			{
				ID:             "AC-3",
				Title:          "Access enforcement",
				Requires:       []Requirement{access(detector.SignalPermissionCheck, detector.SignalTenantIsolation)},
				Recommendation: recAccess,
			},
			{
				ID:             "AC-6",
				Title:          "Least privilege",
				Requires:       []Requirement{access(detector.SignalRBAC, detector.SignalPermissionCheck)},
				Recommendation: recAccess,
			},
			{
				ID:             "SC-8",
				Title:          "Transmission confidentiality and integrity",
				Requires:       []Requirement{encryption(detector.SignalInTransit)},
				Recommendation: recTransit,
			},
			{
				ID:             "SC-12",
				Title:          "Cryptographic key establishment and management",
				Requires:       []Requirement{encryption(detector.SignalKeyManagement)},
				Recommendation: recKeys,
			},
			{
				ID:             "SC-13",
				Title:          "Cryptographic protection",
				Requires:       []Requirement{encryption()},
				Recommendation: recEncryption,
			},
			{
				ID:             "SC-28",
				Title:          "Protection of information at rest",
				Requires:       []Requirement{encryption(detector.SignalAtRest)},
				Recommendation: recAtRest,
			},
			{
				ID:             "AU-2",
				Title:          "Event logging",
				Requires:       []Requirement{logging()},
				Recommendation: recLogging,
			},
			{
				ID:             "AU-12",
				Title:          "Audit record generation",
				Requires:       []Requirement{logging(detector.SignalAuditLog, detector.SignalSecurityEvents)},
				Recommendation: recAuditLog,
			},
			{
				ID:             "SI-2",
				Title:          "Flaw remediation",
				Requires:       []Requirement{cicd(detector.SignalDependencyScanning)},
				Recommendation: recVulnScanning,
			},
			{
				ID:             "RA-5",
				Title:          "Vulnerability monitoring and scanning",
				Requires:       []Requirement{cicd(detector.SignalDependencyScanning, detector.SignalStaticAnalysis, detector.SignalSecretScanning)},
				Recommendation: recVulnScanning,
			},
			{
				ID:             "CM-3",
				Title:          "Configuration change control",
				Requires:       []Requirement{cicd(detector.SignalGitHubActions, detector.SignalGitLabCI, detector.SignalCodeReview)},
				Recommendation: recChangeControl,
			},
		},
	}
}
