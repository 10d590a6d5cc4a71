package detector

import (
	"context"
	"regexp"

	"github.com/joshsymonds/certify/internal/models"
)

// CI/CD signal types.
const (
	SignalGitHubActions      = "github_actions"
	SignalGitLabCI           = "gitlab_ci"
	SignalDependencyScanning = "dependency_scanning"
	SignalSecretScanning     = "secret_scanning"
	SignalStaticAnalysis     = "static_analysis"
	SignalCodeReview         = "code_review"
)

var anyContent = regexp.MustCompile(`\S`)

var cicdRules = []Rule{
	{
		Type:       SignalGitHubActions,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?m)^\s*(jobs|on)\s*:`),
		Paths:      isWorkflow,
		Details:    "GitHub Actions workflow",
	},
	{
		Type:       SignalGitLabCI,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?m)^\s*(stages|script|image)\s*:`),
		Paths:      isGitLabCI,
		Details:    "GitLab CI pipeline",
	},
	{
		Type:       SignalDependencyScanning,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(npm audit|yarn audit|snyk (test|monitor)|snyk/actions|trivy|govulncheck|dependency-check|pip-audit|safety check|actions/dependency-review-action|osv-scanner)`),
		Paths:      isCIFile,
		Details:    "Dependency vulnerability scan in CI",
	},
	{
		Type:       SignalDependencyScanning,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`package-ecosystem`),
		Paths:      named(".github/dependabot.yml", ".github/dependabot.yaml"),
		Details:    "Dependabot dependency updates",
	},
	{
		Type:       SignalDependencyScanning,
		Confidence: models.ConfidenceMedium,
		Pattern:    anyContent,
		Paths:      named("renovate.json"),
		Details:    "Renovate dependency updates",
	},
	{
		Type:       SignalSecretScanning,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(gitleaks|trufflehog|detect-secrets|git-secrets|ggshield)`),
		Paths:      isCIFile,
		Details:    "Secret scanning in CI",
	},
	{
		Type:       SignalStaticAnalysis,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)(codeql|semgrep|sonar-scanner|sonarcloud|golangci-lint|gosec|staticcheck|bandit|eslint|checkov|tfsec)`),
		Paths:      anyOf(isWorkflow, isGitLabCI, named("jenkinsfile", ".circleci/config.yml", "azure-pipelines.yml", "bitbucket-pipelines.yml", ".pre-commit-config.yaml")),
		Details:    "Static analysis in CI",
	},
	{
		Type:       SignalStaticAnalysis,
		Confidence: models.ConfidenceMedium,
		Pattern:    anyContent,
		Paths:      named(".golangci.yml", ".golangci.yaml", "sonar-project.properties", ".semgrep.yml"),
		Details:    "Static analysis configuration",
	},
	{
		Type:       SignalCodeReview,
		Confidence: models.ConfidenceHigh,
		Pattern:    regexp.MustCompile(`(?i)required_approving_review_count\s*[:=]\s*[1-9]`),
		Details:    "Branch protection requires approving reviews",
	},
	{
		Type:       SignalCodeReview,
		Confidence: models.ConfidenceMedium,
		Pattern:    anyContent,
		Paths:      named("codeowners", ".github/pull_request_template.md"),
		Details:    "Code owners or review template",
	},
	{
		Type:       SignalCodeReview,
		Confidence: models.ConfidenceLow,
		Pattern:    regexp.MustCompile(`(?m)^\s*pull_request\s*:`),
		Paths:      isWorkflow,
		Details:    "Checks run on pull requests",
	},
}

// ScanForCICD detects pipeline and change-control posture.
func ScanForCICD(ctx context.Context, set *FileSet) ([]models.Signal, error) {
	return scan(ctx, set, models.CategoryCICD, cicdRules)
}
