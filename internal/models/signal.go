package models

// SignalCategory groups signals by security concern.
type SignalCategory string

// Signal categories.
const (
	CategoryAuth          SignalCategory = "auth"
	CategoryEncryption    SignalCategory = "encryption"
	CategoryLogging       SignalCategory = "logging"
	CategoryAccessControl SignalCategory = "access_control"
	CategoryCICD          SignalCategory = "cicd"
	CategorySecrets       SignalCategory = "secrets"
)

// Evidence points at the code that produced a signal.
type Evidence struct {
	Path        string `json:"path"`
	Snippet     string `json:"snippet,omitempty"`
	LineNumbers []int  `json:"lineNumbers,omitempty"`
}

// Signal is a typed, evidence-backed observation about a code pattern.
// Severity and Recommendation are only set for secrets warnings.
type Signal struct {
	Category       SignalCategory `json:"category"`
	Type           string         `json:"type"`
	Confidence     Confidence     `json:"confidence"`
	Details        string         `json:"details"`
	Severity       string         `json:"severity,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	Evidence       []Evidence     `json:"evidence"`
}

// Signals collects every signal produced during a run.
type Signals struct {
	Auth            []Signal `json:"auth"`
	Encryption      []Signal `json:"encryption"`
	Logging         []Signal `json:"logging"`
	AccessControl   []Signal `json:"accessControl"`
	CICD            []Signal `json:"cicd"`
	SecretsWarnings []Signal `json:"secretsWarnings"`
	ScannedFiles    int      `json:"scannedFiles"`
	SkippedFiles    int      `json:"skippedFiles"`
}

// ByCategory returns the signals recorded for category.
func (s *Signals) ByCategory(category SignalCategory) []Signal {
	switch category {
	case CategoryAuth:
		return s.Auth
	case CategoryEncryption:
		return s.Encryption
	case CategoryLogging:
		return s.Logging
	case CategoryAccessControl:
		return s.AccessControl
	case CategoryCICD:
		return s.CICD
	case CategorySecrets:
		return s.SecretsWarnings
	default:
		return nil
	}
}

// Append adds signals to the list for their category.
func (s *Signals) Append(signals ...Signal) {
	for _, sig := range signals {
		switch sig.Category {
		case CategoryAuth:
			s.Auth = append(s.Auth, sig)
		case CategoryEncryption:
			s.Encryption = append(s.Encryption, sig)
		case CategoryLogging:
			s.Logging = append(s.Logging, sig)
		case CategoryAccessControl:
			s.AccessControl = append(s.AccessControl, sig)
		case CategoryCICD:
			s.CICD = append(s.CICD, sig)
		case CategorySecrets:
			s.SecretsWarnings = append(s.SecretsWarnings, sig)
		}
	}
}

// Total returns the number of signals across all categories.
func (s *Signals) Total() int {
	return len(s.Auth) + len(s.Encryption) + len(s.Logging) +
		len(s.AccessControl) + len(s.CICD) + len(s.SecretsWarnings)
}
