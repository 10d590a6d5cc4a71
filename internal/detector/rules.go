package detector

import (
	"bytes"
	"context"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joshsymonds/certify/internal/models"
)

// Evidence limits per signal.
const (
	maxEvidenceFiles = 25
	maxLinesPerFile  = 20
	maxSnippetLen    = 160
)

// Rule is one pattern in a category battery.
type Rule struct {
	Pattern        *regexp.Regexp
	Paths          func(rel string) bool
	Accept         func(value string) bool
	Type           string
	Confidence     models.Confidence
	Details        string
	Severity       string
	Recommendation string
	// ValueGroup selects the submatch holding a secret value; 0 means the whole match.
	ValueGroup int
	Redact     bool
}

func (r *Rule) appliesTo(rel string) bool {
	return r.Paths == nil || r.Paths(rel)
}

// match returns the snippet for the first acceptable match in line.
func (r *Rule) match(line string) (string, bool) {
	if r.Accept == nil && !r.Redact {
		if !r.Pattern.MatchString(line) {
			return "", false
		}
		return truncate(maskAssignment(strings.TrimSpace(line))), true
	}

	for _, m := range r.Pattern.FindAllStringSubmatchIndex(line, -1) {
		start, end := m[0], m[1]
		vs, ve := start, end
		if g := r.ValueGroup; g > 0 && 2*g+1 < len(m) && m[2*g] >= 0 {
			vs, ve = m[2*g], m[2*g+1]
		}
		value := line[vs:ve]
		if r.Accept != nil && !r.Accept(value) {
			continue
		}
		if !r.Redact {
			return truncate(line[start:end]), true
		}
		return truncate(line[start:vs] + Redact(value) + line[ve:end]), true
	}
	return "", false
}

// Redact masks all but the first four characters of a secret value.
func Redact(value string) string {
	const keep, maxStars = 4, 16
	runes := []rune(value)
	if len(runes) <= keep {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:keep]) + strings.Repeat("*", min(len(runes)-keep, maxStars))
}

var (
	assignment   = regexp.MustCompile(`["']?([A-Za-z_][A-Za-z0-9_.\-]*)["']?\s*(?::=|[:=])\s*("[^"]*"|'[^']*'|[^\s,;}\]=>][^\s,;}\]]*)`)
	sensitiveKey = regexp.MustCompile(`(?i)(secret|passw|pwd|token|key|dsn|credential|license|private|auth)`)
	memberExpr   = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)+$`)
)

// maskAssignment redacts every value assigned to a credential-like key in line,
// as in `JWT_SECRET=value`, `password: value` or `"apiKey": "value"`.
func maskAssignment(line string) string {
	var b strings.Builder
	last := 0
	for _, m := range assignment.FindAllStringSubmatchIndex(line, -1) {
		key := line[m[2]:m[3]]
		vs, ve := m[4], m[5]
		value := strings.Trim(line[vs:ve], `"'`)
		if !sensitiveKey.MatchString(key) || !maskable(value) {
			continue
		}
		b.WriteString(line[last:vs])
		b.WriteString(Redact(value))
		last = ve
	}
	if last == 0 {
		return line
	}
	b.WriteString(line[last:])
	return b.String()
}

// maskable keeps literals, calls, member expressions and references readable.
func maskable(value string) bool {
	return value != "" &&
		!isLiteral(value) &&
		!strings.Contains(value, "(") &&
		!memberExpr.MatchString(value) &&
		isRealSecret(value)
}

func isLiteral(value string) bool {
	if _, err := strconv.ParseBool(value); err == nil {
		return true
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return true
	}
	return value == "null" || value == "~"
}

func truncate(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	cut := maxSnippetLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

type aggregate struct {
	signal    models.Signal
	rank      int
	evidence  map[string]int
	detailsAt int
}

// scan applies rules to every file in set and returns one signal per matched type,
// ordered by the first rule of each type.
func scan(ctx context.Context, set *FileSet, category models.SignalCategory, rules []Rule) ([]models.Signal, error) {
	order := make([]string, 0, len(rules))
	for _, r := range rules {
		if !slices.Contains(order, r.Type) {
			order = append(order, r.Type)
		}
	}

	byType := make(map[string]*aggregate)
	applicable := make([]int, 0, len(rules))

	for _, rel := range set.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		applicable = applicable[:0]
		for i := range rules {
			if rules[i].appliesTo(rel) {
				applicable = append(applicable, i)
			}
		}
		if len(applicable) == 0 {
			continue
		}

		content, ok := set.read(rel)
		if !ok {
			continue
		}

		var lines []string
		for _, i := range applicable {
			r := &rules[i]
			if !r.Pattern.Match(content) {
				continue
			}
			if lines == nil {
				lines = strings.Split(string(bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))), "\n")
			}
			for n, line := range lines {
				snippet, ok := r.match(line)
				if !ok {
					continue
				}
				record(byType, category, r, i, rel, n+1, snippet)
			}
		}
	}

	signals := make([]models.Signal, 0, len(byType))
	for _, t := range order {
		if agg, ok := byType[t]; ok {
			signals = append(signals, agg.signal)
		}
	}
	return signals, nil
}

func record(byType map[string]*aggregate, category models.SignalCategory, r *Rule, ruleIndex int, rel string, line int, snippet string) {
	agg, ok := byType[r.Type]
	if !ok {
		agg = &aggregate{
			signal: models.Signal{
				Category: category,
				Type:     r.Type,
			},
			evidence:  make(map[string]int),
			detailsAt: -1,
		}
		byType[r.Type] = agg
	}

	// The strongest rule decides confidence and details; ties go to the earlier rule.
	rank := r.Confidence.Rank()
	if rank > agg.rank || (rank == agg.rank && ruleIndex < agg.detailsAt) {
		agg.rank = rank
		agg.detailsAt = ruleIndex
		agg.signal.Confidence = r.Confidence
		agg.signal.Details = r.Details
		agg.signal.Recommendation = r.Recommendation
	}
	if models.SeverityRank(r.Severity) > models.SeverityRank(agg.signal.Severity) {
		agg.signal.Severity = r.Severity
	}

	idx, ok := agg.evidence[rel]
	if !ok {
		if len(agg.signal.Evidence) >= maxEvidenceFiles {
			return
		}
		idx = len(agg.signal.Evidence)
		agg.evidence[rel] = idx
		agg.signal.Evidence = append(agg.signal.Evidence, models.Evidence{Path: rel})
	}

	ev := &agg.signal.Evidence[idx]
	pos, found := slices.BinarySearch(ev.LineNumbers, line)
	if found {
		return
	}
	if len(ev.LineNumbers) >= maxLinesPerFile && pos >= len(ev.LineNumbers) {
		return
	}
	ev.LineNumbers = slices.Insert(ev.LineNumbers, pos, line)
	if len(ev.LineNumbers) > maxLinesPerFile {
		ev.LineNumbers = ev.LineNumbers[:maxLinesPerFile]
	}
	if pos == 0 {
		ev.Snippet = snippet
	}
}

func anyOf(preds ...func(string) bool) func(string) bool {
	return func(rel string) bool {
		for _, p := range preds {
			if p(rel) {
				return true
			}
		}
		return false
	}
}

func named(names ...string) func(string) bool {
	return func(rel string) bool {
		lower := strings.ToLower(rel)
		for _, n := range names {
			if lower == n || strings.HasSuffix(lower, "/"+n) {
				return true
			}
		}
		return false
	}
}
