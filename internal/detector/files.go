// Package detector scans an extracted repository for security-relevant code patterns.
package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/pathutil"
)

// DefaultIgnoreDirs are directory names never descended into.
var DefaultIgnoreDirs = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "dist", "build", "out",
	".next", ".nuxt", "coverage", "__pycache__", ".venv", "venv", "target", ".terraform",
}

// Options bound file discovery.
type Options struct {
	IgnoreDirs  []string
	MaxFileSize int64
	MaxFiles    int
}

// DefaultOptions returns the discovery limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		IgnoreDirs:  DefaultIgnoreDirs,
		MaxFileSize: 1 << 20,
		MaxFiles:    20000,
	}
}

// Listing is the result of file discovery.
type Listing struct {
	Files     []string
	Skipped   int
	Truncated bool
}

// ListFiles walks root once and returns the slash-separated relative paths of
// the files to analyze at the given depth, in lexical order.
func ListFiles(ctx context.Context, root string, depth models.Depth, opts Options) (*Listing, error) {
	absRoot, err := pathutil.ValidateRoot(root)
	if err != nil {
		return nil, fmt.Errorf("invalid extracted path: %w", err)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultOptions().MaxFileSize
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultOptions().MaxFiles
	}
	ignore := opts.IgnoreDirs
	if ignore == nil {
		ignore = DefaultIgnoreDirs
	}

	listing := &Listing{}
	errLimit := errors.New("file limit reached")

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == absRoot {
				return walkErr
			}
			listing.Skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if p != absRoot && slices.Contains(ignore, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			listing.Skipped++
			return nil
		}

		rel, err := pathutil.Rel(absRoot, p)
		if err != nil {
			listing.Skipped++
			return nil
		}
		if depth != models.DepthFull && !isSecurityRelevant(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > opts.MaxFileSize {
			listing.Skipped++
			return nil
		}

		if len(listing.Files) >= opts.MaxFiles {
			listing.Truncated = true
			return errLimit
		}
		listing.Files = append(listing.Files, rel)
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, err
	}

	return listing, nil
}

// FileSet binds a detector run to an extracted root and the files discovered in it.
// It counts scanned and skipped files across every category scan.
type FileSet struct {
	root    string
	files   []string
	mu      sync.Mutex
	scanned map[string]struct{}
	skipped map[string]struct{}
}

// NewFileSet creates a file set over files, given relative to extractedPath.
func NewFileSet(extractedPath string, files []string) (*FileSet, error) {
	root, err := pathutil.ValidateRoot(extractedPath)
	if err != nil {
		return nil, fmt.Errorf("invalid extracted path: %w", err)
	}
	return &FileSet{
		root:    root,
		files:   slices.Clone(files),
		scanned: make(map[string]struct{}),
		skipped: make(map[string]struct{}),
	}, nil
}

// Root returns the absolute extracted path.
func (s *FileSet) Root() string { return s.root }

// Files returns the relative paths in the set.
func (s *FileSet) Files() []string { return slices.Clone(s.files) }

// ScannedFiles returns the number of distinct files read successfully.
func (s *FileSet) ScannedFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scanned)
}

// SkippedFiles returns the number of distinct files that were unreadable,
// binary or outside the root.
func (s *FileSet) SkippedFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.skipped)
}

// read returns the content of rel, or false when the file must be skipped.
func (s *FileSet) read(rel string) ([]byte, bool) {
	full, err := pathutil.JoinAndValidate(s.root, filepath.FromSlash(rel))
	if err != nil {
		s.markSkipped(rel)
		return nil, false
	}

	content, err := os.ReadFile(full) //nolint:gosec // Path is validated to stay under the root
	if err != nil || isBinary(content) {
		s.markSkipped(rel)
		return nil, false
	}

	s.mu.Lock()
	s.scanned[rel] = struct{}{}
	s.mu.Unlock()
	return content, true
}

func (s *FileSet) markSkipped(rel string) {
	s.mu.Lock()
	s.skipped[rel] = struct{}{}
	s.mu.Unlock()
}

func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content)
}

var sourceExts = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	".py": true, ".rb": true, ".java": true, ".kt": true, ".cs": true, ".php": true, ".rs": true,
	".scala": true, ".swift": true, ".sql": true, ".tf": true, ".sh": true,
}

var configExts = map[string]bool{
	".yml": true, ".yaml": true, ".json": true, ".toml": true, ".ini": true, ".env": true,
	".conf": true, ".cfg": true, ".properties": true, ".xml": true, ".pem": true, ".key": true,
}

var configNames = map[string]bool{
	"dockerfile": true, "jenkinsfile": true, "codeowners": true, "makefile": true,
	".env": true, ".npmrc": true, ".pypirc": true, ".netrc": true,
}

var lockFiles = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true, "go.sum": true,
	"cargo.lock": true, "poetry.lock": true, "composer.lock": true, "gemfile.lock": true,
}

var testDirs = map[string]bool{
	"test": true, "tests": true, "__tests__": true, "__mocks__": true, "spec": true,
	"fixtures": true, "testdata": true, "e2e": true,
}

// isSecurityRelevant keeps source, configuration and CI files, and drops
// lock files and tests.
func isSecurityRelevant(rel string) bool {
	base := strings.ToLower(path.Base(rel))
	if lockFiles[base] {
		return false
	}
	if isTestPath(rel) {
		return false
	}
	if isCIFile(rel) {
		return true
	}
	ext := strings.ToLower(path.Ext(base))
	return sourceExts[ext] || configExts[ext] || configNames[base] || strings.HasPrefix(base, ".env")
}

func isTestPath(rel string) bool {
	for _, dir := range strings.Split(path.Dir(rel), "/") {
		if testDirs[strings.ToLower(dir)] {
			return true
		}
	}
	base := strings.ToLower(path.Base(rel))
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_")
}

func isSource(rel string) bool {
	return sourceExts[strings.ToLower(path.Ext(rel))]
}

func isConfig(rel string) bool {
	base := strings.ToLower(path.Base(rel))
	return configExts[path.Ext(base)] || configNames[base] || strings.HasPrefix(base, ".env")
}

func isWorkflow(rel string) bool {
	dir := path.Dir(rel)
	ext := path.Ext(rel)
	return dir == ".github/workflows" && (ext == ".yml" || ext == ".yaml")
}

func isGitLabCI(rel string) bool {
	return path.Base(rel) == ".gitlab-ci.yml"
}

func isCIFile(rel string) bool {
	if isWorkflow(rel) || isGitLabCI(rel) {
		return true
	}
	switch strings.ToLower(rel) {
	case "jenkinsfile", ".circleci/config.yml", "azure-pipelines.yml", "bitbucket-pipelines.yml",
		".pre-commit-config.yaml", ".github/dependabot.yml", ".github/dependabot.yaml",
		"renovate.json", ".github/renovate.json", "codeowners", ".github/codeowners",
		"docs/codeowners", ".github/pull_request_template.md", ".golangci.yml", ".golangci.yaml",
		"sonar-project.properties", ".semgrep.yml", ".gitleaks.toml", ".snyk":
		return true
	}
	return false
}
