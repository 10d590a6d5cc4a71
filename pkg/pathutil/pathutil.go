// Package pathutil provides utilities for safe path handling and validation.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// hasTraversal reports whether any element of p is "..".
func hasTraversal(p string) bool {
	for _, part := range strings.FieldsFunc(filepath.ToSlash(p), func(r rune) bool { return r == '/' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// ValidateConfigPath validates a configuration file path.
// Config files are expected to be YAML files.
func ValidateConfigPath(path string) (string, error) {
	if hasTraversal(path) {
		return "", fmt.Errorf("path contains directory traversal pattern: %s", path)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("config file must have .yaml or .yml extension, got %s", ext)
	}

	return absPath, nil
}

// ValidateOutputPath validates a report output path. The parent directory must exist.
func ValidateOutputPath(path string) (string, error) {
	if hasTraversal(path) {
		return "", fmt.Errorf("path contains directory traversal pattern: %s", path)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	dir := filepath.Dir(absPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("parent directory does not exist: %s", dir)
	}

	return absPath, nil
}

// ValidateRoot checks that root is an existing directory and returns its absolute form.
func ValidateRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("root directory is empty")
	}

	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", absRoot)
	}

	return absRoot, nil
}

// JoinAndValidate safely joins path components and validates the result stays under baseDir.
func JoinAndValidate(baseDir string, elems ...string) (string, error) {
	for _, elem := range elems {
		if hasTraversal(elem) {
			return "", fmt.Errorf("path element contains directory traversal: %s", elem)
		}
	}

	joined := filepath.Join(append([]string{baseDir}, elems...)...)

	within, err := IsWithinDirectory(joined, baseDir)
	if err != nil {
		return "", err
	}
	if !within {
		return "", fmt.Errorf("joined path %s is not within base directory %s", joined, baseDir)
	}

	return filepath.Abs(joined)
}

// Rel returns path relative to baseDir using forward slashes.
func Rel(baseDir, path string) (string, error) {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", path, err)
	}
	if hasTraversal(rel) {
		return "", fmt.Errorf("path %s is not within %s", path, baseDir)
	}
	return filepath.ToSlash(rel), nil
}

// IsWithinDirectory checks if a path is within a specific directory.
func IsWithinDirectory(path, dir string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}

	if absPath == absDir {
		return true, nil
	}

	if !strings.HasSuffix(absDir, string(filepath.Separator)) {
		absDir += string(filepath.Separator)
	}

	return strings.HasPrefix(absPath, absDir), nil
}
