// Package sandbox restricts where export artifacts may be written and how
// large they may be.
package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrPathDenied is returned for destinations outside the allowed roots or
	// under a denied root.
	ErrPathDenied = errors.New("sandbox: path not permitted")
	// ErrTooLarge is returned for artifacts above the configured size limit.
	ErrTooLarge = errors.New("sandbox: artifact too large")
)

// Sandbox holds allowed/denied path roots and an artifact size limit.
// A nil *Sandbox permits everything.
type Sandbox struct {
	allowedPaths []string
	deniedPaths  []string
	maxFileSize  int64 // bytes, 0 means unlimited
}

// Config holds the sandbox configuration.
type Config struct {
	AllowedPaths []string
	DeniedPaths  []string
	MaxFileSize  string // e.g. "10MB", "1GB", "500KB"
}

// New creates a Sandbox from cfg. Roots are resolved to absolute paths.
func New(cfg Config) (*Sandbox, error) {
	s := &Sandbox{}

	var err error
	if s.allowedPaths, err = absAll(cfg.AllowedPaths); err != nil {
		return nil, fmt.Errorf("sandbox: resolve allowed path: %w", err)
	}
	if s.deniedPaths, err = absAll(cfg.DeniedPaths); err != nil {
		return nil, fmt.Errorf("sandbox: resolve denied path: %w", err)
	}

	if cfg.MaxFileSize != "" {
		size, err := parseFileSize(cfg.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("sandbox: parse max_file_size %q: %w", cfg.MaxFileSize, err)
		}
		s.maxFileSize = size
	}

	return s, nil
}

func absAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, canonical(abs))
	}
	return out, nil
}

// canonical follows symlinks in the longest existing prefix of abs and
// re-attaches the part that does not exist yet.
func canonical(abs string) string {
	existing, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// Resolve returns the canonical absolute form of path if the sandbox
// permits writing there. Symlinks in the existing part of the path are
// followed before any rule is checked. Deny rules take precedence over allow
// rules; with no allow rules every non-denied path is permitted.
func (s *Sandbox) Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("sandbox: resolve path %q: %w", path, err)
	}
	if s == nil {
		return abs, nil
	}
	abs = canonical(abs)

	for _, denied := range s.deniedPaths {
		if under(abs, denied) {
			return "", fmt.Errorf("%w: %q is under denied path %q", ErrPathDenied, abs, denied)
		}
	}

	if len(s.allowedPaths) == 0 {
		return abs, nil
	}
	for _, allowed := range s.allowedPaths {
		if under(abs, allowed) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not under any allowed path %v", ErrPathDenied, abs, s.allowedPaths)
}

func under(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// CheckSize returns ErrTooLarge when size exceeds the configured limit.
func (s *Sandbox) CheckSize(size int64) error {
	if s == nil || s.maxFileSize <= 0 || size <= s.maxFileSize {
		return nil
	}
	return fmt.Errorf("%w: %d bytes exceeds maximum %s", ErrTooLarge, size, formatFileSize(s.maxFileSize))
}

// parseFileSize parses a human-readable file size string into bytes.
// Supported suffixes: B, KB, MB, GB (case-insensitive).
func parseFileSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(n * float64(sf.multiplier)), nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid file size %q", s)
	}
	return n, nil
}

func formatFileSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
