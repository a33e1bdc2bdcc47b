package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath resolves a string that may represent a relative file path,
// following gaps.utilities.resolve_path: a string is only treated as a
// path if it starts with "./" or "..", or contains "./" somewhere in its
// body; any other string is returned unchanged, so this is safe to call on
// every string leaf in a config tree without false positives.
func ResolvePath(s, baseDir string) string {
	var resolved string
	switch {
	case strings.HasPrefix(s, "./"):
		resolved = filepath.Join(baseDir, s[2:])
	case strings.HasPrefix(s, ".."):
		resolved = filepath.Join(baseDir, s)
	case strings.Contains(s, "./"):
		resolved = s
	default:
		return s
	}

	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(resolved, "~") {
		resolved = filepath.Join(home, strings.TrimPrefix(resolved, "~"))
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return resolved
	}
	return abs
}

// ResolveAllPaths walks v and rewrites every string leaf through
// ResolvePath relative to baseDir, returning a new tree. Bools, numbers,
// and null leaves pass through unchanged.
func ResolveAllPaths(v *Value, baseDir string) *Value {
	if v == nil {
		return v
	}
	switch v.kind {
	case KindString:
		return String(ResolvePath(v.s, baseDir))
	case KindList:
		items := make([]*Value, len(v.list))
		for i, elem := range v.list {
			items[i] = ResolveAllPaths(elem, baseDir)
		}
		return List(items...)
	case KindMap:
		m := Map()
		for _, k := range v.m.keys {
			m.Set(k, ResolveAllPaths(v.m.values[k], baseDir))
		}
		return m
	default:
		return v
	}
}

// LoadResolved loads path and resolves relative path strings within it
// against path's own directory, matching gaps.config.load_config's default
// resolve_paths=True behavior.
func LoadResolved(path string) (*Value, error) {
	v, err := Load(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return ResolveAllPaths(v, filepath.Dir(abs)), nil
}
