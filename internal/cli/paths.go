package cli

import "path/filepath"

// projectDirOf resolves the project directory a config file lives in: the
// absolute path of its parent directory, the root every Status Store and
// generated task config is keyed against.
func projectDirOf(configPath string) string {
	dir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return filepath.Dir(configPath)
	}
	return dir
}
