package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// DevDirName is the directory under the system temp dir that holds caches of
// development runs.
const DevDirName = "notesync-dev"

// IsDevRun reports whether the process was started by `go run` or `go test`,
// whose binaries live in temporary directories.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}

	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}
	return strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe")
}

// ResolveCacheDir returns the directory the cache is opened in. With forceTemp,
// a directory outside the system temp dir is re-rooted under DevDirName so that
// development runs never touch a real cache.
func ResolveCacheDir(userPath string, forceTemp bool) string {
	if !forceTemp {
		if userPath == "" {
			return defaultCacheDir()
		}
		return userPath
	}

	clean := filepath.Clean(userPath)
	if rel, err := filepath.Rel(os.TempDir(), clean); err == nil && userPath != "" && !strings.HasPrefix(rel, "..") {
		return clean
	}

	name := filepath.Base(clean)
	if userPath == "" || name == "." || name == string(os.PathSeparator) {
		name = "default"
	}
	return filepath.Join(os.TempDir(), DevDirName, name)
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "notesync")
	}
	return ".notesync"
}
