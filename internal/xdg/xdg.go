// Package xdg resolves XDG Base Directory paths for the judge's
// on-disk caches.
package xdg

import (
	"os"
	"path/filepath"
)

func homeDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		return home
	}
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return "/tmp"
}

// CacheHome returns XDG_CACHE_HOME, falling back to ~/.cache.
func CacheHome() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".cache")
}

// AppCacheDir returns the cache directory for appName.
func AppCacheDir(appName string) string {
	return filepath.Join(CacheHome(), appName)
}
