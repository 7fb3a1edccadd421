package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default comicsub data directory name (relative to home).
	DefaultDataDir = ".comicsub"
	// DatasetFile is the filename of the dataset document on the file storage.
	DatasetFile = "comic_data.json"
	// DatabaseFile is the filename of the SQLite database.
	DatabaseFile = "comicsub.db"
	// CoverCacheDir is the subdirectory for the cached covers.
	CoverCacheDir = "cache/comic_cover"
	// DotEnvFile is the optional environment file loaded from the working directory.
	DotEnvFile = ".env"
	// StageDirPattern is the temp dir pattern used to stage the tool executable.
	StageDirPattern = "comicsub-tool-*"
)

// DatasetPath returns the path to the dataset document.
func DatasetPath(dataDir string) string {
	return filepath.Join(dataDir, DatasetFile)
}

// DatabasePath returns the path to the SQLite database.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, DatabaseFile)
}

// CoverCachePath returns the directory of the cached covers.
func CoverCachePath(dataDir string) string {
	return filepath.Join(dataDir, filepath.FromSlash(CoverCacheDir))
}
