package config

import "time"

// On-disk layout of one project under the projects root:
//
//	<root>/<project>/working/   canonical working tree
//	<root>/<project>/history.git bare git history
//	<root>/<project>/settings.yaml
const (
	WorkingDir   = "working"
	HistoryDir   = "history.git"
	SettingsFile = "settings.yaml"
)

// Working tree layout.
const (
	ManifestFile = "project.json"
	IndexFile    = "assets.json"
	AssetsDir    = "assets"
)

const (
	DefaultBranch = "main"
	DefaultRemote = "origin"
)

const (
	DefaultHash = "xxh3" // "xxh3" | "sha256"
)

// WorkingRef names the live working tree wherever a revision id is accepted.
const (
	WorkingRef = "working"
	HeadRef    = "head"
)

const (
	DefaultMaxEntrySize      = 256 << 20
	DefaultRevisionCacheSize = 64
	DefaultLockTimeout       = time.Duration(0)
)

// ValidHash reports whether algo names a supported content hash.
func ValidHash(algo string) bool {
	return algo == "xxh3" || algo == "sha256"
}
