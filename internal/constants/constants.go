// Package constants defines shared constants used across the fishook codebase.
package constants

import "os"

// File permissions
const (
	DirMode  os.FileMode = 0755
	FileMode os.FileMode = 0644
	// HookMode is the mode for installed hook stubs; git only runs executable hooks.
	HookMode os.FileMode = 0755
)

// Environment variables read by the CLI
const (
	EnvConfig    = "FISHOOK_CONFIG"
	EnvDryRun    = "FISHOOK_DRY_RUN"
	EnvLogFormat = "FISHOOK_LOG_FORMAT"
	EnvPrune     = "FISHOOK_PRUNE"
)

// Application names and paths
const (
	AppName = "fishook"
	// StateDirName is created inside the git dir for the audit log and other run state.
	StateDirName  = "fishook"
	AuditFileName = "audit.log"
	// DefaultConfigFile is the fallback config looked up at the repository root.
	DefaultConfigFile = "fishook.json"
	// BackupSuffix is appended to foreign hooks moved aside by install.
	BackupSuffix = ".pre-fishook"
	// HookMarker identifies hook stubs written by fishook.
	HookMarker = "fishook-managed hook"
)

// ConfigFileNames lists every recognised configuration file name.
var ConfigFileNames = []string{"fishook.json", "fishook.toml", "fishook.yaml", "fishook.yml"}

// MaxConfigDepth bounds config discovery below the repository root.
const MaxConfigDepth = 4

// ZeroOID is git's all-zero object id (SHA-1 width).
const ZeroOID = "0000000000000000000000000000000000000000"

// AuditRotateBytes is the size at which the audit log is compressed and rotated.
const AuditRotateBytes = 1 << 20
